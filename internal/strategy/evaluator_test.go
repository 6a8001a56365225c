package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/internal/data"
	"github.com/solphase/dlmm-backend/pkg/types"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	for _, id := range []string{"hold", "threshold-rebalance"} {
		e, err := registry.Resolve(id)
		require.NoError(t, err)
		assert.Equal(t, id, e.Name())
	}

	_, err := registry.Resolve("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestHoldNeverRecommends(t *testing.T) {
	hold := &HoldEvaluator{}
	rec, err := hold.Evaluate(context.Background(), snapshotAt(100), pointAt(250), nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func pointAt(price float64) types.PricePoint {
	return types.PricePoint{
		Timestamp: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Close:     decimal.NewFromFloat(price),
	}
}

func snapshotAt(price float64) *types.PositionSnapshot {
	center := data.BinForPrice(price)
	bins := make([]types.BinLiquidity, 0, 11)
	for offset := -5; offset <= 5; offset++ {
		bins = append(bins, types.BinLiquidity{BinID: center + offset})
	}
	return &types.PositionSnapshot{
		BinDistribution: bins,
		TotalValue:      decimal.NewFromInt(1000),
	}
}

func TestThresholdRebalance(t *testing.T) {
	eval := NewThresholdRebalanceEvaluator()
	cfg := &types.BacktestConfig{
		Rebalancing: types.RebalanceConfig{MinThreshold: 0.02},
	}

	// Price at the position center: no action.
	rec, err := eval.Evaluate(context.Background(), snapshotAt(100), pointAt(100), cfg)
	require.NoError(t, err)
	assert.Nil(t, rec)

	// Price 5% away: rebalance recommended.
	rec, err = eval.Evaluate(context.Background(), snapshotAt(100), pointAt(105), cfg)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, types.ActionRebalance, rec.Action)
	assert.Greater(t, rec.Confidence, 0.0)
	assert.LessOrEqual(t, rec.Confidence, 0.95)
	assert.Greater(t, rec.EstimatedProfit, 0.0)
	assert.NotEmpty(t, rec.Reasoning)
}

func TestThresholdRebalanceDeterministic(t *testing.T) {
	eval := NewThresholdRebalanceEvaluator()
	cfg := &types.BacktestConfig{
		Rebalancing: types.RebalanceConfig{MinThreshold: 0.01},
	}

	first, err := eval.Evaluate(context.Background(), snapshotAt(100), pointAt(110), cfg)
	require.NoError(t, err)
	second, err := eval.Evaluate(context.Background(), snapshotAt(100), pointAt(110), cfg)
	require.NoError(t, err)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, first, second, "identical inputs must yield identical recommendations")
}

func TestThresholdRebalanceEmptyPosition(t *testing.T) {
	eval := NewThresholdRebalanceEvaluator()

	rec, err := eval.Evaluate(context.Background(), &types.PositionSnapshot{}, pointAt(100), nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
}
