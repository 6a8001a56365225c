package data

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/pkg/types"
)

func TestGeneratePointCount(t *testing.T) {
	gen := NewGenerator(zap.NewNop(), rand.New(rand.NewSource(1)))
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		interval types.Interval
		span     time.Duration
		want     int
	}{
		{types.Interval1h, 24 * time.Hour, 24},
		{types.Interval1m, time.Hour, 60},
		{types.Interval1d, 30 * 24 * time.Hour, 30},
		{types.Interval4h, 24 * time.Hour, 6},
	}

	for _, tc := range cases {
		histData := gen.Generate("pool", start, start.Add(tc.span), tc.interval)
		assert.Len(t, histData.PricePoints, tc.want, "interval %s", tc.interval)
		assert.Equal(t, start, histData.PricePoints[0].Timestamp)
		assert.Equal(t, tc.want, histData.Metadata.DataPoints)
		assert.Equal(t, types.DataSourceMock, histData.Metadata.Source)
	}
}

func TestGenerateNeverEmpty(t *testing.T) {
	gen := NewGenerator(zap.NewNop(), rand.New(rand.NewSource(1)))
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Range shorter than one interval still yields a point.
	histData := gen.Generate("pool", start, start.Add(time.Minute), types.Interval1d)
	assert.NotEmpty(t, histData.PricePoints)
}

func TestGenerateSeedReproducibility(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	first := NewGenerator(zap.NewNop(), rand.New(rand.NewSource(99))).
		Generate("pool", start, end, types.Interval1h)
	second := NewGenerator(zap.NewNop(), rand.New(rand.NewSource(99))).
		Generate("pool", start, end, types.Interval1h)

	require.Equal(t, len(first.PricePoints), len(second.PricePoints))
	for i := range first.PricePoints {
		assert.True(t, first.PricePoints[i].Close.Equal(second.PricePoints[i].Close),
			"close price diverged at %d", i)
		assert.True(t, first.PricePoints[i].Volume.Equal(second.PricePoints[i].Volume),
			"volume diverged at %d", i)
	}

	third := NewGenerator(zap.NewNop(), rand.New(rand.NewSource(100))).
		Generate("pool", start, end, types.Interval1h)
	diverged := false
	for i := range first.PricePoints {
		if !first.PricePoints[i].Close.Equal(third.PricePoints[i].Close) {
			diverged = true
			break
		}
	}
	assert.True(t, diverged, "different seeds should produce different series")
}

func TestGenerateOHLCInvariants(t *testing.T) {
	gen := NewGenerator(zap.NewNop(), rand.New(rand.NewSource(7)))
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	histData := gen.Generate("pool", start, start.Add(14*24*time.Hour), types.Interval1h)

	for i, pt := range histData.PricePoints {
		maxOC := pt.Open
		if pt.Close.GreaterThan(maxOC) {
			maxOC = pt.Close
		}
		minOC := pt.Open
		if pt.Close.LessThan(minOC) {
			minOC = pt.Close
		}
		assert.True(t, pt.High.GreaterThanOrEqual(maxOC), "high < max(open,close) at %d", i)
		assert.True(t, pt.Low.LessThanOrEqual(minOC), "low > min(open,close) at %d", i)
		assert.True(t, pt.Close.IsPositive(), "non-positive close at %d", i)
		assert.True(t, pt.Volume.IsPositive(), "non-positive volume at %d", i)
	}
}

func TestGenerateLiquidityShape(t *testing.T) {
	gen := NewGenerator(zap.NewNop(), rand.New(rand.NewSource(5)))
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	histData := gen.Generate("pool", start, start.Add(6*time.Hour), types.Interval1h)
	require.NotEmpty(t, histData.LiquidityPoints)

	perTick := 2*liquidityWindow + 1
	assert.Len(t, histData.LiquidityPoints, len(histData.PricePoints)*perTick)

	// First tick: liquidity deepest at the active bin, fee rate grows
	// with distance, active flag only near the price bin.
	tick := histData.LiquidityPoints[:perTick]
	price, _ := histData.PricePoints[0].Close.Float64()
	activeBin := BinForPrice(price)

	for _, lp := range tick {
		distance := lp.BinID - activeBin
		if distance < 0 {
			distance = -distance
		}
		if distance <= activeWindow {
			assert.True(t, lp.IsActive, "bin %d should be active", lp.BinID)
		} else {
			assert.False(t, lp.IsActive, "bin %d should be inactive", lp.BinID)
		}
		if distance > 0 {
			center := tick[liquidityWindow]
			assert.True(t, lp.FeeRate.GreaterThan(center.FeeRate),
				"fee rate should grow with distance (bin %d)", lp.BinID)
		}
	}
}

func TestBinPriceRoundTrip(t *testing.T) {
	for _, price := range []float64{0.5, 1, 42.5, 100, 12345} {
		bin := BinForPrice(price)
		back := PriceForBin(bin)
		// One bin step of tolerance.
		assert.InEpsilon(t, price, back, binStep*2, "price %f", price)
	}
}
