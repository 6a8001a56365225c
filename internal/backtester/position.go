// Package backtester provides simulated position accounting.
package backtester

import (
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solphase/dlmm-backend/internal/data"
	"github.com/solphase/dlmm-backend/pkg/types"
)

const (
	// positionBinRange is how many bins each side of the active bin
	// the simulated position spreads over.
	positionBinRange = 5

	// dailyFeeRate is the target fee yield per day, apportioned per tick.
	dailyFeeRate = 0.003

	// maxValueDrift bounds the random per-tick drift applied to the
	// position value.
	maxValueDrift = 0.001
)

// newPosition builds the initial position: capital split evenly across
// the bin window around the bin implied by the first price, 50/50
// token split within each bin.
func newPosition(capital decimal.Decimal, price float64, ts time.Time) *types.PositionSnapshot {
	activeBin := data.BinForPrice(price)
	binCount := 2*positionBinRange + 1
	perBin := capital.Div(decimal.NewFromInt(int64(binCount)))
	half := perBin.Div(decimal.NewFromInt(2))

	bins := make([]types.BinLiquidity, 0, binCount)
	var tokenX, tokenY decimal.Decimal
	priceDec := decimal.NewFromFloat(price)

	for offset := -positionBinRange; offset <= positionBinRange; offset++ {
		liqX := half.Div(priceDec)
		bins = append(bins, types.BinLiquidity{
			BinID:      activeBin + offset,
			LiquidityX: liqX,
			LiquidityY: half,
			Value:      perBin,
		})
		tokenX = tokenX.Add(liqX)
		tokenY = tokenY.Add(half)
	}

	return &types.PositionSnapshot{
		Timestamp:       ts,
		BinDistribution: bins,
		TotalValue:      capital,
		TokenXBalance:   tokenX,
		TokenYBalance:   tokenY,
		FeesEarned:      types.FeesEarned{},
	}
}

// accrueFees applies one tick of fee income plus a bounded random
// drift to the position value, then refreshes the rolling APR.
func accrueFees(pos *types.PositionSnapshot, interval types.Interval, price float64, rng *rand.Rand) {
	tickFraction := interval.Duration().Hours() / 24
	value, _ := pos.TotalValue.Float64()

	fee := value * dailyFeeRate * tickFraction
	drift := value * (rng.Float64()*2 - 1) * maxValueDrift

	feeDec := decimal.NewFromFloat(fee)
	pos.FeesEarned.USDValue = pos.FeesEarned.USDValue.Add(feeDec)
	if price > 0 {
		pos.FeesEarned.TokenX = pos.FeesEarned.TokenX.Add(decimal.NewFromFloat(fee / 2 / price))
	}
	pos.FeesEarned.TokenY = pos.FeesEarned.TokenY.Add(decimal.NewFromFloat(fee / 2))

	pos.TotalValue = pos.TotalValue.Add(feeDec).Add(decimal.NewFromFloat(drift))
	if pos.TotalValue.IsNegative() {
		pos.TotalValue = decimal.Zero
	}
}

// updatePositionMetrics refreshes APR, impermanent loss and bin
// utilization after the tick's price move.
func updatePositionMetrics(pos *types.PositionSnapshot, initialCapital decimal.Decimal, startPrice, price float64, elapsed time.Duration) {
	capital, _ := initialCapital.Float64()
	fees, _ := pos.FeesEarned.USDValue.Float64()

	days := elapsed.Hours() / 24
	if days < 1.0/24 {
		days = 1.0 / 24
	}
	if capital > 0 {
		pos.Metrics.APR = fees / capital * 365 / days
	}

	pos.Metrics.ImpermanentLoss = impermanentLoss(startPrice, price)
	pos.Metrics.Utilization = binUtilization(pos, price)
}

// impermanentLoss is the classic divergence-loss formula for a 50/50
// position given the price ratio since entry. Always <= 0.
func impermanentLoss(startPrice, price float64) float64 {
	if startPrice <= 0 || price <= 0 {
		return 0
	}
	r := price / startPrice
	return 2*math.Sqrt(r)/(1+r) - 1
}

// binUtilization is the fraction of position bins close enough to the
// current price bin to earn fees.
func binUtilization(pos *types.PositionSnapshot, price float64) float64 {
	if len(pos.BinDistribution) == 0 {
		return 0
	}
	activeBin := data.BinForPrice(price)
	active := 0
	for _, bin := range pos.BinDistribution {
		if abs(bin.BinID-activeBin) <= positionBinRange {
			active++
		}
	}
	return float64(active) / float64(len(pos.BinDistribution))
}

// applyActionCosts deducts an action's total cost from the position,
// flooring the value at zero, and redistributes bin values.
func applyActionCosts(pos *types.PositionSnapshot, costs types.ActionCosts) {
	pos.TotalValue = pos.TotalValue.Sub(costs.Total())
	if pos.TotalValue.IsNegative() {
		pos.TotalValue = decimal.Zero
	}
	rescaleBins(pos)
}

// recenterBins moves the position's bin window onto the bin implied by
// price, keeping the total value.
func recenterBins(pos *types.PositionSnapshot, price float64) {
	activeBin := data.BinForPrice(price)
	binCount := 2*positionBinRange + 1
	perBin := pos.TotalValue.Div(decimal.NewFromInt(int64(binCount)))
	half := perBin.Div(decimal.NewFromInt(2))
	priceDec := decimal.NewFromFloat(price)

	bins := make([]types.BinLiquidity, 0, binCount)
	var tokenX, tokenY decimal.Decimal
	for offset := -positionBinRange; offset <= positionBinRange; offset++ {
		liqX := decimal.Zero
		if price > 0 {
			liqX = half.Div(priceDec)
		}
		bins = append(bins, types.BinLiquidity{
			BinID:      activeBin + offset,
			LiquidityX: liqX,
			LiquidityY: half,
			Value:      perBin,
		})
		tokenX = tokenX.Add(liqX)
		tokenY = tokenY.Add(half)
	}
	pos.BinDistribution = bins
	pos.TokenXBalance = tokenX
	pos.TokenYBalance = tokenY
}

// clonePosition copies a position for recording into the time series.
// The bin slice is duplicated so later in-place mutations of the live
// position cannot rewrite history.
func clonePosition(pos *types.PositionSnapshot) types.PositionSnapshot {
	snap := *pos
	snap.BinDistribution = make([]types.BinLiquidity, len(pos.BinDistribution))
	copy(snap.BinDistribution, pos.BinDistribution)
	return snap
}

// rescaleBins spreads the current total value evenly over the existing
// bin window.
func rescaleBins(pos *types.PositionSnapshot) {
	if len(pos.BinDistribution) == 0 {
		return
	}
	perBin := pos.TotalValue.Div(decimal.NewFromInt(int64(len(pos.BinDistribution))))
	for i := range pos.BinDistribution {
		pos.BinDistribution[i].Value = perBin
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
