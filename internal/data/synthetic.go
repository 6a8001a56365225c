// Package data provides synthetic market data generation.
package data

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/pkg/types"
)

// marketRegime is the latent state driving synthetic price dynamics
type marketRegime int

const (
	regimeTrending marketRegime = iota
	regimeRanging
	regimeVolatile
)

const (
	// regimeSwitchProb is the per-tick probability of resampling the regime.
	regimeSwitchProb = 0.02

	// binStep is the relative price width of one liquidity bin (20 bps).
	binStep = 0.002

	// liquidityWindow is how many bins each side of the active bin
	// receive synthetic liquidity.
	liquidityWindow = 10

	// activeWindow is how far from the current price bin a bin still
	// counts as active.
	activeWindow = 2
)

// Generator produces regime-switching synthetic market data. The
// random source is injected so a fixed seed reproduces an identical
// series. Generate holds a mutex around the source, so one Generator
// can back concurrent fetches.
type Generator struct {
	logger    *zap.Logger
	mu        sync.Mutex
	rng       *rand.Rand
	basePrice float64
}

// NewGenerator creates a generator around the given random source.
// A nil rng falls back to a time-seeded source.
func NewGenerator(logger *zap.Logger, rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{
		logger:    logger,
		rng:       rng,
		basePrice: 100.0,
	}
}

// Generate produces exactly floor((end-start)/interval) price points,
// the first at start, plus per-tick liquidity points for bins around
// the active bin. A valid positive-length range never yields an empty
// series.
func (g *Generator) Generate(poolAddress string, start, end time.Time, interval types.Interval) *types.HistoricalData {
	g.mu.Lock()
	defer g.mu.Unlock()

	step := interval.Duration()
	totalPoints := int(end.Sub(start) / step)
	if totalPoints < 1 {
		totalPoints = 1
	}

	volMin, volMax := volatilityRange(interval)
	baseVolume := baseVolumeFor(interval)

	regime := regimeRanging
	regimeStrength := 0.5
	price := g.basePrice

	pricePoints := make([]types.PricePoint, 0, totalPoints)
	liquidityPoints := make([]types.LiquidityPoint, 0, totalPoints*(2*liquidityWindow+1))

	ts := start
	for i := 0; i < totalPoints; i++ {
		if g.rng.Float64() < regimeSwitchProb {
			regime = marketRegime(g.rng.Intn(3))
			regimeStrength = 0.3 + g.rng.Float64()*0.7
		}

		vol := volMin + g.rng.Float64()*(volMax-volMin)
		change := g.priceChange(regime, regimeStrength, vol, price)

		open := price
		price *= 1 + change
		if price < g.basePrice*0.01 {
			price = g.basePrice * 0.01
		}
		closePrice := price

		wickHigh := closePrice * (1 + g.rng.Float64()*vol*0.3)
		wickLow := closePrice * (1 - g.rng.Float64()*vol*0.3)
		high := math.Max(math.Max(open, closePrice), wickHigh)
		low := math.Min(math.Min(open, closePrice), wickLow)

		volume := g.volume(baseVolume, regime, change)

		pricePoints = append(pricePoints, types.PricePoint{
			Timestamp: ts,
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(closePrice),
			Volume:    decimal.NewFromFloat(volume),
			VolumeX:   decimal.NewFromFloat(volume / (2 * closePrice)),
			VolumeY:   decimal.NewFromFloat(volume / 2),
		})

		liquidityPoints = append(liquidityPoints, g.liquidityForPrice(ts, closePrice)...)

		ts = ts.Add(step)
	}

	return &types.HistoricalData{
		PoolAddress: poolAddress,
		TimeRange:   types.TimeRange{Start: start, End: end},
		PricePoints: pricePoints,
		LiquidityPoints: liquidityPoints,
		Metadata: types.DataMetadata{
			DataPoints: len(pricePoints),
			Coverage:   1.0,
			Source:     types.DataSourceMock,
		},
	}
}

// priceChange computes the per-tick fractional price move for the
// current regime.
func (g *Generator) priceChange(regime marketRegime, strength, vol, price float64) float64 {
	noise := (g.rng.Float64() - 0.5) * vol
	switch regime {
	case regimeTrending:
		// Directional drift with a mild upward bias.
		drift := strength * vol * 0.5
		return drift + noise
	case regimeRanging:
		// Mean reversion toward the base price.
		reversion := (g.basePrice - price) / g.basePrice * strength * 0.1
		return reversion + noise
	case regimeVolatile:
		return noise * (1 + strength)
	}
	return noise
}

// volume derives tick volume from the base volume for the interval,
// a regime factor, the magnitude of the price move, and jitter.
func (g *Generator) volume(base float64, regime marketRegime, change float64) float64 {
	factor := 1.0
	switch regime {
	case regimeTrending:
		factor = 1.3
	case regimeVolatile:
		factor = 1.8
	}
	moveBoost := 1 + math.Abs(change)*20
	jitter := 0.8 + g.rng.Float64()*0.4 // +/-20%
	return base * factor * moveBoost * jitter
}

// liquidityForPrice generates liquidity points for bins around the bin
// implied by price. Liquidity decays exponentially with distance from
// the active bin; the fee rate grows linearly with distance.
func (g *Generator) liquidityForPrice(ts time.Time, price float64) []types.LiquidityPoint {
	activeBin := BinForPrice(price)
	points := make([]types.LiquidityPoint, 0, 2*liquidityWindow+1)

	for offset := -liquidityWindow; offset <= liquidityWindow; offset++ {
		distance := math.Abs(float64(offset))
		depth := 50000.0 * math.Exp(-distance/3.0) * (0.85 + g.rng.Float64()*0.3)
		feeRate := 0.0020 + distance*0.0001

		points = append(points, types.LiquidityPoint{
			Timestamp:  ts,
			BinID:      activeBin + offset,
			LiquidityX: decimal.NewFromFloat(depth / (2 * price)),
			LiquidityY: decimal.NewFromFloat(depth / 2),
			FeeRate:    decimal.NewFromFloat(feeRate),
			IsActive:   distance <= activeWindow,
		})
	}
	return points
}

// BinForPrice maps a price to its DLMM bin id relative to a unit base
// price, using the fixed bin step.
func BinForPrice(price float64) int {
	if price <= 0 {
		return 0
	}
	return int(math.Round(math.Log(price) / math.Log(1+binStep)))
}

// PriceForBin is the inverse of BinForPrice.
func PriceForBin(binID int) float64 {
	return math.Pow(1+binStep, float64(binID))
}

// volatilityRange returns the per-tick fractional volatility bounds
// for an interval.
func volatilityRange(interval types.Interval) (min, max float64) {
	switch interval {
	case types.Interval1m:
		return 0.001, 0.004
	case types.Interval5m:
		return 0.002, 0.008
	case types.Interval15m:
		return 0.003, 0.012
	case types.Interval1h:
		return 0.005, 0.02
	case types.Interval4h:
		return 0.01, 0.04
	case types.Interval1d:
		return 0.02, 0.10
	default:
		return 0.005, 0.02
	}
}

// baseVolumeFor returns the baseline USD volume per tick for an interval.
func baseVolumeFor(interval types.Interval) float64 {
	switch interval {
	case types.Interval1m:
		return 5000
	case types.Interval5m:
		return 25000
	case types.Interval15m:
		return 75000
	case types.Interval1h:
		return 300000
	case types.Interval4h:
		return 1200000
	case types.Interval1d:
		return 7000000
	default:
		return 300000
	}
}
