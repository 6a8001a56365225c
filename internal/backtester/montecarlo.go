package backtester

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/pkg/types"
)

// MonteCarloConfig configures the bootstrap resampler.
type MonteCarloConfig struct {
	Simulations int       `json:"simulations"`
	Seed        int64     `json:"seed"` // 0 for time-based
	Percentiles []float64 `json:"percentiles"`
}

// DefaultMonteCarloConfig returns the standard resampling setup.
func DefaultMonteCarloConfig() *MonteCarloConfig {
	return &MonteCarloConfig{
		Simulations: 1000,
		Percentiles: []float64{0.05, 0.25, 0.50, 0.75, 0.95},
	}
}

// Distribution summarizes a sampled statistic.
type Distribution struct {
	Mean        float64            `json:"mean"`
	Median      float64            `json:"median"`
	StdDev      float64            `json:"stdDev"`
	Min         float64            `json:"min"`
	Max         float64            `json:"max"`
	Percentiles map[string]float64 `json:"percentiles"`
}

// MonteCarloResult is the outcome of resampling a completed backtest.
type MonteCarloResult struct {
	Simulations       int           `json:"simulations"`
	ObservedFinal     float64       `json:"observedFinal"`
	FinalValue        *Distribution `json:"finalValue"`
	CompoundReturn    *Distribution `json:"compoundReturn"`
	MaxDrawdown       *Distribution `json:"maxDrawdown"`
	ProbabilityOfLoss float64       `json:"probabilityOfLoss"`
}

// MonteCarloSimulator estimates the dispersion of a backtest's outcome
// by bootstrap-resampling its period returns. The ordering of returns
// is what resampling destroys, so path-dependent statistics like max
// drawdown get a distribution instead of a single observation.
type MonteCarloSimulator struct {
	logger *zap.Logger
	config *MonteCarloConfig
	rng    *rand.Rand
}

// NewMonteCarloSimulator creates a simulator. A nil config uses defaults.
func NewMonteCarloSimulator(logger *zap.Logger, config *MonteCarloConfig) *MonteCarloSimulator {
	if config == nil {
		config = DefaultMonteCarloConfig()
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &MonteCarloSimulator{
		logger: logger,
		config: config,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Resample runs the bootstrap over a completed backtest result.
func (s *MonteCarloSimulator) Resample(result *types.BacktestResult) (*MonteCarloResult, error) {
	if result == nil || len(result.TimeSeriesData) < 3 {
		return nil, fmt.Errorf("montecarlo: need at least 3 time series points")
	}

	values := portfolioValues(result.TimeSeriesData)
	returns := periodReturns(values)
	if len(returns) < 2 {
		return nil, fmt.Errorf("montecarlo: need at least 2 period returns, got %d", len(returns))
	}

	initial := values[0]
	n := s.config.Simulations
	if n <= 0 {
		n = DefaultMonteCarloConfig().Simulations
	}

	s.logger.Debug("Resampling backtest returns",
		zap.Int("simulations", n),
		zap.Int("returns", len(returns)),
	)

	finals := make([]float64, n)
	compounds := make([]float64, n)
	drawdowns := make([]float64, n)
	losses := 0

	for i := 0; i < n; i++ {
		value := initial
		peak := initial
		var maxDD float64
		product := 1.0

		for range returns {
			r := returns[s.rng.Intn(len(returns))]
			product *= 1 + r
			value *= 1 + r
			if value > peak {
				peak = value
			}
			if peak > 0 {
				if dd := (peak - value) / peak; dd > maxDD {
					maxDD = dd
				}
			}
		}

		finals[i] = value
		compounds[i] = product - 1
		drawdowns[i] = maxDD
		if value < initial {
			losses++
		}
	}

	return &MonteCarloResult{
		Simulations:       n,
		ObservedFinal:     values[len(values)-1],
		FinalValue:        s.distribution(finals),
		CompoundReturn:    s.distribution(compounds),
		MaxDrawdown:       s.distribution(drawdowns),
		ProbabilityOfLoss: float64(losses) / float64(n),
	}, nil
}

// distribution computes summary statistics over sampled values.
func (s *MonteCarloSimulator) distribution(samples []float64) *Distribution {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	d := &Distribution{
		Mean:        mean(sorted),
		Median:      percentile(sorted, 0.5),
		StdDev:      sampleStdDev(sorted),
		Min:         sorted[0],
		Max:         sorted[len(sorted)-1],
		Percentiles: make(map[string]float64, len(s.config.Percentiles)),
	}
	for _, p := range s.config.Percentiles {
		d.Percentiles[fmt.Sprintf("p%02.0f", p*100)] = percentile(sorted, p)
	}
	return d
}

// percentile reads the p-quantile from an ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Round(p * float64(len(sorted)-1)))
	return sorted[idx]
}
