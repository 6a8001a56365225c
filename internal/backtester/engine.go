// Package backtester provides the core backtest orchestration engine.
package backtester

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/internal/strategy"
	"github.com/solphase/dlmm-backend/pkg/types"
)

// Phase boundaries for progress reporting. Progress is monotonically
// non-decreasing within [0, 1].
const (
	progressInit     = 0.05
	progressFetch    = 0.15
	progressSimStart = 0.25
	progressSimEnd   = 0.90
)

// DataService supplies historical market data for a pool and range.
type DataService interface {
	Fetch(ctx context.Context, poolAddress string, start, end time.Time, interval types.Interval) (*types.HistoricalData, error)
}

// ProgressFunc receives progress notifications during a run. It is a
// fire-and-forget callback invoked synchronously from the run goroutine.
type ProgressFunc func(types.BacktestProgress)

// Engine orchestrates a backtest: validation, data fetch, tick loop,
// metrics, summary. One run at a time per engine.
type Engine struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	dataSvc  DataService
	registry *strategy.Registry
	rng      *rand.Rand

	running      atomic.Bool
	cancelled    atomic.Bool
	currentTime  time.Time
	lastProgress float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithRNG injects the random source used for the per-tick value
// drift, so runs are reproducible under a fixed seed.
func WithRNG(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// NewEngine creates a backtesting engine.
func NewEngine(logger *zap.Logger, dataSvc DataService, registry *strategy.Registry, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger,
		dataSvc:  dataSvc,
		registry: registry,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a backtest. The returned result is always non-nil;
// fatal conditions (invalid config, unavailable data, cancellation)
// are folded into result.Status and result.Error, and the mirrored
// error return lets callers branch with errors.Is.
func (e *Engine) Run(ctx context.Context, cfg *types.BacktestConfig, onProgress ProgressFunc) (*types.BacktestResult, error) {
	result := &types.BacktestResult{
		Config:    cfg,
		Status:    types.StatusRunning,
		StartedAt: time.Now(),
	}
	if cfg != nil && cfg.ID != "" {
		result.ID = cfg.ID
	} else {
		result.ID = uuid.New().String()
	}

	if !e.running.CompareAndSwap(false, true) {
		return e.fail(result, ErrAlreadyRunning)
	}
	defer e.running.Store(false)
	e.cancelled.Store(false)
	e.lastProgress = 0

	if validation := ValidateConfig(cfg); !validation.IsValid {
		return e.fail(result, fmt.Errorf("%w: %v", ErrInvalidConfig, validation.Errors))
	}

	evaluator, err := e.registry.Resolve(cfg.Strategy.ID)
	if err != nil {
		return e.fail(result, fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	e.emitProgress(result, onProgress, "initializing", progressInit)

	histData, err := e.dataSvc.Fetch(ctx, cfg.Market.PoolAddress,
		cfg.Timeframe.StartDate, cfg.Timeframe.EndDate, cfg.Timeframe.Interval)
	if err != nil {
		return e.fail(result, fmt.Errorf("fetching historical data: %w", err))
	}
	if len(histData.PricePoints) == 0 {
		return e.fail(result, fmt.Errorf("fetching historical data: empty series"))
	}

	e.emitProgress(result, onProgress, "fetching_data", progressFetch)

	e.logger.Info("Starting simulation",
		zap.String("id", result.ID),
		zap.String("pool", cfg.Market.PoolAddress),
		zap.String("strategy", cfg.Strategy.ID),
		zap.Int("points", len(histData.PricePoints)),
	)

	series, actions, err := e.simulate(ctx, cfg, evaluator, histData, result, onProgress)
	result.TimeSeriesData = series
	result.Actions = actions
	if err != nil {
		return e.fail(result, err)
	}

	e.emitProgress(result, onProgress, "calculating_metrics", progressSimEnd)

	calc := NewMetricsCalculator()
	result.Metrics = calc.Compute(series, actions, cfg.Capital.InitialAmount, DefaultRiskFreeRate)
	result.Summary = buildSummary(series, result.Metrics)

	result.Status = types.StatusCompleted
	result.CompletedAt = time.Now()
	e.emitProgress(result, onProgress, "completed", 1.0)

	e.logger.Info("Backtest completed",
		zap.String("id", result.ID),
		zap.Int("points", len(series)),
		zap.Int("actions", len(actions)),
		zap.Float64("totalReturn", result.Metrics.TotalReturn),
	)

	return result, nil
}

// Cancel requests cooperative cancellation of the running backtest.
// It takes effect within one tick of the simulation loop.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// IsRunning reports whether a run is in flight.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// simulate drives the tick loop: fee accrual, benchmark tracking,
// strategy evaluation, cost application, series recording.
func (e *Engine) simulate(
	ctx context.Context,
	cfg *types.BacktestConfig,
	evaluator strategy.Evaluator,
	histData *types.HistoricalData,
	result *types.BacktestResult,
	onProgress ProgressFunc,
) ([]types.TimeSeriesPoint, []types.StrategyAction, error) {
	points := histData.PricePoints
	first := points[0]
	startPrice, _ := first.Close.Float64()
	interval := cfg.Timeframe.Interval
	capital := cfg.Capital.InitialAmount

	pos := newPosition(capital, startPrice, first.Timestamp)
	actions := []types.StrategyAction{{
		Timestamp:  first.Timestamp,
		Type:       types.ActionInitialize,
		Parameters: types.ActionParameters{Reason: "initial position"},
		Result:     types.ActionResult{Success: true, NewPositionValue: pos.TotalValue},
	}}

	// Benchmark: buy-and-hold, value split 50/50 at the first price.
	half := capital.Div(decimal.NewFromInt(2))
	benchY, _ := half.Float64()
	benchX := 0.0
	if startPrice > 0 {
		benchX = benchY / startPrice
	}

	series := make([]types.TimeSeriesPoint, 0, len(points))
	progressEvery := len(points) / 50
	if progressEvery < 1 {
		progressEvery = 1
	}

	for i, pt := range points {
		select {
		case <-ctx.Done():
			return series, actions, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		default:
		}
		if e.cancelled.Load() {
			return series, actions, ErrCancelled
		}

		e.mu.Lock()
		e.currentTime = pt.Timestamp
		e.mu.Unlock()

		price, _ := pt.Close.Float64()

		accrueFees(pos, interval, price, e.rng)
		pos.Timestamp = pt.Timestamp
		updatePositionMetrics(pos, capital, startPrice, price, pt.Timestamp.Sub(first.Timestamp))

		benchValue := decimal.NewFromFloat(benchX*price + benchY)

		var tickAction *types.StrategyAction
		rec, err := evaluator.Evaluate(ctx, pos, pt, cfg)
		if err != nil {
			// Evaluator errors are local: no action this tick.
			e.logger.Warn("Strategy evaluation failed",
				zap.Time("timestamp", pt.Timestamp),
				zap.Error(err),
			)
			rec = nil
		}
		if rec != nil && e.acceptRecommendation(cfg, rec) {
			action := e.executeAction(cfg, pos, rec, pt.Timestamp, price)
			actions = append(actions, action)
			tickAction = &actions[len(actions)-1]
		}

		series = append(series, types.TimeSeriesPoint{
			Timestamp:      pt.Timestamp,
			PortfolioValue: pos.TotalValue,
			BenchmarkValue: benchValue,
			Position:       clonePosition(pos),
			Action:         tickAction,
			MarketPrice:    pt.Close,
			MarketVolume:   pt.Volume,
		})

		if i%progressEvery == 0 {
			fraction := progressSimStart + (progressSimEnd-progressSimStart)*float64(i)/float64(len(points))
			e.emitProgressAt(result, onProgress, "simulating", fraction, pt.Timestamp, len(actions), pos.TotalValue)
		}
	}

	return series, actions, nil
}

// acceptRecommendation applies the minimum-profit and minimum-confidence
// gates from the strategy parameters.
func (e *Engine) acceptRecommendation(cfg *types.BacktestConfig, rec *strategy.Recommendation) bool {
	params := cfg.Strategy.Parameters
	if rec.EstimatedProfit < params.MinProfitThreshold {
		return false
	}
	if rec.Confidence < params.MinConfidence {
		return false
	}
	return true
}

// executeAction applies an accepted recommendation: deducts costs,
// recenters the bin window on rebalance, records the action.
func (e *Engine) executeAction(cfg *types.BacktestConfig, pos *types.PositionSnapshot, rec *strategy.Recommendation, ts time.Time, price float64) types.StrategyAction {
	costs := types.ActionCosts{
		Gas:      cfg.Costs.GasPrice,
		Slippage: pos.TotalValue.Mul(cfg.Costs.Slippage),
		Fees:     cfg.Costs.TransactionFee,
	}

	applyActionCosts(pos, costs)
	if rec.Action == types.ActionRebalance {
		recenterBins(pos, price)
	}
	pos.Metrics.Utilization = binUtilization(pos, price)

	return types.StrategyAction{
		Timestamp:  ts,
		Type:       rec.Action,
		Parameters: types.ActionParameters{Reason: rec.Reasoning},
		Costs:      costs,
		Result:     types.ActionResult{Success: true, NewPositionValue: pos.TotalValue},
	}
}

// fail records a terminal error into the result and mirrors it in the
// error return. The (partial) result is always usable.
func (e *Engine) fail(result *types.BacktestResult, err error) (*types.BacktestResult, error) {
	result.Status = types.StatusError
	result.CompletedAt = time.Now()
	result.Error = &types.BacktestError{
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
	e.logger.Warn("Backtest failed",
		zap.String("id", result.ID),
		zap.Error(err),
	)
	return result, err
}

// emitProgress reports a phase boundary at the engine's current time.
func (e *Engine) emitProgress(result *types.BacktestResult, onProgress ProgressFunc, phase string, fraction float64) {
	e.emitProgressAt(result, onProgress, phase, fraction, e.currentTime, len(result.Actions), decimal.Zero)
}

// emitProgressAt clamps progress to be monotonic, updates the result,
// and invokes the callback when present.
func (e *Engine) emitProgressAt(result *types.BacktestResult, onProgress ProgressFunc, phase string, fraction float64, current time.Time, actionCount int, value decimal.Decimal) {
	if fraction < e.lastProgress {
		fraction = e.lastProgress
	}
	e.lastProgress = fraction
	result.Progress = fraction

	if onProgress == nil {
		return
	}
	onProgress(types.BacktestProgress{
		ID:             result.ID,
		Phase:          phase,
		Fraction:       fraction,
		CurrentDate:    current,
		ActionsLogged:  actionCount,
		PortfolioValue: value,
	})
}
