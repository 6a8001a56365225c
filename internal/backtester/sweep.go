package backtester

import (
	"context"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/internal/strategy"
	"github.com/solphase/dlmm-backend/pkg/types"
)

// SweepOutcome pairs a variant config with its run result. Result is
// always non-nil; Err mirrors the run's terminal error.
type SweepOutcome struct {
	Config *types.BacktestConfig `json:"config"`
	Result *types.BacktestResult `json:"result"`
	Err    error                 `json:"-"`
}

// SweepRunner runs a set of backtest config variants concurrently over
// a bounded worker set. Each variant gets its own engine, so runs do
// not share mutable state. One sweep at a time.
type SweepRunner struct {
	logger   *zap.Logger
	dataSvc  DataService
	registry *strategy.Registry
	workers  int
	seed     int64
	running  atomic.Bool
}

// NewSweepRunner creates a sweep runner. workers <= 0 means one worker
// per CPU.
func NewSweepRunner(logger *zap.Logger, dataSvc DataService, registry *strategy.Registry, workers int) *SweepRunner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &SweepRunner{
		logger:   logger,
		dataSvc:  dataSvc,
		registry: registry,
		workers:  workers,
	}
}

// WithSeed makes every variant's engine drift deterministic. Each
// variant is seeded with seed+index so runs stay reproducible but
// distinct.
func (r *SweepRunner) WithSeed(seed int64) *SweepRunner {
	r.seed = seed
	return r
}

// Run executes all variants and returns their outcomes in input order.
// onProgress, if non-nil, receives progress updates from every run.
func (r *SweepRunner) Run(ctx context.Context, variants []*types.BacktestConfig, onProgress ProgressFunc) ([]SweepOutcome, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	r.logger.Info("Starting backtest sweep",
		zap.Int("variants", len(variants)),
		zap.Int("workers", r.workers),
	)

	outcomes := make([]SweepOutcome, len(variants))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = r.runVariant(ctx, idx, variants[idx], onProgress)
			}
		}()
	}

	for idx := range variants {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			// Unsent variants get a cancelled outcome without engines.
			for rest := idx; rest < len(variants); rest++ {
				outcomes[rest] = SweepOutcome{
					Config: variants[rest],
					Result: cancelledResult(variants[rest]),
					Err:    ErrCancelled,
				}
			}
			close(jobs)
			wg.Wait()
			return outcomes, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	var completed, failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		} else {
			completed++
		}
	}
	r.logger.Info("Backtest sweep finished",
		zap.Int("completed", completed),
		zap.Int("failed", failed),
	)

	return outcomes, nil
}

// IsRunning reports whether a sweep is in flight.
func (r *SweepRunner) IsRunning() bool {
	return r.running.Load()
}

func (r *SweepRunner) runVariant(ctx context.Context, idx int, cfg *types.BacktestConfig, onProgress ProgressFunc) SweepOutcome {
	opts := []Option{}
	if r.seed != 0 {
		opts = append(opts, WithRNG(rand.New(rand.NewSource(r.seed+int64(idx)))))
	}

	engine := NewEngine(r.logger, r.dataSvc, r.registry, opts...)
	result, err := engine.Run(ctx, cfg, onProgress)
	if err != nil {
		r.logger.Warn("Sweep variant failed",
			zap.Int("variant", idx),
			zap.String("id", cfg.ID),
			zap.Error(err),
		)
	}
	return SweepOutcome{Config: cfg, Result: result, Err: err}
}

// cancelledResult builds the terminal result for a variant that never
// started because the sweep context was cancelled.
func cancelledResult(cfg *types.BacktestConfig) *types.BacktestResult {
	return &types.BacktestResult{
		ID:     cfg.ID,
		Config: cfg,
		Status: types.StatusError,
		Error:  &types.BacktestError{Message: "sweep cancelled before run started"},
	}
}
