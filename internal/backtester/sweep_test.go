package backtester_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/solphase/dlmm-backend/internal/backtester"
	"github.com/solphase/dlmm-backend/internal/strategy"
	"github.com/solphase/dlmm-backend/pkg/types"
)

func TestSweepRunsAllVariants(t *testing.T) {
	logger := zap.NewNop()
	runner := backtester.NewSweepRunner(logger, newTestDataService(42), strategy.NewRegistry(logger), 2).WithSeed(7)

	variants := []*types.BacktestConfig{
		newTestConfig("hold", 24),
		newTestConfig("threshold-rebalance", 24),
		newTestConfig("hold", 48),
	}
	for i, cfg := range variants {
		cfg.ID = cfg.Name + string(rune('a'+i))
	}

	outcomes, err := runner.Run(context.Background(), variants, nil)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(outcomes))
	}

	for i, o := range outcomes {
		if o.Config != variants[i] {
			t.Errorf("Outcome %d is out of order", i)
		}
		if o.Err != nil {
			t.Errorf("Variant %d failed: %v", i, o.Err)
		}
		if o.Result == nil || o.Result.Status != types.StatusCompleted {
			t.Errorf("Variant %d not completed", i)
		}
	}

	if len(outcomes[2].Result.TimeSeriesData) != 48 {
		t.Errorf("Expected 48 points for the 48h variant, got %d",
			len(outcomes[2].Result.TimeSeriesData))
	}
}

func TestSweepInvalidVariantIsLocal(t *testing.T) {
	logger := zap.NewNop()
	runner := backtester.NewSweepRunner(logger, newTestDataService(42), strategy.NewRegistry(logger), 1)

	bad := newTestConfig("hold", 24)
	bad.Market.PoolAddress = ""
	variants := []*types.BacktestConfig{bad, newTestConfig("hold", 24)}

	outcomes, err := runner.Run(context.Background(), variants, nil)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if outcomes[0].Err == nil {
		t.Error("Expected the invalid variant to fail")
	}
	if outcomes[0].Result.Status != types.StatusError {
		t.Errorf("Expected error status, got %s", outcomes[0].Result.Status)
	}
	if outcomes[1].Err != nil {
		t.Errorf("Valid variant should still run: %v", outcomes[1].Err)
	}
}

func TestSweepCancelledContext(t *testing.T) {
	logger := zap.NewNop()
	runner := backtester.NewSweepRunner(logger, newTestDataService(42), strategy.NewRegistry(logger), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	variants := []*types.BacktestConfig{newTestConfig("hold", 24), newTestConfig("hold", 24)}
	outcomes, err := runner.Run(ctx, variants, nil)
	if err == nil {
		t.Fatal("Expected context error")
	}
	for i, o := range outcomes {
		if o.Result == nil {
			t.Fatalf("Outcome %d missing result", i)
		}
		if o.Result.Status != types.StatusError {
			t.Errorf("Outcome %d expected error status, got %s", i, o.Result.Status)
		}
	}
}

func TestSweepSeedReproducible(t *testing.T) {
	logger := zap.NewNop()

	run := func() []backtester.SweepOutcome {
		runner := backtester.NewSweepRunner(logger, newTestDataService(42), strategy.NewRegistry(logger), 2).WithSeed(99)
		outcomes, err := runner.Run(context.Background(), []*types.BacktestConfig{
			newTestConfig("threshold-rebalance", 72),
		}, nil)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		return outcomes
	}

	first := run()
	second := run()

	m1, m2 := first[0].Result.Metrics, second[0].Result.Metrics
	if m1.TotalReturn != m2.TotalReturn {
		t.Errorf("Seeded sweeps diverged: %f vs %f", m1.TotalReturn, m2.TotalReturn)
	}
	if m1.TotalTrades != m2.TotalTrades {
		t.Errorf("Seeded sweeps diverged on trades: %d vs %d", m1.TotalTrades, m2.TotalTrades)
	}
}

func TestSweepProgressForwarded(t *testing.T) {
	logger := zap.NewNop()
	runner := backtester.NewSweepRunner(logger, newTestDataService(42), strategy.NewRegistry(logger), 1)

	cfg := newTestConfig("hold", 24)
	cfg.ID = "sweep-progress"

	updates := make(chan types.BacktestProgress, 256)
	_, err := runner.Run(context.Background(), []*types.BacktestConfig{cfg}, func(p types.BacktestProgress) {
		select {
		case updates <- p:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if len(updates) == 0 {
		t.Fatal("Expected progress updates from sweep run")
	}
	update := <-updates
	if update.ID != "sweep-progress" {
		t.Errorf("Progress carries id %q, want sweep-progress", update.ID)
	}
}
