// Package backtester provides backtest configuration validation.
package backtester

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/solphase/dlmm-backend/pkg/types"
)

// maxRangeDays bounds the simulated date range.
const maxRangeDays = 365

// ValidateConfig checks a backtest configuration without running any
// simulation work. It is pure so callers (e.g. a form endpoint) can
// pre-validate before invoking Run.
func ValidateConfig(cfg *types.BacktestConfig) types.ValidationResult {
	result := types.ValidationResult{IsValid: true}

	fail := func(format string, args ...any) {
		result.IsValid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	if cfg == nil {
		fail("config is required")
		return result
	}

	if cfg.Market.PoolAddress == "" {
		fail("market.poolAddress is required")
	}

	if !cfg.Timeframe.StartDate.Before(cfg.Timeframe.EndDate) {
		fail("timeframe.startDate must be before timeframe.endDate")
	} else if cfg.Timeframe.EndDate.Sub(cfg.Timeframe.StartDate).Hours() > maxRangeDays*24 {
		fail("timeframe range exceeds %d days", maxRangeDays)
	}

	if !cfg.Timeframe.Interval.Valid() {
		fail("timeframe.interval %q is not supported", cfg.Timeframe.Interval)
	}

	if cfg.Capital.InitialAmount.LessThanOrEqual(decimal.Zero) {
		fail("capital.initialAmount must be positive")
	}

	if cfg.Costs.Slippage.LessThan(decimal.Zero) || cfg.Costs.Slippage.GreaterThan(decimal.NewFromInt(1)) {
		fail("costs.slippage must be within [0, 1]")
	}

	if cfg.Strategy.ID == "" {
		fail("strategy.id is required")
	}

	return result
}
