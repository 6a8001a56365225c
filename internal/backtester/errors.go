// Package backtester provides the DLMM liquidity backtesting engine.
package backtester

import "errors"

var (
	// ErrAlreadyRunning is returned when Run is called while a run is
	// in flight on the same engine.
	ErrAlreadyRunning = errors.New("backtest already running")

	// ErrCancelled is the terminal error of a cooperatively cancelled
	// run. Callers can distinguish user cancellation from failures
	// with errors.Is.
	ErrCancelled = errors.New("backtest cancelled")

	// ErrInvalidConfig is the terminal error of a run whose config
	// failed validation. The per-field messages are in the result.
	ErrInvalidConfig = errors.New("invalid backtest configuration")
)
