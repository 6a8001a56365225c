// Package types provides configuration and result types for the backtesting backend.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestConfig represents the configuration for a backtest run
type BacktestConfig struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Market      MarketConfig    `json:"market"`
	Timeframe   TimeframeConfig `json:"timeframe"`
	Capital     CapitalConfig   `json:"capital"`
	Costs       CostConfig      `json:"costs"`
	Strategy    StrategyConfig  `json:"strategy"`
	Rebalancing RebalanceConfig `json:"rebalancing"`
}

// MarketConfig identifies the pool and token pair under test
type MarketConfig struct {
	PoolAddress  string `json:"poolAddress"`
	TokenXSymbol string `json:"tokenXSymbol"`
	TokenYSymbol string `json:"tokenYSymbol"`
}

// TimeframeConfig bounds the simulated date range
type TimeframeConfig struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Interval  Interval  `json:"interval"`
}

// CapitalConfig sets the starting capital
type CapitalConfig struct {
	InitialAmount decimal.Decimal `json:"initialAmount"`
	Currency      string          `json:"currency"`
}

// CostConfig models per-action execution costs. Slippage is a
// fraction of position value in [0, 1].
type CostConfig struct {
	GasPrice       decimal.Decimal `json:"gasPrice"`
	Slippage       decimal.Decimal `json:"slippage"`
	TransactionFee decimal.Decimal `json:"transactionFee"`
}

// StrategyConfig selects and parameterizes the strategy evaluator
type StrategyConfig struct {
	ID         string             `json:"id"`
	Parameters StrategyParameters `json:"parameters"`
}

// StrategyParameters gates evaluator recommendations
type StrategyParameters struct {
	MinProfitThreshold float64 `json:"minProfitThreshold"`
	MinConfidence      float64 `json:"minConfidence"`
}

// RebalanceConfig tunes rebalancing behavior
type RebalanceConfig struct {
	Frequency    string  `json:"frequency"`
	MinThreshold float64 `json:"minThreshold"`
}

// BacktestStatus is the lifecycle state of a run
type BacktestStatus string

const (
	StatusRunning   BacktestStatus = "running"
	StatusCompleted BacktestStatus = "completed"
	StatusError     BacktestStatus = "error"
)

// BacktestError records the terminal error of a failed run
type BacktestError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// BacktestResult represents the output of a backtest run. Run always
// produces one, even on failure or cancellation.
type BacktestResult struct {
	ID             string            `json:"id"`
	Config         *BacktestConfig   `json:"config"`
	Status         BacktestStatus    `json:"status"`
	Progress       float64           `json:"progress"` // 0-1
	StartedAt      time.Time         `json:"startedAt"`
	CompletedAt    time.Time         `json:"completedAt,omitempty"`
	Metrics        *BacktestMetrics  `json:"metrics,omitempty"`
	TimeSeriesData []TimeSeriesPoint `json:"timeSeriesData"`
	Actions        []StrategyAction  `json:"actions"`
	Summary        *BacktestSummary  `json:"summary,omitempty"`
	Error          *BacktestError    `json:"error,omitempty"`
}

// BacktestProgress is a progress notification emitted during a run
type BacktestProgress struct {
	ID             string          `json:"id"`
	Phase          string          `json:"phase"`
	Fraction       float64         `json:"fraction"` // 0-1, monotonic
	CurrentDate    time.Time       `json:"currentDate"`
	ActionsLogged  int             `json:"actionsLogged"`
	PortfolioValue decimal.Decimal `json:"portfolioValue"`
}

// ValidationResult is the outcome of validating a BacktestConfig
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	WebSocketPath  string        `json:"websocketPath"`
	ReadTimeout    time.Duration `json:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
	MaxConnections int           `json:"maxConnections"`
	EnableMetrics  bool          `json:"enableMetrics"`
}

// DataConfig represents historical data service configuration
type DataConfig struct {
	CacheSize      int           `json:"cacheSize"` // max cached datasets
	CacheTTL       time.Duration `json:"cacheTtl"`
	AllowSynthetic bool          `json:"allowSynthetic"`
	Seed           int64         `json:"seed"` // 0 means time-seeded
}
