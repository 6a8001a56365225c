// Package types provides shared type definitions for the DLMM backtesting backend.
package types

import (
	"encoding/json"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Interval represents a sampling interval for historical data
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Duration returns the wall-clock length of one interval step.
// Unknown intervals resolve to one hour.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Valid reports whether the interval is one of the supported values.
func (i Interval) Valid() bool {
	switch i {
	case Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d:
		return true
	}
	return false
}

// DataSource identifies where a historical dataset came from
type DataSource string

const (
	DataSourceReal DataSource = "real"
	DataSourceMock DataSource = "mock"
)

// PricePoint represents a single OHLCV sample for a pool
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	VolumeX   decimal.Decimal `json:"volumeX"`
	VolumeY   decimal.Decimal `json:"volumeY"`
}

// LiquidityPoint represents the liquidity state of a single bin at a point in time
type LiquidityPoint struct {
	Timestamp  time.Time       `json:"timestamp"`
	BinID      int             `json:"binId"`
	LiquidityX decimal.Decimal `json:"liquidityX"`
	LiquidityY decimal.Decimal `json:"liquidityY"`
	FeeRate    decimal.Decimal `json:"feeRate"`
	IsActive   bool            `json:"isActive"`
}

// TimeRange is a closed-start, open-end window
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DataMetadata describes a historical dataset
type DataMetadata struct {
	DataPoints int        `json:"dataPoints"`
	Coverage   float64    `json:"coverage"`
	Source     DataSource `json:"source"`
}

// HistoricalData is the full market dataset for one pool and range
type HistoricalData struct {
	PoolAddress     string           `json:"poolAddress"`
	TimeRange       TimeRange        `json:"timeRange"`
	PricePoints     []PricePoint     `json:"pricePoints"`
	LiquidityPoints []LiquidityPoint `json:"liquidityPoints"`
	Metadata        DataMetadata     `json:"metadata"`
}

// BinLiquidity is one bin's share of a simulated position
type BinLiquidity struct {
	BinID      int             `json:"binId"`
	LiquidityX decimal.Decimal `json:"liquidityX"`
	LiquidityY decimal.Decimal `json:"liquidityY"`
	Value      decimal.Decimal `json:"value"`
}

// FeesEarned accumulates fees accrued by a simulated position
type FeesEarned struct {
	TokenX   decimal.Decimal `json:"tokenX"`
	TokenY   decimal.Decimal `json:"tokenY"`
	USDValue decimal.Decimal `json:"usdValue"`
}

// PositionMetrics are per-tick derived statistics of a position
type PositionMetrics struct {
	APR             float64 `json:"apr"`
	ImpermanentLoss float64 `json:"impermanentLoss"`
	Utilization     float64 `json:"utilization"`
}

// PositionSnapshot is the simulated liquidity position state threaded
// through the simulation loop. It is mutated each tick by fee accrual
// and by action execution, never replaced mid-run.
type PositionSnapshot struct {
	Timestamp       time.Time       `json:"timestamp"`
	BinDistribution []BinLiquidity  `json:"binDistribution"`
	TotalValue      decimal.Decimal `json:"totalValue"`
	TokenXBalance   decimal.Decimal `json:"tokenXBalance"`
	TokenYBalance   decimal.Decimal `json:"tokenYBalance"`
	FeesEarned      FeesEarned      `json:"feesEarned"`
	Metrics         PositionMetrics `json:"metrics"`
}

// ActionType classifies a strategy action
type ActionType string

const (
	ActionInitialize      ActionType = "initialize"
	ActionRebalance       ActionType = "rebalance"
	ActionAddLiquidity    ActionType = "add_liquidity"
	ActionRemoveLiquidity ActionType = "remove_liquidity"
)

// ActionCosts breaks down the execution cost of one action
type ActionCosts struct {
	Gas      decimal.Decimal `json:"gas"`
	Slippage decimal.Decimal `json:"slippage"`
	Fees     decimal.Decimal `json:"fees"`
}

// Total returns gas + slippage + fees.
func (c ActionCosts) Total() decimal.Decimal {
	return c.Gas.Add(c.Slippage).Add(c.Fees)
}

// ActionResult records the outcome of executing an action
type ActionResult struct {
	Success          bool            `json:"success"`
	NewPositionValue decimal.Decimal `json:"newPositionValue"`
}

// ActionParameters carries action metadata
type ActionParameters struct {
	Reason string `json:"reason"`
}

// StrategyAction is one entry in the append-only action log
type StrategyAction struct {
	Timestamp  time.Time        `json:"timestamp"`
	Type       ActionType       `json:"type"`
	Parameters ActionParameters `json:"parameters"`
	Costs      ActionCosts      `json:"costs"`
	Result     ActionResult     `json:"result"`
}

// TimeSeriesPoint is one sample of the simulation output, one per
// historical price point. Timestamps are strictly increasing.
type TimeSeriesPoint struct {
	Timestamp      time.Time        `json:"timestamp"`
	PortfolioValue decimal.Decimal  `json:"portfolioValue"`
	BenchmarkValue decimal.Decimal  `json:"benchmarkValue"`
	Position       PositionSnapshot `json:"position"`
	Action         *StrategyAction  `json:"action,omitempty"`
	MarketPrice    decimal.Decimal  `json:"marketPrice"`
	MarketVolume   decimal.Decimal  `json:"marketVolume"`
}

// BacktestMetrics is the full return/risk/trading statistics report.
// Statistical fields are float64: annualization powers and the
// unbounded Sortino case do not fit fixed-point decimals.
type BacktestMetrics struct {
	TotalReturn      float64 `json:"totalReturn"`
	CompoundReturn   float64 `json:"compoundReturn"`
	AnnualizedReturn float64 `json:"annualizedReturn"`
	BenchmarkReturn  float64 `json:"benchmarkReturn"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpeRatio"`
	SortinoRatio     float64 `json:"sortinoRatio"`
	MaxDrawdown      float64 `json:"maxDrawdown"`
	MaxDrawdownDays  float64 `json:"maxDrawdownDays"`

	TotalTrades    int     `json:"totalTrades"`
	WinRate        float64 `json:"winRate"`
	ProfitFactor   float64 `json:"profitFactor"`
	AvgTradeReturn float64 `json:"avgTradeReturn"`
	LargestWin     float64 `json:"largestWin"`
	LargestLoss    float64 `json:"largestLoss"`

	TotalGasCosts      float64 `json:"totalGasCosts"`
	TotalSlippageCosts float64 `json:"totalSlippageCosts"`
	TotalFeeCosts      float64 `json:"totalFeeCosts"`
	TotalCosts         float64 `json:"totalCosts"`
	CostToReturn       float64 `json:"costToReturn"`

	AvgFeesEarned      float64 `json:"avgFeesEarned"`
	AvgAPR             float64 `json:"avgApr"`
	AvgUtilization     float64 `json:"avgUtilization"`
	RebalanceFrequency float64 `json:"rebalanceFrequency"`
	ILRecoveryScore    float64 `json:"ilRecoveryScore"`
}

// MarshalJSON encodes a non-finite Sortino ratio as null. JSON has no
// representation for infinities, and the ratio is unbounded whenever a
// run has no negative period returns.
func (m BacktestMetrics) MarshalJSON() ([]byte, error) {
	type metricsAlias BacktestMetrics
	if !math.IsInf(m.SortinoRatio, 0) && !math.IsNaN(m.SortinoRatio) {
		return json.Marshal(metricsAlias(m))
	}
	return json.Marshal(struct {
		metricsAlias
		SortinoRatio *float64 `json:"sortinoRatio"`
	}{metricsAlias: metricsAlias(m)})
}

// MetricsValidation is the diagnostic report from ValidateMetrics
type MetricsValidation struct {
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// PeriodHighlight marks the best or worst rolling window of a run
type PeriodHighlight struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Return float64   `json:"return"`
}

// BacktestSummary is the narrative portion of a result
type BacktestSummary struct {
	BestPeriod      PeriodHighlight `json:"bestPeriod"`
	WorstPeriod     PeriodHighlight `json:"worstPeriod"`
	KeyInsights     []string        `json:"keyInsights"`
	Recommendations []string        `json:"recommendations"`
}
