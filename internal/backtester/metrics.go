// Package backtester provides backtest performance metrics calculation.
package backtester

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/solphase/dlmm-backend/pkg/types"
)

// DefaultRiskFreeRate is the annual risk-free rate used when callers
// do not supply one.
const DefaultRiskFreeRate = 0.05

// daysPerYear is the annualization base for returns and volatility.
const daysPerYear = 365.0

// MetricsCalculator turns a simulated time series and action log into
// a return/risk/trading statistics report. Pure and stateless.
type MetricsCalculator struct{}

// NewMetricsCalculator creates a metrics calculator.
func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// Compute produces the full metrics report. An empty series yields an
// all-zero report, never an error.
func (mc *MetricsCalculator) Compute(
	series []types.TimeSeriesPoint,
	actions []types.StrategyAction,
	initialCapital decimal.Decimal,
	riskFreeRate float64,
) *types.BacktestMetrics {
	metrics := &types.BacktestMetrics{}
	if len(series) == 0 {
		return metrics
	}

	capital, _ := initialCapital.Float64()
	portfolio := portfolioValues(series)
	benchmark := benchmarkValues(series)
	returns := periodReturns(portfolio)

	daysElapsed := math.Max(1, series[len(series)-1].Timestamp.Sub(series[0].Timestamp).Hours()/24)

	if capital > 0 {
		metrics.TotalReturn = (portfolio[len(portfolio)-1] - capital) / capital
	}
	metrics.CompoundReturn = compoundReturn(returns)
	metrics.AnnualizedReturn = math.Pow(1+metrics.CompoundReturn, daysPerYear/daysElapsed) - 1
	metrics.BenchmarkReturn = totalReturnOf(benchmark)

	stdDev := sampleStdDev(returns)
	metrics.Volatility = stdDev * math.Sqrt(daysPerYear)

	meanReturn := mean(returns)
	dailyRiskFree := riskFreeRate / daysPerYear
	if stdDev > 0 {
		metrics.SharpeRatio = (meanReturn - dailyRiskFree) / stdDev
	}
	metrics.SortinoRatio = sortino(returns, meanReturn, dailyRiskFree)

	metrics.MaxDrawdown, metrics.MaxDrawdownDays = maxDrawdown(series, portfolio)

	mc.tradingMetrics(metrics, actions)
	mc.costMetrics(metrics, actions)
	mc.liquidityMetrics(metrics, series, actions, capital, daysElapsed)

	return metrics
}

// ValidateMetrics produces diagnostic warnings for suspicious values
// and hard errors for numeric degeneracy. It never blocks the report.
func (mc *MetricsCalculator) ValidateMetrics(m *types.BacktestMetrics) types.MetricsValidation {
	v := types.MetricsValidation{}
	if m == nil {
		v.Errors = append(v.Errors, "metrics object is nil")
		return v
	}

	if math.Abs(m.TotalReturn) > 10 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("total return %.1f%% exceeds 1000%%", m.TotalReturn*100))
	}
	if m.SharpeRatio > 5 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("Sharpe ratio %.2f is implausibly high", m.SharpeRatio))
	}
	if m.MaxDrawdown > 0.95 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("max drawdown %.1f%% exceeds 95%%", m.MaxDrawdown*100))
	}
	if math.IsInf(m.SortinoRatio, 1) {
		v.Warnings = append(v.Warnings, "Sortino ratio is unbounded (no negative returns)")
	}

	checks := map[string]float64{
		"totalReturn":      m.TotalReturn,
		"compoundReturn":   m.CompoundReturn,
		"annualizedReturn": m.AnnualizedReturn,
		"volatility":       m.Volatility,
		"sharpeRatio":      m.SharpeRatio,
		"maxDrawdown":      m.MaxDrawdown,
		"winRate":          m.WinRate,
		"profitFactor":     m.ProfitFactor,
		"costToReturn":     m.CostToReturn,
	}
	for name, value := range checks {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			v.Errors = append(v.Errors, fmt.Sprintf("%s is not finite", name))
		}
	}
	if math.IsNaN(m.SortinoRatio) {
		v.Errors = append(v.Errors, "sortinoRatio is NaN")
	}

	return v
}

// tradingMetrics computes win rate, profit factor and trade extremes
// from successful rebalance actions.
func (mc *MetricsCalculator) tradingMetrics(metrics *types.BacktestMetrics, actions []types.StrategyAction) {
	rebalances := make([]types.StrategyAction, 0, len(actions))
	for _, a := range actions {
		if a.Type == types.ActionRebalance && a.Result.Success {
			rebalances = append(rebalances, a)
		}
	}
	metrics.TotalTrades = len(rebalances)
	if len(rebalances) < 2 {
		return
	}

	var wins int
	var grossProfit, grossLoss float64
	var returnSum float64
	deltas := 0

	for i := 1; i < len(rebalances); i++ {
		prev, _ := rebalances[i-1].Result.NewPositionValue.Float64()
		curr, _ := rebalances[i].Result.NewPositionValue.Float64()
		delta := curr - prev
		deltas++

		if delta > 0 {
			wins++
			grossProfit += delta
			if delta > metrics.LargestWin {
				metrics.LargestWin = delta
			}
		} else if delta < 0 {
			grossLoss += -delta
			if -delta > metrics.LargestLoss {
				metrics.LargestLoss = -delta
			}
		}
		if prev > 0 {
			returnSum += delta / prev
		}
	}

	metrics.WinRate = float64(wins) / float64(deltas)
	metrics.AvgTradeReturn = returnSum / float64(deltas)
	if grossLoss > 0 {
		metrics.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		metrics.ProfitFactor = grossProfit
	}
}

// costMetrics sums execution costs across all actions.
func (mc *MetricsCalculator) costMetrics(metrics *types.BacktestMetrics, actions []types.StrategyAction) {
	var gas, slippage, fees decimal.Decimal
	for _, a := range actions {
		gas = gas.Add(a.Costs.Gas)
		slippage = slippage.Add(a.Costs.Slippage)
		fees = fees.Add(a.Costs.Fees)
	}
	metrics.TotalGasCosts, _ = gas.Float64()
	metrics.TotalSlippageCosts, _ = slippage.Float64()
	metrics.TotalFeeCosts, _ = fees.Float64()
	metrics.TotalCosts = metrics.TotalGasCosts + metrics.TotalSlippageCosts + metrics.TotalFeeCosts

	if metrics.TotalReturn != 0 {
		metrics.CostToReturn = metrics.TotalCosts / math.Abs(metrics.TotalReturn)
	}
}

// liquidityMetrics computes the DLMM-specific averages across the series.
func (mc *MetricsCalculator) liquidityMetrics(metrics *types.BacktestMetrics, series []types.TimeSeriesPoint, actions []types.StrategyAction, capital, daysElapsed float64) {
	var feeSum, aprSum, utilSum float64
	for _, pt := range series {
		fees, _ := pt.Position.FeesEarned.USDValue.Float64()
		feeSum += fees
		aprSum += pt.Position.Metrics.APR
		utilSum += pt.Position.Metrics.Utilization
	}
	n := float64(len(series))
	metrics.AvgFeesEarned = feeSum / n
	metrics.AvgAPR = aprSum / n
	metrics.AvgUtilization = utilSum / n

	rebalances := 0
	for _, a := range actions {
		if a.Type == types.ActionRebalance {
			rebalances++
		}
	}
	metrics.RebalanceFrequency = float64(rebalances) / daysElapsed

	// Recovery score: how much of the divergence loss the accrued fees
	// covered, capped at 1.
	last := series[len(series)-1]
	totalFees, _ := last.Position.FeesEarned.USDValue.Float64()
	ilValue := math.Abs(last.Position.Metrics.ImpermanentLoss) * capital
	if ilValue <= 0 {
		metrics.ILRecoveryScore = 1
	} else {
		metrics.ILRecoveryScore = math.Min(1, totalFees/ilValue)
	}
}

// periodReturns computes (V[i]-V[i-1])/V[i-1], skipping entries whose
// previous value is non-positive.
func periodReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	return returns
}

// compoundReturn is the product of (1+r) over all period returns, minus 1.
func compoundReturn(returns []float64) float64 {
	product := 1.0
	for _, r := range returns {
		product *= 1 + r
	}
	return product - 1
}

// totalReturnOf is the fractional change from the first to the last value.
func totalReturnOf(values []float64) float64 {
	if len(values) == 0 || values[0] <= 0 {
		return 0
	}
	return (values[len(values)-1] - values[0]) / values[0]
}

// sortino computes the Sortino ratio: the Sharpe numerator over the
// annualized downside deviation. Squared negative returns are averaged
// over all returns, then scaled by sqrt(365). Returns +Inf when there
// are no negative returns.
func sortino(returns []float64, meanReturn, dailyRiskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sumSquares float64
	negatives := 0
	for _, r := range returns {
		if r < 0 {
			sumSquares += r * r
			negatives++
		}
	}
	if negatives == 0 {
		return math.Inf(1)
	}
	downsideDev := math.Sqrt(sumSquares/float64(len(returns))) * math.Sqrt(daysPerYear)
	if downsideDev == 0 {
		return 0
	}
	return (meanReturn - dailyRiskFree) / downsideDev
}

// maxDrawdown tracks the running peak and returns the deepest
// peak-to-trough decline as a fraction, plus its duration in days.
func maxDrawdown(series []types.TimeSeriesPoint, values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	peak := values[0]
	peakIdx := 0
	var maxDD, maxDays float64

	for i, v := range values {
		if v > peak {
			peak = v
			peakIdx = i
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
			maxDays = series[i].Timestamp.Sub(series[peakIdx].Timestamp).Hours() / 24
		}
	}
	return maxDD, maxDays
}

// portfolioValues extracts the portfolio value series as floats.
func portfolioValues(series []types.TimeSeriesPoint) []float64 {
	values := make([]float64, len(series))
	for i, pt := range series {
		values[i], _ = pt.PortfolioValue.Float64()
	}
	return values
}

// benchmarkValues extracts the benchmark value series as floats.
func benchmarkValues(series []types.TimeSeriesPoint) []float64 {
	values := make([]float64, len(series))
	for i, pt := range series {
		values[i], _ = pt.BenchmarkValue.Float64()
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStdDev is the sample standard deviation (n-1 denominator).
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sumSquares float64
	for _, v := range values {
		diff := v - m
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}
