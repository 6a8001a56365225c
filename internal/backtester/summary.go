// Package backtester provides narrative summary generation.
package backtester

import (
	"fmt"

	"github.com/solphase/dlmm-backend/pkg/types"
)

// buildSummary scans rolling windows for the best and worst periods
// and derives qualitative insights from thresholded metrics.
func buildSummary(series []types.TimeSeriesPoint, metrics *types.BacktestMetrics) *types.BacktestSummary {
	summary := &types.BacktestSummary{}
	if len(series) == 0 || metrics == nil {
		return summary
	}

	best, worst := scanPeriods(series)
	summary.BestPeriod = best
	summary.WorstPeriod = worst

	if metrics.SharpeRatio > 1 {
		summary.KeyInsights = append(summary.KeyInsights,
			fmt.Sprintf("Strong risk-adjusted returns (Sharpe %.2f)", metrics.SharpeRatio))
	}
	if metrics.MaxDrawdown > 0.20 {
		summary.KeyInsights = append(summary.KeyInsights,
			fmt.Sprintf("Max drawdown of %.1f%% indicates elevated downside risk", metrics.MaxDrawdown*100))
		summary.Recommendations = append(summary.Recommendations,
			"Consider a tighter rebalancing threshold or a wider bin range to reduce drawdowns")
	}
	if metrics.TotalTrades > 1 && metrics.WinRate < 0.40 {
		summary.KeyInsights = append(summary.KeyInsights,
			fmt.Sprintf("Win rate of %.0f%% is below 40%%", metrics.WinRate*100))
		summary.Recommendations = append(summary.Recommendations,
			"Raise the minimum profit threshold to filter out low-conviction rebalances")
	}
	if metrics.RebalanceFrequency > 2 {
		summary.KeyInsights = append(summary.KeyInsights,
			fmt.Sprintf("Rebalancing %.1f times per day drives significant execution costs", metrics.RebalanceFrequency))
		summary.Recommendations = append(summary.Recommendations,
			"Reduce rebalance frequency; costs are eroding fee income")
	}

	return summary
}

// scanPeriods finds the best and worst rolling windows by fractional
// return. Window size is 30 samples or a quarter of the series,
// whichever is smaller.
func scanPeriods(series []types.TimeSeriesPoint) (best, worst types.PeriodHighlight) {
	window := 30
	if quarter := len(series) / 4; quarter < window {
		window = quarter
	}
	if window < 1 {
		window = 1
	}

	bestReturn := 0.0
	worstReturn := 0.0
	first := true

	for i := 0; i+window < len(series); i++ {
		startVal, _ := series[i].PortfolioValue.Float64()
		endVal, _ := series[i+window].PortfolioValue.Float64()
		if startVal <= 0 {
			continue
		}
		ret := (endVal - startVal) / startVal

		if first || ret > bestReturn {
			bestReturn = ret
			best = types.PeriodHighlight{
				Start:  series[i].Timestamp,
				End:    series[i+window].Timestamp,
				Return: ret,
			}
		}
		if first || ret < worstReturn {
			worstReturn = ret
			worst = types.PeriodHighlight{
				Start:  series[i].Timestamp,
				End:    series[i+window].Timestamp,
				Return: ret,
			}
		}
		first = false
	}

	return best, worst
}
