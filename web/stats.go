package web

import (
	"math"

	"tradesync/database"
)

// TradeSummary 交易汇总统计
type TradeSummary struct {
	TotalPnL        float64   `json:"total_pnl"`
	TotalFees       float64   `json:"total_fees"`
	WinRate         float64   `json:"win_rate"`
	WinCount        int       `json:"win_count"`
	LossCount       int       `json:"loss_count"`
	TotalTrades     int       `json:"total_trades"`
	EquityCurve     []float64 `json:"equity_curve"`
	CurrentStreak   int       `json:"current_streak"`
	MaxDrawdown     float64   `json:"max_drawdown"`
	ProfitFactor    float64   `json:"profit_factor"`
	KellyCriterion  float64   `json:"kelly_criterion"`
	SQN             float64   `json:"sqn"`
	ExpectedValue   float64   `json:"expected_value"`
	RiskRewardRatio float64   `json:"risk_reward_ratio"`
}

// buildSummary 从按入场时间排序的平仓记录计算全套统计指标
func buildSummary(trades []*database.Trade) *TradeSummary {
	summary := &TradeSummary{EquityCurve: []float64{}}
	if len(trades) == 0 {
		return summary
	}

	pnls := make([]float64, len(trades))
	for i, t := range trades {
		pnls[i] = t.PnLNet
		summary.TotalPnL += t.PnLNet
		summary.TotalFees += t.Fees
		if t.PnLNet > 0 {
			summary.WinCount++
		} else if t.PnLNet < 0 {
			summary.LossCount++
		}
	}
	summary.TotalTrades = len(trades)
	summary.WinRate = float64(summary.WinCount) / float64(summary.TotalTrades) * 100

	// 权益曲线和最大回撤
	curve := make([]float64, len(pnls))
	cumulative := 0.0
	runningMax := math.Inf(-1)
	for i, pnl := range pnls {
		cumulative += pnl
		curve[i] = cumulative
		if cumulative > runningMax {
			runningMax = cumulative
		}
		if dd := cumulative - runningMax; dd < summary.MaxDrawdown {
			summary.MaxDrawdown = dd
		}
	}
	summary.EquityCurve = curve

	// 当前连胜/连败：从最新一笔往回数同向的
	for i := len(pnls) - 1; i >= 0; i-- {
		pnl := pnls[i]
		if (summary.CurrentStreak >= 0 && pnl > 0) || (summary.CurrentStreak < 0 && pnl < 0) {
			if pnl > 0 {
				summary.CurrentStreak++
			} else {
				summary.CurrentStreak--
			}
		} else {
			break
		}
	}

	var totalWins, totalLosses float64
	for _, pnl := range pnls {
		if pnl > 0 {
			totalWins += pnl
		} else if pnl < 0 {
			totalLosses += -pnl
		}
	}
	if totalLosses > 0 {
		summary.ProfitFactor = totalWins / totalLosses
	}

	var avgWin, avgLoss float64
	if summary.WinCount > 0 {
		avgWin = totalWins / float64(summary.WinCount)
	}
	if summary.LossCount > 0 {
		avgLoss = totalLosses / float64(summary.LossCount)
	}
	winProb := float64(summary.WinCount) / float64(summary.TotalTrades)
	lossProb := float64(summary.LossCount) / float64(summary.TotalTrades)

	if avgLoss > 0 && avgWin > 0 {
		summary.KellyCriterion = (winProb*avgWin - lossProb*avgLoss) / avgWin
	}
	summary.ExpectedValue = winProb*avgWin - lossProb*avgLoss
	if avgLoss > 0 {
		summary.RiskRewardRatio = avgWin / avgLoss
	}

	// 系统质量数：平均盈亏除以样本标准差再乘以笔数的平方根
	mean := summary.TotalPnL / float64(summary.TotalTrades)
	if summary.TotalTrades > 1 {
		variance := 0.0
		for _, pnl := range pnls {
			variance += (pnl - mean) * (pnl - mean)
		}
		variance /= float64(summary.TotalTrades - 1)
		if std := math.Sqrt(variance); std > 0 {
			summary.SQN = mean / std * math.Sqrt(float64(summary.TotalTrades))
		}
	}

	return summary
}
