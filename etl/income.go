package etl

import (
	"sort"
	"strings"

	"tradesync/database"
	"tradesync/exchange/binance"
)

// IncomeSummary 一轮收入流水的汇总结果
type IncomeSummary struct {
	Symbols   []string                   // 窗口内有成交的币种
	FeeTotals map[string]float64         // 按币种汇总的成本（手续费+资金费+额外类型）
	Transfers []*database.TransferIncome // 划转记录
}

// SummarizeIncome 单次遍历汇总收入流水
// 成本类型集合 = {COMMISSION, FUNDING_FEE} ∪ 配置的额外类型
// 一次拿到币种集合和费用合计，省掉按币种逐个查询的网络开销
func SummarizeIncome(records []*binance.IncomeRecord, extraLossTypes []string) *IncomeSummary {
	tracked := map[string]bool{
		"COMMISSION":  true,
		"FUNDING_FEE": true,
	}
	for _, t := range extraLossTypes {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			tracked[t] = true
		}
	}

	symbolSet := make(map[string]bool)
	feeTotals := make(map[string]float64)
	var transfers []*database.TransferIncome

	for _, rec := range records {
		if rec.Symbol != "" {
			symbolSet[rec.Symbol] = true
		}

		incomeType := strings.ToUpper(rec.IncomeType)
		if tracked[incomeType] && rec.Symbol != "" {
			feeTotals[rec.Symbol] += rec.Income
		}

		if incomeType == "TRANSFER" {
			transfers = append(transfers, &database.TransferIncome{
				TranID: rec.TranID,
				TimeMs: rec.Time,
				Asset:  rec.Asset,
				Income: rec.Income,
			})
		}
	}

	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	return &IncomeSummary{
		Symbols:   symbols,
		FeeTotals: feeTotals,
		Transfers: transfers,
	}
}
