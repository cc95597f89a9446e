package etl

import (
	"math"
	"testing"

	"tradesync/exchange/binance"
)

func TestSummarizeIncome(t *testing.T) {
	records := []*binance.IncomeRecord{
		{Symbol: "BTCUSDT", IncomeType: "COMMISSION", Income: -0.5},
		{Symbol: "BTCUSDT", IncomeType: "FUNDING_FEE", Income: -0.2},
		{Symbol: "BTCUSDT", IncomeType: "REALIZED_PNL", Income: 100},
		{Symbol: "ETHUSDT", IncomeType: "COMMISSION", Income: -0.1},
		{IncomeType: "TRANSFER", TranID: 42, Time: 1000, Asset: "USDT", Income: 500},
	}

	summary := SummarizeIncome(records, nil)

	if len(summary.Symbols) != 2 || summary.Symbols[0] != "BTCUSDT" || summary.Symbols[1] != "ETHUSDT" {
		t.Errorf("币种集合期望 [BTCUSDT ETHUSDT]，实际 %v", summary.Symbols)
	}

	// REALIZED_PNL 不计入成本
	if got := summary.FeeTotals["BTCUSDT"]; math.Abs(got+0.7) > 1e-9 {
		t.Errorf("BTCUSDT 成本期望 -0.7，实际 %f", got)
	}
	if got := summary.FeeTotals["ETHUSDT"]; math.Abs(got+0.1) > 1e-9 {
		t.Errorf("ETHUSDT 成本期望 -0.1，实际 %f", got)
	}

	if len(summary.Transfers) != 1 || summary.Transfers[0].TranID != 42 {
		t.Errorf("划转记录提取错误: %+v", summary.Transfers)
	}
}

func TestSummarizeIncomeExtraTypes(t *testing.T) {
	records := []*binance.IncomeRecord{
		{Symbol: "BTCUSDT", IncomeType: "COMMISSION", Income: -0.5},
		{Symbol: "BTCUSDT", IncomeType: "INSURANCE_CLEAR", Income: -3},
	}

	// 不配置额外类型时不计入
	summary := SummarizeIncome(records, nil)
	if got := summary.FeeTotals["BTCUSDT"]; math.Abs(got+0.5) > 1e-9 {
		t.Errorf("未配置额外类型时成本期望 -0.5，实际 %f", got)
	}

	// 配置后计入，类型大小写不敏感
	summary = SummarizeIncome(records, []string{" insurance_clear "})
	if got := summary.FeeTotals["BTCUSDT"]; math.Abs(got+3.5) > 1e-9 {
		t.Errorf("配置额外类型后成本期望 -3.5，实际 %f", got)
	}
}

func TestSummarizeIncomeEmpty(t *testing.T) {
	summary := SummarizeIncome(nil, nil)
	if len(summary.Symbols) != 0 || len(summary.Transfers) != 0 {
		t.Errorf("空输入应返回空汇总: %+v", summary)
	}
}
