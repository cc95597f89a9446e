package etl

import (
	"math"
	"testing"

	"tradesync/matching"
)

func TestFormatHoldingTime(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{45, "45秒"},
		{60, "1分0秒"},
		{125, "2分5秒"},
		{3600, "1小时0分"},
		{3725, "1小时2分"},
		{86400, "1天0小时"},
		{90000, "1天1小时"},
	}

	for _, c := range cases {
		if got := FormatHoldingTime(c.seconds); got != c.want {
			t.Errorf("FormatHoldingTime(%d) = %q, 期望 %q", c.seconds, got, c.want)
		}
	}
}

func TestBaseSymbol(t *testing.T) {
	if got := BaseSymbol("BTCUSDT"); got != "BTC" {
		t.Errorf("BaseSymbol(BTCUSDT) = %q, 期望 BTC", got)
	}
	if got := BaseSymbol("ETH"); got != "ETH" {
		t.Errorf("无后缀时应原样返回，实际 %q", got)
	}
}

func TestCloseTypeOf(t *testing.T) {
	if got := closeTypeOf(true, 100); got != CloseTypeLiquidation {
		t.Errorf("强平优先于盈亏分类，实际 %q", got)
	}
	if got := closeTypeOf(false, 1); got != CloseTypeTakeProfit {
		t.Errorf("盈利应为止盈，实际 %q", got)
	}
	if got := closeTypeOf(false, -1); got != CloseTypeStopLoss {
		t.Errorf("亏损应为止损，实际 %q", got)
	}
	if got := closeTypeOf(false, 0); got != CloseTypeStopLoss {
		t.Errorf("零盈亏按止损处理，实际 %q", got)
	}
}

func TestBuildTradeRow(t *testing.T) {
	p := &matching.ClosedPosition{
		Symbol:        "BTCUSDT",
		Side:          matching.SideLong,
		EntryPrice:    100,
		ExitPrice:     110,
		EntryTime:     1700000000000,
		ExitTime:      1700000090000,
		Qty:           2,
		PnLBeforeFees: 20,
		Fees:          -0.5,
		PnL:           19.5,
		EntryOrderID:  11,
		ExitOrderID:   12,
	}

	row := buildTradeRow(3, p, 90)
	if row.No != 3 {
		t.Errorf("编号期望 3，实际 %d", row.No)
	}
	if row.Symbol != "BTC" {
		t.Errorf("币种应去掉 USDT 后缀，实际 %q", row.Symbol)
	}
	if row.HoldingTime != "1分30秒" {
		t.Errorf("持仓时长期望 1分30秒，实际 %q", row.HoldingTime)
	}
	if math.Abs(row.EntryAmount-200) > 1e-9 {
		t.Errorf("入场金额期望 200，实际 %f", row.EntryAmount)
	}
	if math.Abs(row.PriceChangePct-(100-90)/90.0) > 1e-9 {
		t.Errorf("涨跌幅计算错误: %f", row.PriceChangePct)
	}
	if row.CloseType != CloseTypeTakeProfit {
		t.Errorf("盈利仓位应为止盈，实际 %q", row.CloseType)
	}
	if row.ReturnRate != "9.75%" {
		t.Errorf("收益率期望 9.75%%，实际 %q", row.ReturnRate)
	}
	if row.ExitOrderID != "12" {
		t.Errorf("出场订单号期望 \"12\"，实际 %q", row.ExitOrderID)
	}
}

func TestBuildTradeRowMissingOpenPrice(t *testing.T) {
	p := &matching.ClosedPosition{
		Symbol: "BTCUSDT", Side: matching.SideLong,
		EntryPrice: 100, ExitPrice: 101,
		EntryTime: 0, ExitTime: 1000, Qty: 1, PnL: 1,
	}

	row := buildTradeRow(1, p, 0)
	if row.PriceChangePct != 0 {
		t.Errorf("开盘价缺失时涨跌幅应为 0，实际 %f", row.PriceChangePct)
	}
}
