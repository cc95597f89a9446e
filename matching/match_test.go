package matching

import (
	"math"
	"testing"
)

func longEntry(orderID int64, price, qty float64, ts int64) Fill {
	return Fill{
		Symbol: "BTCUSDT", OrderID: orderID, Side: "BUY", PositionSide: "LONG",
		OrderType: "LIMIT", Price: price, Qty: qty, Time: ts,
	}
}

func longExit(orderID int64, price, qty float64, ts int64) Fill {
	return Fill{
		Symbol: "BTCUSDT", OrderID: orderID, Side: "SELL", PositionSide: "LONG",
		OrderType: "LIMIT", Price: price, Qty: qty, Time: ts,
	}
}

func shortEntry(orderID int64, price, qty float64, ts int64) Fill {
	return Fill{
		Symbol: "BTCUSDT", OrderID: orderID, Side: "SELL", PositionSide: "SHORT",
		OrderType: "LIMIT", Price: price, Qty: qty, Time: ts,
	}
}

func shortExit(orderID int64, price, qty float64, ts int64) Fill {
	return Fill{
		Symbol: "BTCUSDT", OrderID: orderID, Side: "BUY", PositionSide: "SHORT",
		OrderType: "LIMIT", Price: price, Qty: qty, Time: ts,
	}
}

func TestMatchFIFOOrder(t *testing.T) {
	// 两笔开仓 2 + 3，一笔平仓 4：先吃最早的 2，再从第二笔吃 2
	fills := []Fill{
		longEntry(1, 100, 2, 0),
		longEntry(2, 110, 3, 1000),
		longExit(3, 120, 4, 2000),
	}

	positions, remainder := Match(fills)
	if len(positions) != 2 {
		t.Fatalf("期望 2 笔配对，实际 %d", len(positions))
	}

	if positions[0].EntryOrderID != 1 || math.Abs(positions[0].Qty-2) > QtyEpsilon {
		t.Errorf("第一笔应消耗最早的开仓: EntryOrderID=%d Qty=%f", positions[0].EntryOrderID, positions[0].Qty)
	}
	if positions[1].EntryOrderID != 2 || math.Abs(positions[1].Qty-2) > QtyEpsilon {
		t.Errorf("第二笔应从第二手开仓消耗: EntryOrderID=%d Qty=%f", positions[1].EntryOrderID, positions[1].Qty)
	}

	// 剩余 1 手未平
	if got := TotalQty(remainder.Long); math.Abs(got-1) > QtyEpsilon {
		t.Errorf("剩余多头数量期望 1，实际 %f", got)
	}
}

func TestMatchQuantityConservation(t *testing.T) {
	fills := []Fill{
		longEntry(1, 100, 5, 0),
		longEntry(2, 101, 2.5, 1000),
		longExit(3, 102, 3, 2000),
		longExit(4, 103, 1.5, 3000),
	}

	positions, remainder := Match(fills)

	var closedQty float64
	for _, p := range positions {
		closedQty += p.Qty
	}
	openQty := TotalQty(remainder.Long)

	if math.Abs(closedQty+openQty-7.5) > QtyEpsilon {
		t.Errorf("数量不守恒: 已平 %f + 未平 %f != 7.5", closedQty, openQty)
	}
}

func TestMatchLongPnL(t *testing.T) {
	// 100 手 10 开 12 平，毛利 200，手续费 -1 后净利 199
	fills := []Fill{
		longEntry(1, 10, 100, 0),
		longExit(2, 12, 100, 100_000),
	}

	positions, _ := Match(fills)
	if len(positions) != 1 {
		t.Fatalf("期望 1 笔配对，实际 %d", len(positions))
	}
	p := positions[0]
	if math.Abs(p.PnLBeforeFees-200) > 1e-9 {
		t.Errorf("毛盈亏期望 200，实际 %f", p.PnLBeforeFees)
	}

	AllocateFees(positions, -1.0)
	if math.Abs(p.Fees+1.0) > 1e-9 {
		t.Errorf("手续费期望 -1.0，实际 %f", p.Fees)
	}
	if math.Abs(p.PnL-199) > 1e-9 {
		t.Errorf("净盈亏期望 199，实际 %f", p.PnL)
	}
}

func TestMatchShortPnL(t *testing.T) {
	// 空头方向：高开低平为盈利
	fills := []Fill{
		shortEntry(1, 12, 10, 0),
		shortExit(2, 10, 10, 1000),
	}

	positions, _ := Match(fills)
	if len(positions) != 1 {
		t.Fatalf("期望 1 笔配对，实际 %d", len(positions))
	}
	if math.Abs(positions[0].PnLBeforeFees-20) > 1e-9 {
		t.Errorf("空头毛盈亏期望 20，实际 %f", positions[0].PnLBeforeFees)
	}
	if positions[0].Side != SideShort {
		t.Errorf("方向期望 SHORT，实际 %s", positions[0].Side)
	}
}

func TestMatchBothModeAsLong(t *testing.T) {
	// 单向模式按多头处理
	fills := []Fill{
		{Symbol: "ETHUSDT", OrderID: 1, Side: "BUY", PositionSide: "BOTH", Price: 2000, Qty: 1, Time: 0},
		{Symbol: "ETHUSDT", OrderID: 2, Side: "SELL", PositionSide: "BOTH", Price: 2100, Qty: 1, Time: 1000},
	}

	positions, _ := Match(fills)
	if len(positions) != 1 {
		t.Fatalf("期望 1 笔配对，实际 %d", len(positions))
	}
	if positions[0].Side != SideLong {
		t.Errorf("BOTH 模式应按多头配对，实际 %s", positions[0].Side)
	}
}

func TestMatchExitWithoutEntryDropped(t *testing.T) {
	// 窗口内没有对应开仓的平单直接丢弃，不产生负仓位
	fills := []Fill{
		longExit(1, 100, 5, 0),
	}

	positions, remainder := Match(fills)
	if len(positions) != 0 {
		t.Errorf("无开仓可平时不应产生配对，实际 %d 笔", len(positions))
	}
	if len(remainder.Long) != 0 || len(remainder.Short) != 0 {
		t.Errorf("队列应为空")
	}
}

func TestAllocateFeesProportional(t *testing.T) {
	fills := []Fill{
		longEntry(1, 100, 1, 0),
		longEntry(2, 100, 1, 0),
		longExit(3, 110, 1, 1000),  // 权重 1000
		longExit(4, 110, 1, 3000),  // 权重 3000
	}

	positions, _ := Match(fills)
	if len(positions) != 2 {
		t.Fatalf("期望 2 笔配对，实际 %d", len(positions))
	}

	AllocateFees(positions, -4.0)
	if math.Abs(positions[0].Fees+1.0) > 1e-9 {
		t.Errorf("权重小的手续费期望 -1.0，实际 %f", positions[0].Fees)
	}
	if math.Abs(positions[1].Fees+3.0) > 1e-9 {
		t.Errorf("权重大的手续费期望 -3.0，实际 %f", positions[1].Fees)
	}

	// 分摊合计等于总手续费
	total := positions[0].Fees + positions[1].Fees
	if math.Abs(total+4.0) > 1e-9 {
		t.Errorf("分摊合计期望 -4.0，实际 %f", total)
	}
}

func TestAllocateFeesZeroWeight(t *testing.T) {
	// 同一毫秒开平，权重全为零，平均分摊
	fills := []Fill{
		longEntry(1, 100, 1, 0),
		longEntry(2, 100, 1, 0),
		longExit(3, 110, 2, 0),
	}

	positions, _ := Match(fills)
	if len(positions) != 2 {
		t.Fatalf("期望 2 笔配对，实际 %d", len(positions))
	}

	AllocateFees(positions, -2.0)
	for i, p := range positions {
		if math.Abs(p.Fees+1.0) > 1e-9 {
			t.Errorf("第 %d 笔应平均分摊 -1.0，实际 %f", i, p.Fees)
		}
	}
}

func TestIsLiquidationOrder(t *testing.T) {
	cases := []struct {
		clientOrderID string
		orderType     string
		want          bool
	}{
		{"autoclose-123", "LIMIT", true},
		{"AUTOCLOSE-456", "LIMIT", true},
		{"x-adl_autoclose-1", "LIMIT", true},
		{"web_abc", "LIQUIDATION", true},
		{"web_abc", "LIMIT", false},
		{"", "MARKET", false},
	}

	for _, c := range cases {
		if got := IsLiquidationOrder(c.clientOrderID, c.orderType); got != c.want {
			t.Errorf("IsLiquidationOrder(%q, %q) = %v, 期望 %v", c.clientOrderID, c.orderType, got, c.want)
		}
	}
}

func TestMatchLiquidationFlag(t *testing.T) {
	fills := []Fill{
		longEntry(1, 100, 1, 0),
		{Symbol: "BTCUSDT", OrderID: 2, ClientOrderID: "autoclose-123", Side: "SELL",
			PositionSide: "LONG", OrderType: "LIMIT", Price: 80, Qty: 1, Time: 1000},
	}

	positions, _ := Match(fills)
	if len(positions) != 1 {
		t.Fatalf("期望 1 笔配对，实际 %d", len(positions))
	}
	if !positions[0].IsLiquidation {
		t.Errorf("强平单应标记 IsLiquidation")
	}
}
