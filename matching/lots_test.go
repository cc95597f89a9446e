package matching

import (
	"math"
	"testing"
)

func TestTrimLotsToQtyNoExcess(t *testing.T) {
	lots := []OpenLot{{Price: 100, Qty: 2, Time: 0, OrderID: 1}}
	out := TrimLotsToQty(lots, 2)
	if len(out) != 1 || math.Abs(out[0].Qty-2) > QtyEpsilon {
		t.Errorf("数量一致时不应裁剪: %+v", out)
	}
}

func TestTrimLotsToQtyDropsOldest(t *testing.T) {
	// 本地重放 2+3+1 = 6，真实持仓 3.5：裁掉最老的 2 和第二手的 0.5
	lots := []OpenLot{
		{Price: 100, Qty: 2, Time: 0, OrderID: 1},
		{Price: 110, Qty: 3, Time: 1000, OrderID: 2},
		{Price: 120, Qty: 1, Time: 2000, OrderID: 3},
	}

	out := TrimLotsToQty(lots, 3.5)
	if got := TotalQty(out); math.Abs(got-3.5) > QtyEpsilon {
		t.Fatalf("裁剪后数量期望 3.5，实际 %f", got)
	}
	if out[0].OrderID != 2 {
		t.Errorf("应从队首裁剪，剩余队首期望订单 2，实际 %d", out[0].OrderID)
	}
	if math.Abs(out[0].Qty-2.5) > QtyEpsilon {
		t.Errorf("第二手应剩 2.5，实际 %f", out[0].Qty)
	}
}

func TestTrimLotsToQtyZeroTarget(t *testing.T) {
	lots := []OpenLot{
		{Price: 100, Qty: 2, Time: 0, OrderID: 1},
		{Price: 110, Qty: 1, Time: 1000, OrderID: 2},
	}

	out := TrimLotsToQty(lots, 0)
	if len(out) != 0 {
		t.Errorf("目标为 0 时应清空队列，实际剩 %d 手", len(out))
	}
}
