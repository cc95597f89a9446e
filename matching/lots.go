package matching

// 持仓提取走和撮合同一套 FIFO 规则，但只关心剩下的开仓队列

// ConsumeOpenLots 重放成交序列，返回两侧未平的开仓队列（不计算盈亏）
func ConsumeOpenLots(fills []Fill) *Remainder {
	_, remainder := Match(fills)
	return remainder
}

// TotalQty 队列中的数量合计
func TotalQty(lots []OpenLot) float64 {
	var total float64
	for _, lot := range lots {
		total += lot.Qty
	}
	return total
}

// TrimLotsToQty 把队列裁剪到目标数量
// 本地重放可能比交易所的真实净持仓多（窗口外的历史平单没看到），从队首裁掉多出的部分
func TrimLotsToQty(lots []OpenLot, target float64) []OpenLot {
	excess := TotalQty(lots) - target
	if excess <= QtyEpsilon {
		return lots
	}

	out := lots
	for excess > QtyEpsilon && len(out) > 0 {
		head := &out[0]
		if head.Qty <= excess+QtyEpsilon {
			excess -= head.Qty
			out = out[1:]
			continue
		}
		head.Qty -= excess
		excess = 0
	}
	return out
}
