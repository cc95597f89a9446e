package etl

import (
	"fmt"
	"sort"
	"strings"
)

// MergeSameEntryRows 合并同一分钟内开仓的同向同币种记录
// 一笔逻辑交易常被拆成多笔部分成交，按（币种, 方向, 入场分钟）归并成一行：
// 入场/出场价按数量加权，费用和盈亏求和，出场订单号去重拼接
func MergeSameEntryRows(rows []TradeRow) []TradeRow {
	if len(rows) <= 1 {
		renumber(rows)
		return rows
	}

	type group struct {
		rows []TradeRow
	}

	order := make([]string, 0, len(rows))
	groups := make(map[string]*group)

	for _, row := range rows {
		key := fmt.Sprintf("%s|%s|%d", row.Symbol, row.Side, row.entryMs/60000)
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
			order = append(order, key)
		}
		g.rows = append(g.rows, row)
	}

	merged := make([]TradeRow, 0, len(groups))
	for _, key := range order {
		merged = append(merged, mergeGroup(groups[key].rows))
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].entryMs < merged[j].entryMs
	})
	renumber(merged)
	return merged
}

// mergeGroup 把一组同分钟记录归并成一行
func mergeGroup(rows []TradeRow) TradeRow {
	if len(rows) == 1 {
		return rows[0]
	}

	out := rows[0] // No/Date/入场时间/涨跌幅/开盘价/入场订单号取首行

	var totalQty, entryNotional, exitNotional float64
	var fees, pnlNet, pnlBeforeFees float64
	anyLiquidation := false
	var exitIDs []string
	seenExit := make(map[string]bool)

	for _, row := range rows {
		totalQty += row.Qty
		entryNotional += row.EntryPrice * row.Qty
		exitNotional += row.ExitPrice * row.Qty
		fees += row.Fees
		pnlNet += row.PnLNet
		pnlBeforeFees += row.PnLBeforeFees
		if row.CloseType == CloseTypeLiquidation {
			anyLiquidation = true
		}
		for _, id := range strings.Split(row.ExitOrderID, ",") {
			if id != "" && !seenExit[id] {
				seenExit[id] = true
				exitIDs = append(exitIDs, id)
			}
		}
	}

	if totalQty > 0 {
		out.EntryPrice = entryNotional / totalQty
		out.ExitPrice = exitNotional / totalQty
	}
	out.Qty = totalQty
	out.EntryAmount = round2(out.EntryPrice * totalQty)
	out.Fees = round2(fees)
	out.PnLNet = round2(pnlNet)
	out.PnLBeforeFees = round2(pnlBeforeFees)
	out.CloseType = closeTypeOf(anyLiquidation, out.PnLNet)
	out.ExitOrderID = strings.Join(exitIDs, ",")

	if out.EntryAmount != 0 {
		out.ReturnRate = fmt.Sprintf("%.2f%%", out.PnLNet/out.EntryAmount*100)
	} else {
		out.ReturnRate = "0.00%"
	}

	return out
}

func renumber(rows []TradeRow) {
	for i := range rows {
		rows[i].No = i + 1
	}
}
