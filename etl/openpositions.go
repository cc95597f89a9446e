package etl

import (
	"context"
	"math"
	"sort"
	"sync"

	"tradesync/database"
	"tradesync/exchange/binance"
	"tradesync/logger"
	"tradesync/matching"
	"tradesync/utils"
)

// ExtractOpenPositions 提取账户当前持仓
// positionRisk 是真实净持仓的权威来源：接口失败时返回 (nil, false)，
// 调用方跳过本轮并保留库中已有持仓，绝不能当成"无持仓"去清空
func (o *Orchestrator) ExtractOpenPositions(ctx context.Context, sinceMs, untilMs int64) ([]*database.OpenPosition, bool) {
	cfg := o.cfg()

	risks, err := o.gateway.GetPositionRisk(ctx)
	if err != nil || risks == nil {
		logger.Warn("拉取持仓风险失败，本轮持仓同步跳过")
		return nil, false
	}

	// 按币种汇总真实净持仓（多头正、空头负）
	longTarget := make(map[string]float64)
	shortTarget := make(map[string]float64)
	for _, r := range risks {
		if math.Abs(r.PositionAmt) < matching.QtyEpsilon {
			continue
		}
		if r.PositionAmt > 0 {
			longTarget[r.Symbol] += r.PositionAmt
		} else {
			shortTarget[r.Symbol] += -r.PositionAmt
		}
	}

	symbolSet := make(map[string]bool)
	for s := range longTarget {
		symbolSet[s] = true
	}
	for s := range shortTarget {
		symbolSet[s] = true
	}
	if len(symbolSet) == 0 {
		return []*database.OpenPosition{}, true
	}

	symbols := make([]string, 0, len(symbolSet))
	for s := range symbolSet {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	workers := cfg.OpenPositions.WorkerPoolSize
	if workers > len(symbols) {
		workers = len(symbols)
	}
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var rows []*database.OpenPosition

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle := o.gateway.Handle()
			for symbol := range jobs {
				symbolRows := extractSymbolOpenRows(ctx, handle, symbol, sinceMs, untilMs,
					longTarget[symbol], shortTarget[symbol])
				if len(symbolRows) == 0 {
					continue
				}
				mu.Lock()
				rows = append(rows, symbolRows...)
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range symbols {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EntryTime != rows[j].EntryTime {
			return rows[i].EntryTime < rows[j].EntryTime
		}
		return rows[i].OrderID < rows[j].OrderID
	})
	return rows, true
}

// extractSymbolOpenRows 单币种：重放窗口内成交得到未平队列，再对齐到真实净持仓
func extractSymbolOpenRows(ctx context.Context, handle *binance.Client, symbol string, sinceMs, untilMs int64, longTarget, shortTarget float64) []*database.OpenPosition {
	orders, err := handle.GetAllOrders(ctx, symbol, sinceMs, untilMs, false)
	if err != nil || orders == nil {
		logger.Warn("拉取 %s 订单失败，本轮跳过该币种持仓", symbol)
		return nil
	}

	fills := fillsFromOrders(orders, sinceMs)
	remainder := matching.ConsumeOpenLots(fills)

	// 本地重放可能比真实持仓多（窗口外的旧平单看不到），从队首裁掉多余部分
	longLots := matching.TrimLotsToQty(remainder.Long, longTarget)
	shortLots := matching.TrimLotsToQty(remainder.Short, shortTarget)

	var rows []*database.OpenPosition
	for _, lot := range longLots {
		rows = append(rows, openRowFromLot(symbol, matching.SideLong, lot))
	}
	for _, lot := range shortLots {
		rows = append(rows, openRowFromLot(symbol, matching.SideShort, lot))
	}
	return rows
}

func openRowFromLot(symbol, side string, lot matching.OpenLot) *database.OpenPosition {
	return &database.OpenPosition{
		Date:        utils.FormatMsDate(lot.Time),
		Symbol:      BaseSymbol(symbol),
		Side:        side,
		EntryTime:   utils.FormatMs(lot.Time),
		EntryPrice:  lot.Price,
		Qty:         lot.Qty,
		EntryAmount: round2(lot.Price * lot.Qty),
		OrderID:     lot.OrderID,
	}
}
