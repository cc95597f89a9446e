package etl

import (
	"context"
	"fmt"
	"sync"

	"tradesync/config"
	"tradesync/database"
	"tradesync/exchange/binance"
	"tradesync/logger"
	"tradesync/matching"
	"tradesync/plan"
	"tradesync/utils"
)

// Orchestrator 多币种并发 ETL 编排器
// 一次收入流水预取解决币种集合和费用合计，然后按币种并发抓单、撮合、转换
type Orchestrator struct {
	gateway *binance.Client
	cfg     func() *config.Config

	// 开盘价缓存，key 为 "symbol:UTC日起点毫秒"，跨轮次复用
	priceMu    sync.Mutex
	priceCache map[string]float64
}

// NewOrchestrator 创建编排器，cfg 返回当前配置快照（支持热加载）
func NewOrchestrator(gateway *binance.Client, cfg func() *config.Config) *Orchestrator {
	return &Orchestrator{
		gateway:    gateway,
		cfg:        cfg,
		priceCache: make(map[string]float64),
	}
}

// AnalyzeResult 一轮分析的产出
type AnalyzeResult struct {
	Rows        []TradeRow
	Success     []string
	Failures    map[string]string // 币种 → 失败原因
	Transfers   []*database.TransferIncome
	WarmedCount int
}

// AnalyzeOrders 执行一轮完整的抓取+撮合+转换
// watermarks 用于非全量轮次按币种收窄窗口；symbols 非空时只处理这些币种（补偿同步）；
// symbolSince 非空时直接作为各币种起点（优先于水位线细化）
// 单个币种失败只记录原因，不中断其它币种
func (o *Orchestrator) AnalyzeOrders(ctx context.Context, win plan.Window, watermarks map[string]int64, symbols []string, symbolSince map[string]int64) (*AnalyzeResult, error) {
	cfg := o.cfg()

	// 一次收入流水预取：币种集合 + 费用合计 + 划转记录
	income, err := o.gateway.GetIncomeHistory(ctx, win.SinceMs, win.UntilMs, false)
	if err != nil {
		return nil, fmt.Errorf("拉取收入流水失败: %w", err)
	}
	summary := SummarizeIncome(income, cfg.Sync.ExtraLossIncomeTypes)

	targets := symbols
	if len(targets) == 0 {
		targets = summary.Symbols
	}

	result := &AnalyzeResult{
		Failures:  make(map[string]string),
		Transfers: summary.Transfers,
	}
	if len(targets) == 0 {
		logger.Info("窗口内没有成交币种，本轮无事可做")
		return result, nil
	}

	// 按币种细化抓取起点（全量轮次用统一窗口）
	sinceMap := symbolSince
	if sinceMap == nil && !win.IsFull {
		sinceMap, result.WarmedCount = plan.BuildSymbolSinceMap(targets, watermarks, win.SinceMs, cfg.Sync.SymbolSyncOverlapMinutes)
	}

	positionsBySymbol := o.matchSymbols(ctx, targets, win, sinceMap, summary.FeeTotals, result)

	// 开盘价预取 + 转换 + 同分钟合并
	openPrices := o.prefetchOpenPrices(ctx, positionsBySymbol, cfg.Sync.PriceWorkerPoolSize)

	var rows []TradeRow
	no := 1
	for _, symbol := range targets {
		for _, p := range positionsBySymbol[symbol] {
			dayStart := utils.UTCDayStartMs(p.EntryTime)
			openPrice := openPrices[priceKey(p.Symbol, dayStart)]
			rows = append(rows, buildTradeRow(no, p, openPrice))
			no++
		}
	}
	result.Rows = MergeSameEntryRows(rows)

	logger.Info("本轮分析完成: %d 个币种成功, %d 个失败, 合并后 %d 行",
		len(result.Success), len(result.Failures), len(result.Rows))
	return result, nil
}

// matchSymbols 并发抓取并撮合各币种，结果按币种归集
func (o *Orchestrator) matchSymbols(ctx context.Context, targets []string, win plan.Window, sinceMap map[string]int64, feeTotals map[string]float64, result *AnalyzeResult) map[string][]*matching.ClosedPosition {
	cfg := o.cfg()

	workers := cfg.Sync.WorkerPoolSize
	if workers > len(targets) {
		workers = len(targets)
	}

	jobs := make(chan string)
	positionsBySymbol := make(map[string][]*matching.ClosedPosition, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	useTimeFilter := cfg.Sync.UseTimeFilter

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// 每个 worker 一个轻量句柄，共享全局限速时钟
			handle := o.gateway.Handle()

			for symbol := range jobs {
				positions, err := o.matchOneSymbol(ctx, handle, symbol, win, sinceMap, feeTotals, useTimeFilter)
				mu.Lock()
				if err != nil {
					result.Failures[symbol] = err.Error()
					logger.Warn("币种 %s 处理失败: %v", symbol, err)
				} else {
					positionsBySymbol[symbol] = positions
					result.Success = append(result.Success, symbol)
				}
				mu.Unlock()
			}
		}()
	}

	for _, symbol := range targets {
		jobs <- symbol
	}
	close(jobs)
	wg.Wait()

	return positionsBySymbol
}

// matchOneSymbol 单币种的抓取+过滤+撮合+费用分摊
func (o *Orchestrator) matchOneSymbol(ctx context.Context, handle *binance.Client, symbol string, win plan.Window, sinceMap map[string]int64, feeTotals map[string]float64, useTimeFilter bool) (positions []*matching.ClosedPosition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("处理异常: %v", r)
		}
	}()

	since := win.SinceMs
	if sinceMap != nil {
		if s, ok := sinceMap[symbol]; ok {
			since = s
		}
	}

	fetchSince := since
	if !useTimeFilter {
		fetchSince = 0
	}

	// 带时间过滤时抓取失败必须让这个币种显式失败，否则水位线会错误推进
	orders, err := handle.GetAllOrders(ctx, symbol, fetchSince, win.UntilMs, useTimeFilter && fetchSince > 0)
	if err != nil {
		return nil, err
	}

	fills := fillsFromOrders(orders, since)
	positions, _ = matching.Match(fills)
	matching.AllocateFees(positions, feeTotals[symbol])
	return positions, nil
}

// fillsFromOrders 接口订单转撮合输入：只保留有成交且在窗口内的
func fillsFromOrders(orders []*binance.RawOrder, sinceMs int64) []matching.Fill {
	fills := make([]matching.Fill, 0, len(orders))
	for _, o := range orders {
		if o.ExecutedQty <= 0 {
			continue
		}
		if sinceMs > 0 && o.UpdateTime < sinceMs {
			continue
		}
		fills = append(fills, matching.Fill{
			Symbol:        o.Symbol,
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Side:          o.Side,
			PositionSide:  o.PositionSide,
			OrderType:     o.Type,
			Price:         o.AvgPrice,
			Qty:           o.ExecutedQty,
			Time:          o.UpdateTime,
		})
	}
	return fills
}

func priceKey(symbol string, dayStartMs int64) string {
	return fmt.Sprintf("%s:%d", symbol, dayStartMs)
}

// priceTarget 一个待取的开盘价坐标
type priceTarget struct {
	symbol     string
	dayStartMs int64
}

// prefetchOpenPrices 预取所有仓位涉及的（币种, UTC日）开盘价
// 独立小池并发 + 进程内缓存，同一天的仓位不会重复请求
func (o *Orchestrator) prefetchOpenPrices(ctx context.Context, positionsBySymbol map[string][]*matching.ClosedPosition, workers int) map[string]float64 {
	need := make(map[string]priceTarget)
	for _, positions := range positionsBySymbol {
		for _, p := range positions {
			dayStart := utils.UTCDayStartMs(p.EntryTime)
			need[priceKey(p.Symbol, dayStart)] = priceTarget{symbol: p.Symbol, dayStartMs: dayStart}
		}
	}
	if len(need) == 0 {
		return map[string]float64{}
	}

	out := make(map[string]float64, len(need))
	var missing []priceTarget

	o.priceMu.Lock()
	for key, target := range need {
		if price, ok := o.priceCache[key]; ok {
			out[key] = price
		} else {
			missing = append(missing, target)
		}
	}
	o.priceMu.Unlock()

	if len(missing) == 0 {
		return out
	}

	if workers > len(missing) {
		workers = len(missing)
	}
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan priceTarget)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle := o.gateway.Handle()
			for target := range jobs {
				price, err := handle.GetFirstKlineOpen(ctx, target.symbol, target.dayStartMs)
				if err != nil {
					logger.Warn("获取 %s 开盘价失败: %v", target.symbol, err)
					continue
				}
				key := priceKey(target.symbol, target.dayStartMs)
				mu.Lock()
				out[key] = price
				mu.Unlock()
				o.priceMu.Lock()
				o.priceCache[key] = price
				o.priceMu.Unlock()
			}
		}()
	}

	for _, target := range missing {
		jobs <- target
	}
	close(jobs)
	wg.Wait()

	return out
}
