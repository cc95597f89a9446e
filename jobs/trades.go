package jobs

import (
	"context"
	"fmt"
	"time"

	"tradesync/database"
	"tradesync/etl"
	"tradesync/logger"
	"tradesync/metrics"
	"tradesync/plan"
)

// RunTradesSync 执行一轮成交同步
// forceFull 为 true 时走全量窗口并覆盖写入，否则按水位线增量
func (r *Runner) RunTradesSync(ctx context.Context, forceFull bool) error {
	cfg := r.cfg()

	if !r.controller.Acquire("trades_sync", cfg.Sync.APIJobLockWaitSeconds) {
		return nil
	}
	defer r.controller.Release()

	// 多实例部署时的跨进程互斥，锁后端故障降级为只靠进程内锁
	ttl := time.Duration(cfg.Lock.DefaultTTL) * time.Second
	if ok, err := r.dlock.TryLock(ctx, syncLockKey, ttl); err != nil {
		logger.Warn("获取分布式锁失败，降级为进程内锁继续: %v", err)
	} else if !ok {
		logger.Info("分布式锁被其它实例持有，本轮成交同步跳过")
		return nil
	} else {
		defer func() {
			if err := r.dlock.Unlock(context.Background(), syncLockKey); err != nil {
				logger.Warn("释放分布式锁失败: %v", err)
			}
		}()
	}

	start := time.Now()
	mode := "incremental"
	if forceFull {
		mode = "full"
	}
	logger.Info("开始成交同步（%s）", mode)

	lastEntry, err := r.db.GetLastEntryTime(ctx)
	if err != nil {
		r.logTradesRun(ctx, mode, "error", nil, 0, start, fmt.Sprintf("查询上次入场时间失败: %v", err))
		return fmt.Errorf("查询上次入场时间失败: %w", err)
	}

	win := plan.ResolveWindow(&cfg.Sync, lastEntry, forceFull, time.Now())

	// 全量轮次才开权重预算：增量请求量小，不值得为它排队
	if win.IsFull && cfg.Budget.Enabled {
		r.gateway.EnableRequestBudget(cfg.Budget.PerMinute, cfg.Budget.PathWeights)
		defer r.gateway.DisableRequestBudget()
	}

	watermarks, err := r.loadWatermarks(ctx)
	if err != nil {
		logger.Warn("读取同步水位线失败，本轮按完整窗口抓取: %v", err)
	}

	result, err := r.orch.AnalyzeOrders(ctx, win, watermarks, nil, nil)
	if err != nil {
		r.logTradesRun(ctx, mode, "error", nil, 0, start, err.Error())
		return err
	}

	saved, err := r.persistTrades(ctx, result, win)
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	} else if len(result.Failures) > 0 {
		errMsg = fmt.Sprintf("%d 个币种失败", len(result.Failures))
	}

	r.logTradesRun(ctx, mode, status, result, saved, start, errMsg)
	if err != nil {
		return err
	}

	logger.Info("成交同步完成（%s）: %d 行入库, %d 个币种成功, %d 个失败, 水位线收窄 %d, 耗时 %s",
		mode, saved, len(result.Success), len(result.Failures), result.WarmedCount,
		time.Since(start).Round(time.Millisecond))
	return nil
}

// persistTrades 落库平仓记录、划转记录并推进水位线
// 水位线只有在该币种完整成功时才推进到窗口终点，失败的只记录尝试
func (r *Runner) persistTrades(ctx context.Context, result *etl.AnalyzeResult, win plan.Window) (int, error) {
	saved, err := r.db.SaveTrades(ctx, tradesFromRows(result.Rows), win.IsFull)
	if err != nil {
		return 0, fmt.Errorf("保存平仓记录失败: %w", err)
	}

	if len(result.Transfers) > 0 {
		if n, err := r.db.SaveTransferIncome(ctx, result.Transfers); err != nil {
			logger.Warn("保存划转记录失败: %v", err)
		} else if n > 0 {
			logger.Info("新增 %d 条划转记录", n)
		}
	}

	if len(result.Success) > 0 {
		if err := r.db.UpdateSymbolSyncSuccessBatch(ctx, result.Success, win.UntilMs); err != nil {
			logger.Warn("推进同步水位线失败: %v", err)
		}
	}
	if len(result.Failures) > 0 {
		if err := r.db.UpdateSymbolSyncFailureBatch(ctx, result.Failures, win.UntilMs); err != nil {
			logger.Warn("记录同步失败状态失败: %v", err)
		}
	}
	return saved, nil
}

// loadWatermarks 读取各币种的成功水位线
func (r *Runner) loadWatermarks(ctx context.Context) (map[string]int64, error) {
	states, err := r.db.GetSymbolSyncStates(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(states))
	for symbol, st := range states {
		if st.LastSuccessEndMs > 0 {
			out[symbol] = st.LastSuccessEndMs
		}
	}
	return out, nil
}

func (r *Runner) logTradesRun(ctx context.Context, mode, status string, result *etl.AnalyzeResult, saved int, start time.Time, errMsg string) {
	entry := &database.SyncRunLog{
		RunType:      "trades_sync",
		Mode:         mode,
		Status:       status,
		TradesSaved:  saved,
		ElapsedMs:    time.Since(start).Milliseconds(),
		ErrorMessage: errMsg,
		CreatedAt:    time.Now(),
	}
	if result != nil {
		entry.SymbolCount = len(result.Success) + len(result.Failures)
		entry.RowsCount = len(result.Rows)
		metrics.RecordSymbolFailures(len(result.Failures))
	}
	if err := r.db.LogSyncRun(ctx, entry); err != nil {
		logger.Warn("写入同步运行日志失败: %v", err)
	}
	metrics.RecordSyncRun("trades_sync", status, time.Since(start).Seconds())
	metrics.RecordTradesSaved(saved)
}

// tradesFromRows 展示行转落库模型
func tradesFromRows(rows []etl.TradeRow) []*database.Trade {
	out := make([]*database.Trade, 0, len(rows))
	for _, row := range rows {
		out = append(out, &database.Trade{
			No:             row.No,
			Date:           row.Date,
			EntryTime:      row.EntryTime,
			ExitTime:       row.ExitTime,
			HoldingTime:    row.HoldingTime,
			Symbol:         row.Symbol,
			Side:           row.Side,
			PriceChangePct: row.PriceChangePct,
			EntryAmount:    row.EntryAmount,
			EntryPrice:     row.EntryPrice,
			ExitPrice:      row.ExitPrice,
			Qty:            row.Qty,
			Fees:           row.Fees,
			PnLNet:         row.PnLNet,
			CloseType:      row.CloseType,
			ReturnRate:     row.ReturnRate,
			OpenPrice:      row.OpenPrice,
			PnLBeforeFees:  row.PnLBeforeFees,
			EntryOrderID:   row.EntryOrderID,
			ExitOrderID:    row.ExitOrderID,
		})
	}
	return out
}
