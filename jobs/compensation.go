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

// RunCompensation 执行一轮触发式补偿同步
// 只抓待补偿币种，起点取登记的入场时间和水位线回退中更早的那个，
// 保证刚消失的持仓对应的平仓单一定落在窗口内
func (r *Runner) RunCompensation(ctx context.Context) error {
	pending := r.drainPending()
	if len(pending) == 0 {
		return nil
	}

	cfg := r.cfg()
	if !r.controller.Acquire("trades_compensation", cfg.Sync.APIJobLockWaitSeconds) {
		// 没抢到锁，放回去等下一次持仓轮触发
		r.requeuePending(pending)
		return nil
	}
	defer r.controller.Release()

	start := time.Now()
	now := time.Now()
	untilMs := now.UnixMilli()
	fallbackMs := now.Add(-time.Duration(cfg.Sync.CompensationLookbackMinutes) * time.Minute).UnixMilli()
	overlapMs := int64(cfg.Sync.SymbolSyncOverlapMinutes) * 60 * 1000

	states, err := r.db.GetSymbolSyncStates(ctx)
	if err != nil {
		logger.Warn("读取同步水位线失败，补偿窗口只按登记时间: %v", err)
		states = nil
	}

	symbols := make([]string, 0, len(pending))
	symbolSince := make(map[string]int64, len(pending))
	minSince := untilMs
	for symbol, entryMs := range pending {
		since := entryMs
		if since <= 0 {
			since = fallbackMs
		}
		if st, ok := states[symbol]; ok && st.LastSuccessEndMs > 0 {
			if candidate := st.LastSuccessEndMs - overlapMs; candidate < since {
				since = candidate
			}
		}
		symbols = append(symbols, symbol)
		symbolSince[symbol] = since
		if since < minSince {
			minSince = since
		}
	}

	logger.Info("开始补偿同步: %d 个币种", len(symbols))
	win := plan.Window{SinceMs: minSince, UntilMs: untilMs, IsFull: false}

	result, err := r.orch.AnalyzeOrders(ctx, win, nil, symbols, symbolSince)
	if err != nil {
		r.logCompRun(ctx, "error", nil, 0, start, err.Error())
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
	r.logCompRun(ctx, status, result, saved, start, errMsg)
	if err != nil {
		return err
	}

	logger.Info("补偿同步完成: %d 行入库, 耗时 %s", saved, time.Since(start).Round(time.Millisecond))
	return nil
}

func (r *Runner) logCompRun(ctx context.Context, status string, result *etl.AnalyzeResult, saved int, start time.Time, errMsg string) {
	entry := &database.SyncRunLog{
		RunType:      "trades_compensation",
		Mode:         "triggered",
		Status:       status,
		TradesSaved:  saved,
		ElapsedMs:    time.Since(start).Milliseconds(),
		ErrorMessage: errMsg,
		CreatedAt:    time.Now(),
	}
	if result != nil {
		entry.SymbolCount = len(result.Success) + len(result.Failures)
		entry.RowsCount = len(result.Rows)
	}
	if err := r.db.LogSyncRun(ctx, entry); err != nil {
		logger.Warn("写入同步运行日志失败: %v", err)
	}
	metrics.RecordSyncRun("trades_compensation", status, time.Since(start).Seconds())
}
