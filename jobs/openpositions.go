package jobs

import (
	"context"
	"time"

	"tradesync/database"
	"tradesync/logger"
	"tradesync/metrics"
	"tradesync/utils"
)

// RunOpenPositionsSync 执行一轮持仓同步
// full 为 true 时用更长的回溯窗口重放（每日全量跟随）
// positionRisk 拉取失败时记 skipped 并保留库中已有持仓
func (r *Runner) RunOpenPositionsSync(ctx context.Context, full bool) error {
	cfg := r.cfg()

	if !r.controller.Acquire("open_positions_sync", cfg.Sync.APIJobLockWaitSeconds) {
		return nil
	}
	defer r.controller.Release()

	start := time.Now()
	mode := "incremental"
	lookbackDays := cfg.OpenPositions.LookbackDays
	if full {
		mode = "full"
		lookbackDays = cfg.OpenPositions.FullLookbackDays
	}
	now := time.Now()
	sinceMs := now.AddDate(0, 0, -lookbackDays).UnixMilli()

	rows, ok := r.orch.ExtractOpenPositions(ctx, sinceMs, now.UnixMilli())
	if !ok {
		r.logOpenRun(ctx, mode, "skipped", 0, 0, start, "position_risk_failed")
		return nil
	}

	saved, removed, err := r.db.SaveOpenPositions(ctx, rows)
	if err != nil {
		r.logOpenRun(ctx, mode, "error", len(rows), 0, start, err.Error())
		return err
	}

	r.logOpenRun(ctx, mode, "success", len(rows), saved, start, "")
	logger.Info("持仓同步完成: %d 条持仓, %d 条消失, 耗时 %s",
		len(rows), len(removed), time.Since(start).Round(time.Millisecond))

	// 持仓消失意味着刚平仓，登记补偿并立刻异步触发一次成交补偿同步
	if len(removed) > 0 && cfg.Sync.EnableTriggeredCompensation {
		r.queueRemoved(removed)
		go func() {
			if err := r.RunCompensation(context.Background()); err != nil {
				logger.Warn("触发补偿同步失败: %v", err)
			}
		}()
	}
	return nil
}

// queueRemoved 把消失的持仓登记为待补偿币种
// 库里存的是基础币种名，补回 USDT 后缀才是接口币对
func (r *Runner) queueRemoved(removed []*database.OpenPosition) {
	for _, row := range removed {
		var entryMs int64
		if t, err := utils.ParseLocalTime(row.EntryTime); err == nil {
			entryMs = t.UnixMilli()
		}
		r.queueCompensation(row.Symbol+"USDT", entryMs)
	}
}

func (r *Runner) logOpenRun(ctx context.Context, mode, status string, rowsCount, saved int, start time.Time, errMsg string) {
	entry := &database.SyncRunLog{
		RunType:      "open_positions_sync",
		Mode:         mode,
		Status:       status,
		RowsCount:    rowsCount,
		OpenSaved:    saved,
		ElapsedMs:    time.Since(start).Milliseconds(),
		ErrorMessage: errMsg,
		CreatedAt:    time.Now(),
	}
	if err := r.db.LogSyncRun(ctx, entry); err != nil {
		logger.Warn("写入同步运行日志失败: %v", err)
	}
	metrics.RecordSyncRun("open_positions_sync", status, time.Since(start).Seconds())
}
