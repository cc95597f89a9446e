package plan

import (
	"time"

	"tradesync/config"
	"tradesync/logger"
	"tradesync/utils"
)

// Window 一轮同步的抓取窗口
type Window struct {
	SinceMs int64
	UntilMs int64
	IsFull  bool
}

// ResolveWindow 计算本轮同步窗口
// 全量：配置了起始日期则从该日 23:00 开始，否则回溯 DaysToFetch 天
// 增量：上次入场时间减回看分钟数；没有历史记录时按冷启动回溯 DaysToFetch 天
func ResolveWindow(cfg *config.SyncConfig, lastEntryTime string, forceFull bool, now time.Time) Window {
	var sinceMs int64

	switch {
	case forceFull && cfg.StartDate != "":
		start, err := time.ParseInLocation("2006-01-02", cfg.StartDate, utils.GlobalLocation)
		if err != nil {
			logger.Warn("起始日期 %q 解析失败，回退到 %d 天回溯: %v", cfg.StartDate, cfg.DaysToFetch, err)
			sinceMs = now.AddDate(0, 0, -cfg.DaysToFetch).UnixMilli()
		} else {
			sinceMs = start.Add(23 * time.Hour).UnixMilli()
		}
	case forceFull:
		sinceMs = now.AddDate(0, 0, -cfg.DaysToFetch).UnixMilli()
	case lastEntryTime != "":
		last, err := utils.ParseLocalTime(lastEntryTime)
		if err != nil {
			logger.Warn("上次入场时间 %q 解析失败，按冷启动处理: %v", lastEntryTime, err)
			sinceMs = now.AddDate(0, 0, -cfg.DaysToFetch).UnixMilli()
		} else {
			sinceMs = last.Add(-time.Duration(cfg.SyncLookbackMinutes) * time.Minute).UnixMilli()
		}
	default:
		// 冷启动
		sinceMs = now.AddDate(0, 0, -cfg.DaysToFetch).UnixMilli()
	}

	untilMs := now.UnixMilli()
	if cfg.EndDate != "" {
		end, err := time.ParseInLocation("2006-01-02", cfg.EndDate, utils.GlobalLocation)
		if err != nil {
			logger.Warn("截止日期 %q 解析失败，使用当前时间: %v", cfg.EndDate, err)
		} else {
			untilMs = end.Add(24*time.Hour - time.Millisecond).UnixMilli()
		}
	}

	return Window{SinceMs: sinceMs, UntilMs: untilMs, IsFull: forceFull}
}

// BuildSymbolSinceMap 按币种细化抓取起点
// 有水位线的币种从 max(since, 水位线-重叠) 开始，重叠保证落在旧水位线边界上的成交不会被漏掉；
// 没有水位线的币种用完整窗口。返回细化结果和被收窄的币种数
func BuildSymbolSinceMap(symbols []string, watermarks map[string]int64, sinceMs int64, overlapMinutes int) (map[string]int64, int) {
	overlapMs := int64(overlapMinutes) * 60 * 1000
	out := make(map[string]int64, len(symbols))
	warmed := 0

	for _, symbol := range symbols {
		wm, ok := watermarks[symbol]
		if !ok || wm <= 0 {
			out[symbol] = sinceMs
			continue
		}
		candidate := wm - overlapMs
		if candidate < sinceMs {
			candidate = sinceMs
		}
		out[symbol] = candidate
		if candidate > sinceMs {
			warmed++
		}
	}

	return out, warmed
}
