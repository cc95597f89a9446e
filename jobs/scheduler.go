package jobs

import (
	"context"
	"sync"
	"time"

	"tradesync/config"
	"tradesync/logger"
	"tradesync/utils"
)

// Scheduler 同步任务调度器
// 驱动周期性的成交/持仓同步和每日定时全量，支持外部手动触发
type Scheduler struct {
	runner *Runner

	mu  sync.RWMutex
	cfg *config.Config

	triggerCh chan string
}

// NewScheduler 创建调度器
func NewScheduler(runner *Runner, cfg *config.Config) *Scheduler {
	return &Scheduler{
		runner:    runner,
		cfg:       cfg,
		triggerCh: make(chan string, 4),
	}
}

// OnConfigChange 配置热加载回调，周期变化在下一次调度时生效
func (s *Scheduler) OnConfigChange(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	logger.Info("调度器已应用新配置")
}

func (s *Scheduler) snapshot() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// TriggerSync 外部触发一轮同步
// mode: full / incremental / open_positions，队列满时丢弃
func (s *Scheduler) TriggerSync(mode string) bool {
	select {
	case s.triggerCh <- mode:
		return true
	default:
		logger.Warn("触发队列已满，忽略本次 %s 触发", mode)
		return false
	}
}

// Start 启动调度循环，阻塞到 ctx 取消
func (s *Scheduler) Start(ctx context.Context) {
	cfg := s.snapshot()

	// 启动先跑一轮：配置了强制全量就走全量，否则按水位线增量
	forceFull := cfg.Sync.ForceFullSync
	s.runTrades(ctx, forceFull)
	s.runOpenPositions(ctx, forceFull)

	tradesInterval := time.Duration(cfg.Sync.UpdateIntervalMinutes) * time.Minute
	openInterval := time.Duration(cfg.OpenPositions.IntervalMinutes) * time.Minute

	tradesTicker := time.NewTicker(tradesInterval)
	openTicker := time.NewTicker(openInterval)
	dailyTicker := time.NewTicker(time.Minute)
	defer tradesTicker.Stop()
	defer openTicker.Stop()
	defer dailyTicker.Stop()

	// 启动时已过当日整点的话视为今天已跑，避免进程一启动就触发全量
	lastDailyFull := ""
	if startNow := time.Now().In(utils.GlobalLocation); dailyFullDue(startNow, cfg.Sync.DailyFullSyncTime, "") {
		lastDailyFull = startNow.Format("2006-01-02")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("调度器退出")
			return

		case <-tradesTicker.C:
			s.runTrades(ctx, false)

		case <-openTicker.C:
			s.runOpenPositions(ctx, false)

		case <-dailyTicker.C:
			cfg := s.snapshot()
			now := time.Now().In(utils.GlobalLocation)
			if cfg.Sync.EnableDailyFullSync &&
				dailyFullDue(now, cfg.Sync.DailyFullSyncTime, lastDailyFull) {
				lastDailyFull = now.Format("2006-01-02")
				logger.Info("到达每日全量时间 %s", cfg.Sync.DailyFullSyncTime)
				s.runTrades(ctx, true)
				s.runOpenPositions(ctx, true)
			}

		case mode := <-s.triggerCh:
			switch mode {
			case "full":
				s.runTrades(ctx, true)
				s.runOpenPositions(ctx, true)
			case "open_positions":
				s.runOpenPositions(ctx, false)
			default:
				s.runTrades(ctx, false)
				s.runOpenPositions(ctx, false)
			}
		}

		// 周期变化时重置 ticker
		cfg := s.snapshot()
		if d := time.Duration(cfg.Sync.UpdateIntervalMinutes) * time.Minute; d != tradesInterval && d > 0 {
			tradesInterval = d
			tradesTicker.Reset(d)
		}
		if d := time.Duration(cfg.OpenPositions.IntervalMinutes) * time.Minute; d != openInterval && d > 0 {
			openInterval = d
			openTicker.Reset(d)
		}
	}
}

// dailyFullDue 判断是否该跑今天的每日全量
// 同步任务在调度循环里串行执行，一轮可能跨过整点分钟，
// 所以按“已过整点且今天还没跑”判断，不做分钟精确匹配
func dailyFullDue(now time.Time, scheduled, lastRunDate string) bool {
	at, err := time.ParseInLocation("15:04", scheduled, now.Location())
	if err != nil {
		return false
	}
	if lastRunDate == now.Format("2006-01-02") {
		return false
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	return !now.Before(due)
}

func (s *Scheduler) runTrades(ctx context.Context, forceFull bool) {
	if err := s.runner.RunTradesSync(ctx, forceFull); err != nil {
		logger.Error("成交同步失败: %v", err)
	}
}

func (s *Scheduler) runOpenPositions(ctx context.Context, full bool) {
	if err := s.runner.RunOpenPositionsSync(ctx, full); err != nil {
		logger.Error("持仓同步失败: %v", err)
	}
}
