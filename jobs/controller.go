package jobs

import (
	"time"

	"tradesync/exchange/binance"
	"tradesync/logger"
)

// Controller 任务运行控制器
// 所有对外请求的任务共用一把进程内任务锁，避免两轮同步并发打满接口配额；
// 网关处于封禁冷却期时直接拒绝启动新任务
type Controller struct {
	gateway *binance.Client
	sem     chan struct{}
}

// NewController 创建任务控制器
func NewController(gateway *binance.Client) *Controller {
	return &Controller{
		gateway: gateway,
		sem:     make(chan struct{}, 1),
	}
}

// Acquire 获取任务锁
// waitSeconds <= 0 时不等待，锁被占用立即返回 false；
// 网关冷却中一律返回 false
func (c *Controller) Acquire(name string, waitSeconds int) bool {
	if remaining := c.gateway.CooldownRemaining(); remaining > 0 {
		logger.Warn("网关冷却中（剩余 %s），任务 %s 本轮跳过", remaining.Round(time.Second), name)
		return false
	}

	if waitSeconds <= 0 {
		select {
		case c.sem <- struct{}{}:
			return true
		default:
			logger.Warn("任务锁被占用，任务 %s 本轮跳过", name)
			return false
		}
	}

	timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
	defer timer.Stop()
	select {
	case c.sem <- struct{}{}:
		return true
	case <-timer.C:
		logger.Warn("等待任务锁 %d 秒超时，任务 %s 本轮跳过", waitSeconds, name)
		return false
	}
}

// Release 释放任务锁
func (c *Controller) Release() {
	select {
	case <-c.sem:
	default:
	}
}
