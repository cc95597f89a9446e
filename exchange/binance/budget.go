package binance

import (
	"context"

	"golang.org/x/time/rate"

	"tradesync/logger"
)

// requestBudget 全局请求权重预算（令牌桶，仅全量同步期间开启）
// 按接口路径权重扣减，整体限制在每分钟上限以内
type requestBudget struct {
	limiter *rate.Limiter
	weights map[string]int
}

// defaultPathWeights 各接口的官方权重
func defaultPathWeights() map[string]int {
	return map[string]int{
		"/fapi/v1/allOrders":    5,
		"/fapi/v1/income":       30,
		"/fapi/v2/account":      5,
		"/fapi/v2/positionRisk": 5,
		"/fapi/v1/klines":       1,
	}
}

// EnableRequestBudget 开启全局权重预算
// perMinute 为每分钟权重上限，overrides 按路径覆盖默认权重
func (c *Client) EnableRequestBudget(perMinute int, overrides map[string]int) {
	if perMinute <= 0 {
		return
	}
	weights := defaultPathWeights()
	for path, w := range overrides {
		if w > 0 {
			weights[path] = w
		}
	}

	s := c.shared
	s.budgetMu.Lock()
	s.budget = &requestBudget{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		weights: weights,
	}
	s.budgetMu.Unlock()
	logger.Info("已开启全局请求权重预算: %d/分钟", perMinute)
}

// DisableRequestBudget 关闭全局权重预算
func (c *Client) DisableRequestBudget() {
	s := c.shared
	s.budgetMu.Lock()
	if s.budget != nil {
		s.budget = nil
		logger.Info("已关闭全局请求权重预算")
	}
	s.budgetMu.Unlock()
}

// budgetWait 按路径权重等待预算额度，预算未开启时直接放行
func (c *Client) budgetWait(ctx context.Context, path string) error {
	s := c.shared
	s.budgetMu.Lock()
	budget := s.budget
	s.budgetMu.Unlock()

	if budget == nil {
		return nil
	}

	weight, ok := budget.weights[path]
	if !ok {
		weight = 1
	}
	return budget.limiter.WaitN(ctx, weight)
}
