package jobs

import (
	"sync"

	"tradesync/config"
	"tradesync/database"
	"tradesync/etl"
	"tradesync/exchange/binance"
	"tradesync/lock"
)

// 分布式锁 key，多实例部署时保证只有一个实例在跑同步
const syncLockKey = "sync_jobs"

// Runner 同步任务执行器
type Runner struct {
	cfg        func() *config.Config
	db         database.Database
	gateway    *binance.Client
	orch       *etl.Orchestrator
	dlock      lock.DistributedLock
	controller *Controller

	// 待补偿币种 → 最早入场毫秒，持仓消失时积累，补偿任务消费
	compMu  sync.Mutex
	pending map[string]int64
}

// NewRunner 创建任务执行器
func NewRunner(cfg func() *config.Config, db database.Database, gateway *binance.Client,
	orch *etl.Orchestrator, dlock lock.DistributedLock, controller *Controller) *Runner {
	return &Runner{
		cfg:        cfg,
		db:         db,
		gateway:    gateway,
		orch:       orch,
		dlock:      dlock,
		controller: controller,
		pending:    make(map[string]int64),
	}
}

// queueCompensation 登记待补偿币种，同币种保留最早的入场时间
func (r *Runner) queueCompensation(symbol string, entryMs int64) {
	r.compMu.Lock()
	defer r.compMu.Unlock()
	if old, ok := r.pending[symbol]; !ok || (entryMs > 0 && entryMs < old) {
		r.pending[symbol] = entryMs
	}
}

// drainPending 取走全部待补偿币种
func (r *Runner) drainPending() map[string]int64 {
	r.compMu.Lock()
	defer r.compMu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	out := r.pending
	r.pending = make(map[string]int64)
	return out
}

// requeuePending 把没跑成的补偿请求放回去，等下一次触发
func (r *Runner) requeuePending(pending map[string]int64) {
	for symbol, entryMs := range pending {
		r.queueCompensation(symbol, entryMs)
	}
}
