package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 网关指标
	apiRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_api_request_total",
			Help: "Total number of exchange API requests",
		},
		[]string{"path", "outcome"},
	)

	throttleWaitSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesync_throttle_wait_seconds_total",
			Help: "Total seconds spent waiting on the global request interval",
		},
	)

	// 同步任务指标
	syncRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesync_sync_run_total",
			Help: "Total number of sync runs",
		},
		[]string{"run_type", "status"},
	)

	syncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradesync_sync_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"run_type"},
	)

	tradesSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesync_trades_saved_total",
			Help: "Total number of trade rows persisted",
		},
	)

	symbolFailureTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesync_symbol_failure_total",
			Help: "Total number of per-symbol failures during ETL passes",
		},
	)
)

// RecordAPIRequest 记录一次接口请求结果
func RecordAPIRequest(path, outcome string) {
	apiRequestTotal.WithLabelValues(path, outcome).Inc()
}

// ObserveThrottleWait 累计全局限速等待时长
func ObserveThrottleWait(seconds float64) {
	throttleWaitSeconds.Add(seconds)
}

// RecordSyncRun 记录一轮同步的结果和耗时
func RecordSyncRun(runType, status string, elapsedSeconds float64) {
	syncRunTotal.WithLabelValues(runType, status).Inc()
	syncDuration.WithLabelValues(runType).Observe(elapsedSeconds)
}

// RecordTradesSaved 累计落库行数
func RecordTradesSaved(count int) {
	tradesSavedTotal.Add(float64(count))
}

// RecordSymbolFailures 累计币种级失败数
func RecordSymbolFailures(count int) {
	symbolFailureTotal.Add(float64(count))
}
