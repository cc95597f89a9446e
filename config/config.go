package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Timezone      string              `yaml:"timezone"`       // 显示时区，默认 Asia/Shanghai
	Binance       BinanceConfig       `yaml:"binance"`        // 币安接口配置
	Sync          SyncConfig          `yaml:"sync"`           // 同步任务配置
	OpenPositions OpenPositionsConfig `yaml:"open_positions"` // 持仓同步配置
	Budget        BudgetConfig        `yaml:"request_budget"` // 全量同步请求预算
	Database      DatabaseConfig      `yaml:"database"`       // 数据库配置
	Lock          LockConfig          `yaml:"lock"`           // 分布式锁配置
	Web           WebConfig           `yaml:"web"`            // Web 服务配置
	Log           LogConfig           `yaml:"log"`            // 日志配置
}

// BinanceConfig 币安接口配置
type BinanceConfig struct {
	APIKey             string  `yaml:"api_key"`
	APISecret          string  `yaml:"api_secret"`
	BaseURL            string  `yaml:"base_url"`             // 默认 https://fapi.binance.com
	MinRequestInterval float64 `yaml:"min_request_interval"` // 全局最小请求间隔（秒）
	RecvWindowMs       int64   `yaml:"recv_window_ms"`       // 签名请求的 recvWindow
	EnableUserStream   bool    `yaml:"enable_user_stream"`   // 是否开启用户数据流
}

// SyncConfig 成交同步配置
type SyncConfig struct {
	DaysToFetch                 int      `yaml:"days_to_fetch"`                 // 全量/冷启动回溯天数
	StartDate                   string   `yaml:"start_date"`                    // 强制全量的起始日期（YYYY-MM-DD，可空）
	EndDate                     string   `yaml:"end_date"`                      // 截止日期（YYYY-MM-DD，可空）
	ForceFullSync               bool     `yaml:"force_full_sync"`               // 启动后第一轮强制全量
	UpdateIntervalMinutes       int      `yaml:"update_interval_minutes"`       // 增量同步周期（分钟）
	SyncLookbackMinutes         int      `yaml:"sync_lookback_minutes"`         // 增量回看（分钟）
	SymbolSyncOverlapMinutes    int      `yaml:"symbol_sync_overlap_minutes"`   // 水位线重叠（分钟）
	UseTimeFilter               bool     `yaml:"use_time_filter"`               // 拉取订单时是否带时间过滤
	WorkerPoolSize              int      `yaml:"worker_pool_size"`              // ETL 并发数
	PriceWorkerPoolSize         int      `yaml:"price_worker_pool_size"`        // 开盘价预取并发数
	EnableDailyFullSync         bool     `yaml:"enable_daily_full_sync"`        // 每日定时全量
	DailyFullSyncTime           string   `yaml:"daily_full_sync_time"`          // 每日全量时间 HH:MM
	APIJobLockWaitSeconds       int      `yaml:"api_job_lock_wait_seconds"`     // 任务锁等待（秒，<=0 不等待）
	EnableTriggeredCompensation bool     `yaml:"enable_triggered_compensation"` // 持仓消失时触发补偿同步
	CompensationLookbackMinutes int      `yaml:"compensation_lookback_minutes"` // 补偿同步回看（分钟）
	ExtraLossIncomeTypes        []string `yaml:"extra_loss_income_types"`       // 额外计入成本的收入类型
}

// OpenPositionsConfig 持仓同步配置
type OpenPositionsConfig struct {
	WorkerPoolSize   int `yaml:"worker_pool_size"`   // 持仓提取并发数
	LookbackDays     int `yaml:"lookback_days"`      // 增量模式回溯天数
	FullLookbackDays int `yaml:"full_lookback_days"` // 全量模式回溯天数
	IntervalMinutes  int `yaml:"interval_minutes"`   // 持仓同步周期（分钟）
}

// BudgetConfig 全量同步请求权重预算
type BudgetConfig struct {
	Enabled     bool           `yaml:"enabled"`
	PerMinute   int            `yaml:"per_minute"`   // 每分钟权重上限
	PathWeights map[string]int `yaml:"path_weights"` // 按接口路径覆盖权重
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type            string `yaml:"type"` // sqlite, postgres, mysql
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 分钟
	LogLevel        string `yaml:"log_level"`         // silent, error, warn, info
}

// LockConfig 分布式锁配置
type LockConfig struct {
	Enabled    bool        `yaml:"enabled"`
	Type       string      `yaml:"type"`        // redis
	Prefix     string      `yaml:"prefix"`      // 锁 key 前缀
	DefaultTTL int         `yaml:"default_ttl"` // 秒
	Redis      RedisConfig `yaml:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// WebConfig Web 服务配置
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level       string `yaml:"level"`
	FileEnabled bool   `yaml:"file_enabled"`
	Dir         string `yaml:"dir"`
}

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		Timezone: "Asia/Shanghai",
		Binance: BinanceConfig{
			BaseURL:            "https://fapi.binance.com",
			MinRequestInterval: 0.3,
			RecvWindowMs:       10000,
		},
		Sync: SyncConfig{
			DaysToFetch:                 30,
			UpdateIntervalMinutes:       10,
			SyncLookbackMinutes:         1440,
			SymbolSyncOverlapMinutes:    1440,
			UseTimeFilter:               true,
			WorkerPoolSize:              5,
			PriceWorkerPoolSize:         5,
			EnableDailyFullSync:         true,
			DailyFullSyncTime:           "03:30",
			APIJobLockWaitSeconds:       8,
			EnableTriggeredCompensation: true,
			CompensationLookbackMinutes: 1440,
		},
		OpenPositions: OpenPositionsConfig{
			WorkerPoolSize:   3,
			LookbackDays:     3,
			FullLookbackDays: 60,
			IntervalMinutes:  2,
		},
		Budget: BudgetConfig{
			Enabled:   true,
			PerMinute: 1800,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			DSN:          "data/tradesync.db",
			MaxOpenConns: 1,
			LogLevel:     "silent",
		},
		Lock: LockConfig{
			Type:       "redis",
			Prefix:     "tradesync:lock:",
			DefaultTTL: 600,
		},
		Web: WebConfig{
			Enabled: true,
			Listen:  ":8080",
		},
		Log: LogConfig{
			Level: "INFO",
			Dir:   "logs",
		},
	}
}

// Load 加载配置：默认值 <- 配置文件 <- 环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
			// 没有配置文件时仅靠默认值和环境变量
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖（环境变量优先于配置文件）
func (c *Config) applyEnv() {
	c.Timezone = envString("TIMEZONE", c.Timezone)

	c.Binance.APIKey = envString("BINANCE_API_KEY", c.Binance.APIKey)
	c.Binance.APISecret = envString("BINANCE_API_SECRET", c.Binance.APISecret)
	c.Binance.MinRequestInterval = envFloat("BINANCE_MIN_REQUEST_INTERVAL", c.Binance.MinRequestInterval)
	c.Binance.EnableUserStream = envBool("ENABLE_USER_STREAM", c.Binance.EnableUserStream)

	c.Sync.DaysToFetch = envInt("DAYS_TO_FETCH", c.Sync.DaysToFetch)
	c.Sync.StartDate = envString("START_DATE", c.Sync.StartDate)
	c.Sync.EndDate = envString("END_DATE", c.Sync.EndDate)
	c.Sync.ForceFullSync = envBool("FORCE_FULL_SYNC", c.Sync.ForceFullSync)
	c.Sync.UpdateIntervalMinutes = envInt("UPDATE_INTERVAL_MINUTES", c.Sync.UpdateIntervalMinutes)
	c.Sync.SyncLookbackMinutes = envInt("SYNC_LOOKBACK_MINUTES", c.Sync.SyncLookbackMinutes)
	c.Sync.SymbolSyncOverlapMinutes = envInt("SYMBOL_SYNC_OVERLAP_MINUTES", c.Sync.SymbolSyncOverlapMinutes)
	c.Sync.UseTimeFilter = envBool("SYNC_USE_TIME_FILTER", c.Sync.UseTimeFilter)
	c.Sync.WorkerPoolSize = envInt("WORKER_POOL_SIZE", c.Sync.WorkerPoolSize)
	c.Sync.PriceWorkerPoolSize = envInt("PRICE_WORKER_POOL_SIZE", c.Sync.PriceWorkerPoolSize)
	c.Sync.EnableDailyFullSync = envBool("ENABLE_DAILY_FULL_SYNC", c.Sync.EnableDailyFullSync)
	c.Sync.DailyFullSyncTime = envString("DAILY_FULL_SYNC_TIME", c.Sync.DailyFullSyncTime)
	c.Sync.APIJobLockWaitSeconds = envInt("API_JOB_LOCK_WAIT_SECONDS", c.Sync.APIJobLockWaitSeconds)
	c.Sync.EnableTriggeredCompensation = envBool("ENABLE_TRIGGERED_TRADES_COMPENSATION", c.Sync.EnableTriggeredCompensation)
	c.Sync.CompensationLookbackMinutes = envInt("TRADES_COMPENSATION_LOOKBACK_MINUTES", c.Sync.CompensationLookbackMinutes)
	if v := envString("EXTRA_LOSS_INCOME_TYPES", ""); v != "" {
		c.Sync.ExtraLossIncomeTypes = splitAndTrim(v)
	}

	c.OpenPositions.WorkerPoolSize = envInt("OPEN_POSITIONS_WORKER_POOL_SIZE", c.OpenPositions.WorkerPoolSize)
	c.OpenPositions.LookbackDays = envInt("OPEN_POSITIONS_LOOKBACK_DAYS", c.OpenPositions.LookbackDays)
	c.OpenPositions.FullLookbackDays = envInt("OPEN_POSITIONS_FULL_LOOKBACK_DAYS", c.OpenPositions.FullLookbackDays)
	c.OpenPositions.IntervalMinutes = envInt("OPEN_POSITIONS_INTERVAL_MINUTES", c.OpenPositions.IntervalMinutes)

	c.Budget.Enabled = envBool("FULL_SYNC_REQUEST_BUDGET_ENABLED", c.Budget.Enabled)
	c.Budget.PerMinute = envInt("FULL_SYNC_REQUEST_BUDGET_PER_MINUTE", c.Budget.PerMinute)

	c.Database.Type = envString("DATABASE_TYPE", c.Database.Type)
	c.Database.DSN = envString("DATABASE_DSN", c.Database.DSN)

	c.Lock.Enabled = envBool("LOCK_ENABLED", c.Lock.Enabled)
	c.Lock.Redis.Addr = envString("LOCK_REDIS_ADDR", c.Lock.Redis.Addr)
	c.Lock.Redis.Password = envString("LOCK_REDIS_PASSWORD", c.Lock.Redis.Password)

	c.Web.Listen = envString("WEB_LISTEN", c.Web.Listen)
	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
}

// validate 基础校验
func (c *Config) validate() error {
	if c.Sync.DaysToFetch <= 0 {
		return fmt.Errorf("days_to_fetch 必须大于 0")
	}
	if c.Sync.WorkerPoolSize <= 0 || c.Sync.PriceWorkerPoolSize <= 0 {
		return fmt.Errorf("worker_pool_size 必须大于 0")
	}
	if c.Binance.MinRequestInterval < 0 {
		return fmt.Errorf("min_request_interval 不能为负")
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
