package database

import (
	"context"
	"time"
)

// Database 数据库接口
type Database interface {
	// 平仓记录
	SaveTrades(ctx context.Context, trades []*Trade, overwrite bool) (int, error)
	GetTrades(ctx context.Context, filter *TradeFilter) ([]*Trade, error)
	GetLastEntryTime(ctx context.Context) (string, error)

	// 按币种同步水位线
	GetSymbolSyncStates(ctx context.Context) (map[string]*SymbolSyncState, error)
	UpdateSymbolSyncSuccessBatch(ctx context.Context, symbols []string, endMs int64) error
	UpdateSymbolSyncFailureBatch(ctx context.Context, failures map[string]string, endMs int64) error

	// 同步运行日志（只追加）
	LogSyncRun(ctx context.Context, entry *SyncRunLog) error
	GetRecentSyncRuns(ctx context.Context, limit int) ([]*SyncRunLog, error)

	// 当前持仓
	SaveOpenPositions(ctx context.Context, rows []*OpenPosition) (int, []*OpenPosition, error)
	GetOpenPositions(ctx context.Context) ([]*OpenPosition, error)

	// 划转记录
	SaveTransferIncome(ctx context.Context, records []*TransferIncome) (int, error)

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 数据模型

// Trade 平仓记录（展示层最终形态，落库字段即对外兼容面）
type Trade struct {
	ID             int64   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	No             int     `gorm:"column:no" json:"no"`
	Date           string  `gorm:"column:date;size:16" json:"date"`
	EntryTime      string  `gorm:"column:entry_time;size:32;index" json:"entry_time"`
	ExitTime       string  `gorm:"column:exit_time;size:32" json:"exit_time"`
	HoldingTime    string  `gorm:"column:holding_time;size:32" json:"holding_time"`
	Symbol         string  `gorm:"column:symbol;size:50;uniqueIndex:idx_trades_key" json:"symbol"`
	Side           string  `gorm:"column:side;size:10" json:"side"`
	PriceChangePct float64 `gorm:"column:price_change_pct" json:"price_change_pct"`
	EntryAmount    float64 `gorm:"column:entry_amount" json:"entry_amount"`
	EntryPrice     float64 `gorm:"column:entry_price" json:"entry_price"`
	ExitPrice      float64 `gorm:"column:exit_price" json:"exit_price"`
	Qty            float64 `gorm:"column:qty" json:"qty"`
	Fees           float64 `gorm:"column:fees" json:"fees"`
	PnLNet         float64 `gorm:"column:pnl_net" json:"pnl_net"`
	CloseType      string  `gorm:"column:close_type;size:10" json:"close_type"`
	ReturnRate     string  `gorm:"column:return_rate;size:16" json:"return_rate"`
	OpenPrice      float64 `gorm:"column:open_price" json:"open_price"`
	PnLBeforeFees  float64 `gorm:"column:pnl_before_fees" json:"pnl_before_fees"`
	EntryOrderID   int64   `gorm:"column:entry_order_id;uniqueIndex:idx_trades_key" json:"entry_order_id"`
	ExitOrderID    string  `gorm:"column:exit_order_id;size:500;uniqueIndex:idx_trades_key" json:"exit_order_id"`
}

// TableName 表名
func (Trade) TableName() string { return "trades" }

// SymbolSyncState 按币种同步水位线
// last_success_end_ms 只在该币种完整成功后推进
type SymbolSyncState struct {
	Symbol           string `gorm:"column:symbol;primaryKey;size:50" json:"symbol"`
	LastSuccessEndMs int64  `gorm:"column:last_success_end_ms" json:"last_success_end_ms"`
	LastAttemptEndMs int64  `gorm:"column:last_attempt_end_ms" json:"last_attempt_end_ms"`
	LastError        string `gorm:"column:last_error;size:500" json:"last_error"`
}

// TableName 表名
func (SymbolSyncState) TableName() string { return "symbol_sync_state" }

// SyncRunLog 同步运行日志，只追加不更新
type SyncRunLog struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunType      string    `gorm:"column:run_type;size:40;index" json:"run_type"` // trades_sync / open_positions_sync / trades_compensation
	Mode         string    `gorm:"column:mode;size:20" json:"mode"`               // full / incremental / triggered
	Status       string    `gorm:"column:status;size:20" json:"status"`           // success / error / skipped
	SymbolCount  int       `gorm:"column:symbol_count" json:"symbol_count"`
	RowsCount    int       `gorm:"column:rows_count" json:"rows_count"`
	TradesSaved  int       `gorm:"column:trades_saved" json:"trades_saved"`
	OpenSaved    int       `gorm:"column:open_saved" json:"open_saved"`
	ElapsedMs    int64     `gorm:"column:elapsed_ms" json:"elapsed_ms"`
	ErrorMessage string    `gorm:"column:error_message;size:500" json:"error_message"`
	CreatedAt    time.Time `gorm:"column:created_at;index" json:"created_at"`
}

// TableName 表名
func (SyncRunLog) TableName() string { return "sync_run_log" }

// OpenPosition 当前持仓，(symbol, order_id) 唯一
// 替换写入时必须保留已有的提醒/长线标记
type OpenPosition struct {
	ID               int64   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Date             string  `gorm:"column:date;size:16" json:"date"`
	Symbol           string  `gorm:"column:symbol;size:50;uniqueIndex:idx_open_key" json:"symbol"`
	Side             string  `gorm:"column:side;size:10" json:"side"`
	EntryTime        string  `gorm:"column:entry_time;size:32" json:"entry_time"`
	EntryPrice       float64 `gorm:"column:entry_price" json:"entry_price"`
	Qty              float64 `gorm:"column:qty" json:"qty"`
	EntryAmount      float64 `gorm:"column:entry_amount" json:"entry_amount"`
	OrderID          int64   `gorm:"column:order_id;uniqueIndex:idx_open_key" json:"order_id"`
	Alerted          bool    `gorm:"column:alerted" json:"alerted"`
	LastAlertTime    string  `gorm:"column:last_alert_time;size:32" json:"last_alert_time"`
	ProfitAlerted    bool    `gorm:"column:profit_alerted" json:"profit_alerted"`
	ProfitAlertTime  string  `gorm:"column:profit_alert_time;size:32" json:"profit_alert_time"`
	ReentryAlerted   bool    `gorm:"column:reentry_alerted" json:"reentry_alerted"`
	ReentryAlertTime string  `gorm:"column:reentry_alert_time;size:32" json:"reentry_alert_time"`
	IsLongTerm       bool    `gorm:"column:is_long_term" json:"is_long_term"`
}

// TableName 表名
func (OpenPosition) TableName() string { return "open_positions" }

// TransferIncome 资金划转记录（tran_id 去重）
type TransferIncome struct {
	ID     int64   `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	TranID int64   `gorm:"column:tran_id;uniqueIndex" json:"tran_id"`
	TimeMs int64   `gorm:"column:time_ms;index" json:"time_ms"`
	Asset  string  `gorm:"column:asset;size:20" json:"asset"`
	Income float64 `gorm:"column:income" json:"income"`
}

// TableName 表名
func (TransferIncome) TableName() string { return "transfer_income" }

// TradeFilter 平仓记录过滤器
type TradeFilter struct {
	Symbol    string
	Side      string
	StartDate string // yyyymmdd
	EndDate   string
	Limit     int
	Offset    int
}
