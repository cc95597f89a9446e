package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormDatabase GORM 数据库实现
type GormDatabase struct {
	db *gorm.DB
}

// DBConfig 数据库配置
type DBConfig struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

// NewGormDatabase 创建 GORM 数据库实例
func NewGormDatabase(config *DBConfig) (*GormDatabase, error) {
	var dialector gorm.Dialector

	switch config.Type {
	case "sqlite":
		dialector = sqlite.Open(config.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(config.DSN)
	case "mysql":
		dialector = mysql.Open(config.DSN)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", config.Type)
	}

	// 日志级别
	logLevel := logger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 sql.DB 失败: %w", err)
	}

	// 配置连接池
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	// 自动迁移
	if err := db.AutoMigrate(
		&Trade{},
		&SymbolSyncState{},
		&SyncRunLog{},
		&OpenPosition{},
		&TransferIncome{},
	); err != nil {
		return nil, fmt.Errorf("自动迁移失败: %w", err)
	}

	return &GormDatabase{db: db}, nil
}

var tradeUpdateColumns = []string{
	"no", "date", "entry_time", "exit_time", "holding_time", "side",
	"price_change_pct", "entry_amount", "entry_price", "exit_price", "qty",
	"fees", "pnl_net", "close_type", "return_rate", "open_price",
	"pnl_before_fees",
}

// SaveTrades 按 (symbol, entry_order_id, exit_order_id) 幂等写入平仓记录
// overwrite 模式先删除本批 entry_time 范围内的旧行（全量同步纠正历史数据）
func (g *GormDatabase) SaveTrades(ctx context.Context, trades []*Trade, overwrite bool) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if overwrite {
			minEntry, maxEntry := trades[0].EntryTime, trades[0].EntryTime
			for _, t := range trades[1:] {
				if t.EntryTime < minEntry {
					minEntry = t.EntryTime
				}
				if t.EntryTime > maxEntry {
					maxEntry = t.EntryTime
				}
			}
			// 范围删除，不做全表清空，批次之外的历史保持不动
			if err := tx.Where("entry_time >= ? AND entry_time <= ?", minEntry, maxEntry).
				Delete(&Trade{}).Error; err != nil {
				return err
			}
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "symbol"}, {Name: "entry_order_id"}, {Name: "exit_order_id"},
			},
			DoUpdates: clause.AssignmentColumns(tradeUpdateColumns),
		}).CreateInBatches(trades, 100).Error
	})
	if err != nil {
		return 0, fmt.Errorf("保存平仓记录失败: %w", err)
	}
	return len(trades), nil
}

// GetTrades 获取平仓记录
func (g *GormDatabase) GetTrades(ctx context.Context, filter *TradeFilter) ([]*Trade, error) {
	query := g.db.WithContext(ctx).Model(&Trade{})

	if filter != nil {
		if filter.Symbol != "" {
			query = query.Where("symbol = ?", filter.Symbol)
		}
		if filter.Side != "" {
			query = query.Where("side = ?", filter.Side)
		}
		if filter.StartDate != "" {
			query = query.Where("date >= ?", filter.StartDate)
		}
		if filter.EndDate != "" {
			query = query.Where("date <= ?", filter.EndDate)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	query = query.Order("entry_time ASC")

	var trades []*Trade
	if err := query.Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// GetLastEntryTime 最近一条平仓记录的入场时间（增量窗口起点）
func (g *GormDatabase) GetLastEntryTime(ctx context.Context) (string, error) {
	var last *string
	err := g.db.WithContext(ctx).Model(&Trade{}).
		Select("MAX(entry_time)").Scan(&last).Error
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", nil
	}
	return *last, nil
}

// GetSymbolSyncStates 读取全部币种水位线
func (g *GormDatabase) GetSymbolSyncStates(ctx context.Context) (map[string]*SymbolSyncState, error) {
	var states []*SymbolSyncState
	if err := g.db.WithContext(ctx).Find(&states).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*SymbolSyncState, len(states))
	for _, s := range states {
		out[s.Symbol] = s
	}
	return out, nil
}

// UpdateSymbolSyncSuccessBatch 推进成功币种的水位线并清空错误
// 只能传入本轮确实完整成功的币种
func (g *GormDatabase) UpdateSymbolSyncSuccessBatch(ctx context.Context, symbols []string, endMs int64) error {
	if len(symbols) == 0 {
		return nil
	}
	states := make([]*SymbolSyncState, 0, len(symbols))
	for _, s := range symbols {
		states = append(states, &SymbolSyncState{
			Symbol:           s,
			LastSuccessEndMs: endMs,
			LastAttemptEndMs: endMs,
			LastError:        "",
		})
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_success_end_ms", "last_attempt_end_ms", "last_error",
		}),
	}).Create(&states).Error
}

// UpdateSymbolSyncFailureBatch 记录失败币种的尝试时间和错误，不动成功水位线
func (g *GormDatabase) UpdateSymbolSyncFailureBatch(ctx context.Context, failures map[string]string, endMs int64) error {
	if len(failures) == 0 {
		return nil
	}
	states := make([]*SymbolSyncState, 0, len(failures))
	for symbol, reason := range failures {
		states = append(states, &SymbolSyncState{
			Symbol:           symbol,
			LastAttemptEndMs: endMs,
			LastError:        truncateError(reason),
		})
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_attempt_end_ms", "last_error",
		}),
	}).Create(&states).Error
}

// LogSyncRun 追加一条同步运行日志
func (g *GormDatabase) LogSyncRun(ctx context.Context, entry *SyncRunLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.ErrorMessage = truncateError(entry.ErrorMessage)
	return g.db.WithContext(ctx).Create(entry).Error
}

// GetRecentSyncRuns 最近的同步运行日志
func (g *GormDatabase) GetRecentSyncRuns(ctx context.Context, limit int) ([]*SyncRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []*SyncRunLog
	err := g.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// SaveOpenPositions 替换当前持仓集合
// 1) 保留仍在持仓的提醒/长线标记 2) 删除已消失的持仓并返回它们（供补偿同步）
// 3) 空输入代表账户无持仓，清空整表
func (g *GormDatabase) SaveOpenPositions(ctx context.Context, rows []*OpenPosition) (int, []*OpenPosition, error) {
	var removed []*OpenPosition

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []*OpenPosition
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}
		existingByKey := make(map[string]*OpenPosition, len(existing))
		for _, e := range existing {
			existingByKey[openKey(e.Symbol, e.OrderID)] = e
		}

		if len(rows) == 0 {
			if len(existing) == 0 {
				return nil
			}
			removed = existing
			return tx.Where("1 = 1").Delete(&OpenPosition{}).Error
		}

		active := make(map[string]bool, len(rows))
		for _, r := range rows {
			key := openKey(r.Symbol, r.OrderID)
			active[key] = true
			// 跨替换保留提醒状态
			if old, ok := existingByKey[key]; ok {
				r.Alerted = old.Alerted
				r.LastAlertTime = old.LastAlertTime
				r.ProfitAlerted = old.ProfitAlerted
				r.ProfitAlertTime = old.ProfitAlertTime
				r.ReentryAlerted = old.ReentryAlerted
				r.ReentryAlertTime = old.ReentryAlertTime
				r.IsLongTerm = old.IsLongTerm
			}
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}, {Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"date", "side", "entry_time", "entry_price", "qty", "entry_amount",
			}),
		}).CreateInBatches(rows, 100).Error; err != nil {
			return err
		}

		for key, old := range existingByKey {
			if active[key] {
				continue
			}
			removed = append(removed, old)
			if err := tx.Where("symbol = ? AND order_id = ?", old.Symbol, old.OrderID).
				Delete(&OpenPosition{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("保存持仓失败: %w", err)
	}
	return len(rows), removed, nil
}

// GetOpenPositions 读取当前持仓
func (g *GormDatabase) GetOpenPositions(ctx context.Context) ([]*OpenPosition, error) {
	var rows []*OpenPosition
	if err := g.db.WithContext(ctx).Order("entry_time ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SaveTransferIncome 写入划转记录，tran_id 冲突时忽略
func (g *GormDatabase) SaveTransferIncome(ctx context.Context, records []*TransferIncome) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	result := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tran_id"}},
		DoNothing: true,
	}).CreateInBatches(records, 100)
	if result.Error != nil {
		return 0, fmt.Errorf("保存划转记录失败: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Ping 健康检查
func (g *GormDatabase) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (g *GormDatabase) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func openKey(symbol string, orderID int64) string {
	return fmt.Sprintf("%s_%d", symbol, orderID)
}

// truncateError 错误信息截断到 500 字符
func truncateError(s string) string {
	if len(s) > 500 {
		return s[:500]
	}
	return s
}
