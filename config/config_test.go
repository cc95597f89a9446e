package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Binance.MinRequestInterval != 0.3 {
		t.Errorf("默认请求间隔期望 0.3，实际 %f", cfg.Binance.MinRequestInterval)
	}
	if cfg.Sync.DaysToFetch != 30 {
		t.Errorf("默认回溯天数期望 30，实际 %d", cfg.Sync.DaysToFetch)
	}
	if cfg.Sync.DailyFullSyncTime != "03:30" {
		t.Errorf("默认每日全量时间期望 03:30，实际 %q", cfg.Sync.DailyFullSyncTime)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("默认配置应通过校验: %v", err)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
sync:
  days_to_fetch: 7
  worker_pool_size: 2
database:
  type: sqlite
  dsn: data/test.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	// 环境变量优先于配置文件
	t.Setenv("DAYS_TO_FETCH", "14")
	t.Setenv("EXTRA_LOSS_INCOME_TYPES", "INSURANCE_CLEAR, LIQUIDATION_FEE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Sync.DaysToFetch != 14 {
		t.Errorf("环境变量应覆盖配置文件: 期望 14 实际 %d", cfg.Sync.DaysToFetch)
	}
	if cfg.Sync.WorkerPoolSize != 2 {
		t.Errorf("配置文件应覆盖默认值: 期望 2 实际 %d", cfg.Sync.WorkerPoolSize)
	}
	if len(cfg.Sync.ExtraLossIncomeTypes) != 2 || cfg.Sync.ExtraLossIncomeTypes[1] != "LIQUIDATION_FEE" {
		t.Errorf("额外类型解析错误: %v", cfg.Sync.ExtraLossIncomeTypes)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("配置文件缺失时应使用默认值: %v", err)
	}
	if cfg.Sync.DaysToFetch != 30 {
		t.Errorf("缺失文件时应为默认值 30，实际 %d", cfg.Sync.DaysToFetch)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Sync.DaysToFetch = 0
	if err := cfg.validate(); err == nil {
		t.Errorf("回溯天数为 0 应校验失败")
	}

	cfg = Default()
	cfg.Database.Type = "oracle"
	if err := cfg.validate(); err == nil {
		t.Errorf("不支持的数据库类型应校验失败")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" a, b ,, c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("splitAndTrim 结果错误: %v", got)
	}
}
