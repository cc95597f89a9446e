package config

import "sync/atomic"

// Snapshot 配置快照持有者
// 热加载整体替换指针，读取方拿到的永远是一份完整一致的配置
type Snapshot struct {
	value atomic.Pointer[Config]
}

// NewSnapshot 创建快照持有者
func NewSnapshot(cfg *Config) *Snapshot {
	s := &Snapshot{}
	s.value.Store(cfg)
	return s
}

// Get 当前配置
func (s *Snapshot) Get() *Config {
	return s.value.Load()
}

// Set 替换为新配置
func (s *Snapshot) Set(cfg *Config) {
	s.value.Store(cfg)
}
