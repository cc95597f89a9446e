package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tradesync/logger"
)

// Watcher 配置文件监控器，文件变化时重新加载并回调
type Watcher struct {
	configPath string
	watcher    *fsnotify.Watcher
	onChange   func(*Config)
	mu         sync.Mutex
	isWatching bool
}

// NewWatcher 创建配置监控器
func NewWatcher(configPath string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		configPath: configPath,
		watcher:    fw,
		onChange:   onChange,
	}, nil
}

// Start 开始监控配置文件所在目录
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isWatching {
		return nil
	}

	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.isWatching = true

	go w.watchLoop(ctx)
	return nil
}

// Stop 停止监控
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isWatching {
		return nil
	}
	w.isWatching = false
	return w.watcher.Close()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// 延迟一下，避免读到写入一半的文件
			time.Sleep(100 * time.Millisecond)
			cfg, err := Load(w.configPath)
			if err != nil {
				logger.Warn("配置热加载失败，保留旧配置: %v", err)
				continue
			}
			logger.Info("配置文件已变更，热加载生效: %s", w.configPath)
			if w.onChange != nil {
				w.onChange(cfg)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("配置监控异常: %v", err)
		}
	}
}
