package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// 文件事件合并窗口，编辑器保存时通常会产生多个事件
const watchSettle = 100 * time.Millisecond

// Watcher 监听配置文件变化并重新加载
type Watcher struct {
	path    string
	updates chan *Config
	logger  *logrus.Entry
}

// NewWatcher 创建配置文件监听器
func NewWatcher(path string) *Watcher {
	return &Watcher{
		path:    path,
		updates: make(chan *Config, 1),
		logger:  GetLoggerWithPrefix("config-watcher"),
	}
}

// Updates 返回新配置的通道，ctx结束后关闭
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Run 监听直到ctx结束，加载失败的配置会被记录并忽略
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.updates)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// 监听目录，文件被替换时仍能收到事件
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("Error waiting for file change: %v", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !relevant(event) {
				continue
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(watchSettle):
			}
			drain(watcher.Events)

			config, err := LoadConfigFromFile(w.path)
			if err != nil {
				w.logger.Errorf("Failed to load new config: %v", err)
				continue
			}
			w.logger.Infof("Configuration changed: %s", config)

			// 只保留最新的配置
			select {
			case <-w.updates:
			default:
			}
			w.updates <- config
		}
	}
}

func relevant(event fsnotify.Event) bool {
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func drain(events <-chan fsnotify.Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}
