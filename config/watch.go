package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 基于 fsnotify 监听配置文件变更，变更通过校验后回调。
// 风控参数对运行中会话不生效，由调用方留到下一会话使用。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 避免编辑器多次写入触发连续重载
	OnError  func(error)   // 加载或校验失败时回调，操作员改错配置必须有反馈

	mu         sync.Mutex
	lastReload time.Time
	pending    *AppConfig // 已通过校验、待下一会话生效的配置
}

// Start 开始监听，阻塞直到 ctx 取消。每次文件变更且校验通过时调用 onUpdate。
func (w *Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 2 * time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	// 监听目录，覆盖原子替换（rename+create）的写入方式
	if err := fw.Add(filepath.Dir(w.Path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.Path, err)
	}

	target := filepath.Clean(w.Path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.reload(onUpdate)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.fail(fmt.Errorf("watch %s: %w", w.Path, err)) // 监听错误不致命，下次事件继续
		}
	}
}

func (w *Watcher) reload(onUpdate func(AppConfig)) {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.Cooldown {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		w.fail(fmt.Errorf("reload %s: %w", w.Path, err))
		return
	}
	if err := Validate(cfg); err != nil {
		w.fail(fmt.Errorf("reload %s: %w", w.Path, err))
		return
	}

	w.mu.Lock()
	w.pending = &cfg
	w.mu.Unlock()

	if onUpdate != nil {
		onUpdate(cfg)
	}
}

func (w *Watcher) fail(err error) {
	if w.OnError != nil {
		w.OnError(err)
	}
}

// Pending 返回最近一次通过校验的配置，没有则返回 false。
func (w *Watcher) Pending() (AppConfig, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return AppConfig{}, false
	}
	return *w.pending, true
}
