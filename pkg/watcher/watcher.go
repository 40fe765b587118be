// Package watcher 监听语料目录，新增或更新的 PDF 在写入稳定后交给回调处理。
package watcher

import (
	"context"
	"drone-helpdesk-go/pkg/log"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce 是同一文件最后一次写事件之后的等待时间。
const DefaultDebounce = 2 * time.Second

// HandlerFunc 处理一个已写入完成的 PDF 路径。
type HandlerFunc func(ctx context.Context, path string) error

// CorpusWatcher 监听单个目录（不递归）。
type CorpusWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	handle   HandlerFunc
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewCorpusWatcher 创建监听器并立即注册目录。debounce <= 0 时使用 DefaultDebounce。
func NewCorpusWatcher(dir string, debounce time.Duration, handle HandlerFunc) (*CorpusWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &CorpusWatcher{
		watcher:  w,
		dir:      dir,
		handle:   handle,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run 阻塞直到 ctx 结束，返回前关闭底层 watcher。
func (w *CorpusWatcher) Run(ctx context.Context) error {
	defer w.stop()
	log.Infof("[CorpusWatcher] 开始监听目录: %s", w.dir)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("[CorpusWatcher] 监听出错: %v", err)
		}
	}
}

// schedule 每次事件都重置该文件的计时器，仅最后一次触发回调。
func (w *CorpusWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		log.Infof("[CorpusWatcher] 检测到新文档: %s", filepath.Base(path))
		if err := w.handle(ctx, path); err != nil {
			log.Errorf("[CorpusWatcher] 处理文档失败, path: %s, error: %v", path, err)
		}
	})
}

func (w *CorpusWatcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	_ = w.watcher.Close()
}
