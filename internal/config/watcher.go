package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"cogmux/internal/logging"
)

// OnReload receives a freshly loaded config after the file settles.
type OnReload func(cfg *Config)

// Watcher reloads the config file when it changes on disk. Events are
// debounced so editors that write in bursts trigger a single reload.
// A file that fails to parse is logged and the last good config kept.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	onReload OnReload
	log      *zap.Logger

	debounceMap map[string]time.Time
	debounceDur time.Duration

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewWatcher prepares a watcher for the config file at path. Call
// Start to begin watching.
func NewWatcher(path string, onReload OnReload) *Watcher {
	return &Watcher{
		path:        filepath.Clean(path),
		onReload:    onReload,
		log:         logging.Get(logging.CategoryConfig),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins watching the config file's directory. Watching the
// directory rather than the file survives editors that replace the
// file via rename.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("config watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w.watcher = watcher
	w.running = true

	go w.run(ctx)

	w.log.Info("config watcher started", zap.String("path", w.path))
	return nil
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()

	w.log.Info("config watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		case <-debounceTicker.C:
			w.processDebouncedEvents()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.debounceMap[w.path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebouncedEvents() {
	w.mu.Lock()
	var settled []string
	for name, last := range w.debounceMap {
		if time.Since(last) >= w.debounceDur {
			settled = append(settled, name)
			delete(w.debounceMap, name)
		}
	}
	w.mu.Unlock()

	for range settled {
		w.reload()
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed, keeping previous", zap.Error(err))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.log.Warn("config reload rejected, keeping previous", zap.Error(err))
		return
	}

	w.log.Info("config reloaded", zap.String("path", w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
