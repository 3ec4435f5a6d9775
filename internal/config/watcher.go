package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ingressgw/internal/gateway"
)

// debounceDuration absorbs the burst of fs events a single atomic save
// produces (write + rename, or create + write from some editors).
const debounceDuration = 500 * time.Millisecond

// Watcher watches the config file on disk and calls RouteTable.Reload
// whenever it changes, debounced so a single save triggers one reload.
type Watcher struct {
	configPath string
	table      *gateway.RouteTable
	watcher    *fsnotify.Watcher
	logger     *slog.Logger

	mu        sync.Mutex
	debouncer *time.Timer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher for configPath, reloading table on change.
func NewWatcher(configPath string, table *gateway.RouteTable, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		configPath: absPath,
		table:      table,
		watcher:    fsw,
		logger:     logger.With("component", "config_watcher"),
		stopCh:     make(chan struct{}),
	}

	if err := fsw.Add(absPath); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config file: %w", err)
	}
	// Also watch the containing directory: editors that save atomically
	// (write to a temp file, then rename over the original) emit a
	// Rename/Create on the directory rather than a Write on the file.
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		w.logger.Warn("failed to watch config directory", "error", err)
	}

	return w, nil
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
	w.logger.Info("config watcher started", "file", w.configPath)
}

// Stop stops the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.wg.Wait()

	w.mu.Lock()
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.configPath {
		return
	}
	switch {
	case event.Op&fsnotify.Write == fsnotify.Write,
		event.Op&fsnotify.Create == fsnotify.Create,
		event.Op&fsnotify.Rename == fsnotify.Rename:
		w.scheduleReload()
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		w.logger.Warn("config file removed", "file", event.Name)
		_ = w.watcher.Add(event.Name)
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	w.debouncer = time.AfterFunc(debounceDuration, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.table.Reload(ctx); err != nil {
			w.logger.Error("config reload failed", "error", err)
		}
	})
}
