package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler receives a freshly loaded config.
type ChangeHandler func(cfg *Config)

// Watcher reloads the config file when it changes and passes the result to
// every registered handler. The parent directory is watched so editors that
// save by rename are seen too. Changes are debounced.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	handlers []ChangeHandler
	debounce time.Duration
	lastHash string
	stopChan chan struct{}
	done     chan struct{}
	mu       sync.Mutex
}

// NewWatcher creates a watcher for configPath. current is the config already
// in use; reloads that produce the same content are skipped.
func NewWatcher(configPath string, current *Config) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &Watcher{
		path:     filepath.Clean(configPath),
		watcher:  w,
		debounce: 300 * time.Millisecond,
	}
	if current != nil {
		cw.lastHash = current.Hash()
	}
	return cw, nil
}

// OnChange registers a handler to be called when config changes.
func (cw *Watcher) OnChange(handler ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, handler)
}

// Start begins watching.
func (cw *Watcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return err
	}

	cw.stopChan = make(chan struct{})
	cw.done = make(chan struct{})
	go cw.watchLoop()

	slog.Info("config watcher started", "path", cw.path)
	return nil
}

// Stop halts the watcher and waits for the loop to exit.
func (cw *Watcher) Stop() {
	if cw.stopChan != nil {
		close(cw.stopChan)
		<-cw.done
	}
	cw.watcher.Close()
	slog.Info("config watcher stopped")
}

func (cw *Watcher) watchLoop() {
	defer close(cw.done)
	var debounceTimer *time.Timer

	for {
		select {
		case <-cw.stopChan:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(cw.debounce, cw.reload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		}
	}
}

func (cw *Watcher) reload() {
	cfg, err := Load(cw.path)
	if err != nil {
		slog.Error("config reload failed", "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config reload rejected", "error", err)
		return
	}

	cw.mu.Lock()
	hash := cfg.Hash()
	if hash == cw.lastHash {
		cw.mu.Unlock()
		return
	}
	cw.lastHash = hash
	handlers := make([]ChangeHandler, len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.mu.Unlock()

	slog.Info("config file changed, reloaded", "path", cw.path)
	for _, h := range handlers {
		h(cfg)
	}
}
