package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goose-run/goose-core/internal/logging"
)

// Watcher watches the config file for edits and invokes OnReload with the
// freshly reloaded Config; other files in its directory are ignored,
// grounded on the teacher's fsnotify+debounce pattern in
// internal/core/mangle_watcher.go.
type Watcher struct {
	mu       sync.Mutex
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	last     map[string]time.Time

	OnReload func(*Config)
	OnError  func(error)
}

// NewWatcher creates a Watcher for the config file at path. Call Start to
// begin watching; it is a no-op until then.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		watcher:  fw,
		debounce: 300 * time.Millisecond,
		last:     make(map[string]time.Time),
	}, nil
}

// Start begins watching the config file's parent directory (watching the
// directory, not the file, survives editors that replace-on-save rather than
// write-in-place). Non-blocking; runs until ctx is cancelled or Close is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handle(target)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.OnError != nil {
				w.OnError(err)
			}
			logging.Get(logging.CategoryPolicy).Warn("config watcher error: %v", err)
		}
	}
}

// handle debounces rapid-fire writes (many editors emit several events per
// save) before reloading: every event re-arms the wait, and only the timer
// of the last event in a burst reloads.
func (w *Watcher) handle(path string) {
	w.mu.Lock()
	w.last[path] = time.Now()
	w.mu.Unlock()

	time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		last := w.last[path]
		w.mu.Unlock()
		if time.Since(last) < w.debounce {
			return
		}

		cfg, err := Load(w.path)
		if err != nil {
			if w.OnError != nil {
				w.OnError(err)
			}
			logging.Get(logging.CategoryPolicy).Error("config reload failed: %v", err)
			return
		}
		logging.Get(logging.CategoryPolicy).Info("config reloaded from %s", w.path)
		if w.OnReload != nil {
			w.OnReload(cfg)
		}
	})
}
