package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Holder provides thread-safe access to the registry of a manifest
// directory with hot reload support.
type Holder struct {
	mu       sync.RWMutex
	current  *Static
	dir      string
	watcher  *fsnotify.Watcher
	onChange []func(*Static)
	onReload []func(error)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewHolder loads the manifest directory.
func NewHolder(dir string) (*Holder, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	res, err := LoadDir(absDir)
	if err != nil {
		return nil, fmt.Errorf("load manifests: %w", err)
	}
	return &Holder{
		current: NewStatic(res.Manifest),
		dir:     absDir,
		stopCh:  make(chan struct{}),
	}, nil
}

// Current returns the registry in effect. Callers should take one snapshot
// per dispatch.
func (h *Holder) Current() *Static {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload reloads the manifest directory.
// Returns error if loading fails (keeps old registry).
func (h *Holder) Reload() error {
	slog.Info("reloading manifests", "dir", h.dir)

	res, err := LoadDir(h.dir)
	if err != nil {
		slog.Error("manifest reload failed, keeping old registry", "error", err)
		err = fmt.Errorf("reload manifests: %w", err)
		h.reported(err)
		return err
	}
	next := NewStatic(res.Manifest)

	h.mu.Lock()
	prev := h.current
	h.current = next
	listeners := append([]func(*Static){}, h.onChange...)
	h.mu.Unlock()
	h.reported(nil)

	if prev.Name() != next.Name() {
		slog.Warn("application name changed", "old", prev.Name(), "new", next.Name())
	}
	if len(prev.Manifest().Modules) != len(next.Manifest().Modules) {
		slog.Info("module count changed",
			"old", len(prev.Manifest().Modules),
			"new", len(next.Manifest().Modules))
	}

	for _, fn := range listeners {
		fn(next)
	}

	slog.Info("manifests reloaded", "app", next.Name())
	return nil
}

// OnChange registers a callback run after each successful reload.
func (h *Holder) OnChange(fn func(*Static)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

// OnReload registers a callback run after every reload attempt with its
// error, nil on success.
func (h *Holder) OnReload(fn func(error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onReload = append(h.onReload, fn)
}

func (h *Holder) reported(err error) {
	h.mu.RLock()
	hooks := append([]func(error){}, h.onReload...)
	h.mu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}

// Watch starts watching the manifest directory and its immediate
// subdirectories (where code files usually live). Changes to .cue files
// trigger a reload.
func (h *Holder) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch directories rather than files: editors save atomically.
	dirs, err := watchDirs(h.dir)
	if err != nil {
		watcher.Close()
		return err
	}
	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			watcher.Close()
			return fmt.Errorf("watch directory %s: %w", d, err)
		}
	}
	h.watcher = watcher

	go h.watchLoop()

	slog.Info("watching manifests for changes", "dir", h.dir, "directories", len(dirs))
	return nil
}

// Stop stops watching. Safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) watchLoop() {
	for {
		select {
		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Ext(event.Name) != ".cue" {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("manifest file changed", "event", event.Op.String(), "file", event.Name)
				if err := h.Reload(); err != nil {
					slog.Error("file watch reload failed", "error", err)
				}
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("file watcher error", "error", err)

		case <-h.stopCh:
			return
		}
	}
}

func watchDirs(root string) ([]string, error) {
	dirs := []string{root}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}
