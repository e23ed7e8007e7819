package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// ChangeCallback is called with the watched path once a burst of writes has
// settled. It runs on a timer goroutine.
type ChangeCallback func(path string)

// Watcher reports edits to individual files.
type Watcher struct {
	mu       sync.RWMutex
	watchers map[string]*fileWatcher // absolute path → watcher
	debounce time.Duration
	callback ChangeCallback
}

type fileWatcher struct {
	path      string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	lastMod   time.Time
	lastSize  int64
}

// New creates a file watcher. A zero debounce uses the default of 500ms.
func New(debounce time.Duration, callback ChangeCallback) *Watcher {
	if debounce <= 0 {
		debounce = debounceInterval
	}
	return &Watcher{
		watchers: make(map[string]*fileWatcher),
		debounce: debounce,
		callback: callback,
	}
}

// Watch starts watching path. The parent directory is watched rather than
// the file itself so that editors which save by rename keep being observed.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watcher: resolve %q: %w", path, err)
	}

	w.mu.RLock()
	_, exists := w.watchers[abs]
	w.mu.RUnlock()
	if exists {
		return nil
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return fmt.Errorf("watcher: add %q: %w", filepath.Dir(abs), err)
	}

	fw := &fileWatcher{
		path:      abs,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
	}
	fw.lastMod, fw.lastSize = stat(abs)

	w.mu.Lock()
	w.watchers[abs] = fw
	w.mu.Unlock()

	go w.watchLoop(fw)
	return nil
}

// Unwatch stops watching path.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	fw, ok := w.watchers[abs]
	if ok {
		delete(w.watchers, abs)
	}
	w.mu.Unlock()

	if ok {
		close(fw.cancel)
		fw.fsWatcher.Close()
	}
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop(fw *fileWatcher) {
	var timer *time.Timer

	for {
		select {
		case <-fw.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fw.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.recheck(fw)
			})

		case err, ok := <-fw.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "path", fw.path, "err", err)
		}
	}
}

// recheck notifies when the file still exists and its metadata moved.
func (w *Watcher) recheck(fw *fileWatcher) {
	select {
	case <-fw.cancel:
		return
	default:
	}

	mod, size := stat(fw.path)
	if mod.IsZero() {
		return // Removed, or mid-rename.
	}
	if mod.Equal(fw.lastMod) && size == fw.lastSize {
		return
	}
	fw.lastMod, fw.lastSize = mod, size

	if w.callback != nil {
		w.callback(fw.path)
	}
}

// Shutdown stops all watchers.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.watchers))
	for p := range w.watchers {
		paths = append(paths, p)
	}
	w.mu.Unlock()

	for _, p := range paths {
		w.Unwatch(p)
	}
}

func stat(path string) (time.Time, int64) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return time.Time{}, 0
	}
	return info.ModTime(), info.Size()
}
