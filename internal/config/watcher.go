package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchInterval is the fallback poll period of a [Watcher].
const DefaultWatchInterval = 5 * time.Second

// eventSettle is how long the file must stay quiet after an event before
// it is read.
const eventSettle = 100 * time.Millisecond

// Watcher follows a config file and calls a callback when its content
// changes to a new valid config. Filesystem events trigger a check and a
// slow poll covers filesystems without notification support. Invalid edits
// are logged and ignored, so a typo in a running game's config never takes
// the engine down.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	events   *fsnotify.Watcher

	mu   sync.Mutex
	last snapshot

	done     chan struct{}
	stopOnce sync.Once
}

// snapshot is one successfully loaded version of the file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// readSnapshot loads and validates the file at path.
func readSnapshot(path string) (snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the poll period. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and starts following it. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	snap, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.last = snap
	w.events = watchDir(path)

	go w.loop()
	return w, nil
}

// watchDir subscribes to the directory holding path, so editors that save
// by rename are still seen. It returns nil when events are unavailable.
func watchDir(path string) *fsnotify.Watcher {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: file events unavailable, polling only", "err", err)
		return nil
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		slog.Warn("config: file events unavailable, polling only", "path", path, "err", err)
		_ = fw.Close()
		return nil
	}
	return fw
}

// Current returns the last valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last.cfg
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		if w.events != nil {
			_ = w.events.Close()
		}
	})
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Nil channels block forever when events are unavailable.
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.events != nil {
		events = w.events.Events
		errs = w.events.Errors
	}
	target := filepath.Clean(w.path)

	// settle fires once a burst of events has quieted down, so a truncate
	// followed by a write is read as one edit.
	var settle <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.refresh()
		case <-settle:
			settle = nil
			w.refresh()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == target && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settle = time.After(eventSettle)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("config: watcher event error", "path", w.path, "err", err)
		}
	}
}

// refresh reloads the file when its mtime moved and swaps in the new config
// when the content differs and validates.
func (w *Watcher) refresh() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watcher cannot stat file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.last.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	snap, err := readSnapshot(w.path)
	if err != nil {
		slog.Warn("config: rejected edit, keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	prev := w.last
	if snap.sum == prev.sum {
		// Touched only.
		w.last.mtime = snap.mtime
		w.mu.Unlock()
		return
	}
	w.last = snap
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(prev.cfg, snap.cfg)
	}
}
