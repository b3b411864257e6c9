package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 100 * time.Millisecond

// Event is a wrapper around fsnotify.Event
type Event struct {
	Name string
	Op   fsnotify.Op
}

// Batch is the set of events collected during one debounce window.
type Batch []Event

// Paths returns the distinct file names in the batch, in arrival order.
func (b Batch) Paths() []string {
	seen := make(map[string]bool, len(b))
	var paths []string
	for _, e := range b {
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		paths = append(paths, e.Name)
	}
	return paths
}

// Watcher watches directory trees and reports debounced batches of changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	Dirs     []string
	Debounce time.Duration
	OnBatch  func(Batch)

	logger *slog.Logger

	mu      sync.Mutex
	pending Batch
}

// New creates a new watcher for the specified directories
func New(dirs []string, debounce time.Duration, logger *slog.Logger, onBatch func(Batch)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		watcher:  w,
		Dirs:     dirs,
		Debounce: debounce,
		OnBatch:  onBatch,
		logger:   logger,
	}, nil
}

// Run watches until ctx is cancelled. OnBatch is called from a single
// goroutine, so a slow callback delays the next batch instead of
// overlapping it.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	for _, dir := range w.Dirs {
		if err := w.addTree(dir); err != nil {
			return err
		}
	}

	fire := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}

			// Watch directories created after startup
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			w.mu.Lock()
			w.pending = append(w.pending, Event{Name: event.Name, Op: event.Op})
			w.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			w.mu.Lock()
			batch := w.pending
			w.pending = nil
			w.mu.Unlock()
			if len(batch) > 0 && w.OnBatch != nil {
				w.OnBatch(batch)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) addTree(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		// Skip hidden directories like .git
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant drops chmod-only events and editor swap files.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	switch {
	case strings.HasPrefix(base, ".#"),
		strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".tmp"):
		return false
	}
	return true
}
