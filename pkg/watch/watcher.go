// Package watch re-runs a callback when watched log files change.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last write before a change
// is reported.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc handles a settled change of path.
type ChangeFunc func(ctx context.Context, path string) error

// Watcher monitors files for changes. Changes to the same file are
// debounced and never handled concurrently.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.Mutex
	debounce time.Duration
	log      *slog.Logger

	// OnError receives callback and stat errors. Nil logs them.
	OnError func(path string, err error)
}

type fileState struct {
	lastModified time.Time
	size         int64
	processing   bool
	timer        *time.Timer
}

// NewWatcher creates a new file watcher. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: debounce,
		log:      logger,
	}, nil
}

// Watch starts watching a file for changes.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	w.mu.Lock()
	w.files[absPath] = &fileState{
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}
	w.mu.Unlock()

	// Editors replace files by rename, so the directory is watched.
	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	return nil
}

// Run delivers changes to fn until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, fn ChangeFunc) error {
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			w.mu.Lock()
			state, isWatched := w.files[absPath]
			if isWatched {
				if state.timer != nil {
					state.timer.Stop()
				}
				state.timer = time.AfterFunc(w.debounce, func() {
					w.handleChange(ctx, absPath, state, fn)
				})
			}
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.fail("", err)
		}
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.files {
		if s.timer != nil {
			s.timer.Stop()
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, path string, state *fileState, fn ChangeFunc) {
	if ctx.Err() != nil {
		return
	}

	w.mu.Lock()
	if state.processing {
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		state.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(path)
	if err != nil {
		w.fail(path, err)
		return
	}

	w.mu.Lock()
	unchanged := stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.log.Debug("file changed", "path", path, "size", stat.Size())
	if err := fn(ctx, path); err != nil {
		w.fail(path, err)
	}
}

func (w *Watcher) fail(path string, err error) {
	if w.OnError != nil {
		w.OnError(path, err)
		return
	}
	w.log.Error("watch failed", "path", path, "error", err)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
