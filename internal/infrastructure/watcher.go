package infrastructure

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher calls a function when one file in a directory changes. Bursts of
// events (editors often write, chmod and rename in quick succession) are
// collapsed into a single call after the debounce interval.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	file     string
	onChange func()
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending *time.Timer
	started bool
	done    chan struct{}
}

// NewWatcher watches path. The parent directory is watched rather than the
// file so that atomic replacements and first-time creation are seen.
func NewWatcher(path string, debounce time.Duration, onChange func(), logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher:  fw,
		dir:      filepath.Dir(path),
		file:     filepath.Base(path),
		onChange: onChange,
		debounce: debounce,
		logger:   logger.Named("watcher"),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The event loop stops when ctx is cancelled or
// Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Debug("watching", zap.String("dir", w.dir), zap.String("file", w.file))
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

// Close stops the watcher and waits for the event loop to exit. It is safe
// to call after a failed Start.
func (w *Watcher) Close() error {
	err := w.watcher.Close()

	w.mu.Lock()
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.file {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.logger.Debug("change", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.onChange)
}
