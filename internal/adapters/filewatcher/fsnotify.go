// Package filewatcher watches a drop folder for CSV files.
// Adapter implementing ports.FileWatcher with fsnotify.
package filewatcher

import (
	"context"
	log "log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/0xcro3dile/lograg-go/internal/domain/ports"
)

// DefaultSettle is how long a file must stay quiet before its event is emitted.
// Copying a large CSV produces a burst of write events.
const DefaultSettle = 500 * time.Millisecond

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	settle     time.Duration
}

// NewFSNotifyWatcher creates a watcher for the given extensions (".csv" when empty).
func NewFSNotifyWatcher(extensions []string) (*FSNotifyWatcher, error) {
	return NewFSNotifyWatcherWithSettle(extensions, DefaultSettle)
}

// NewFSNotifyWatcherWithSettle creates a watcher that coalesces events per
// path until the path has been quiet for settle. Zero emits immediately.
func NewFSNotifyWatcherWithSettle(extensions []string, settle time.Duration) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".csv"}
	}
	normalized := make([]string, len(extensions))
	for i, e := range extensions {
		normalized[i] = strings.ToLower(e)
	}

	return &FSNotifyWatcher{
		watcher:    w,
		extensions: normalized,
		settle:     settle,
	}, nil
}

type pendingEvent struct {
	op   ports.FileOperation
	last time.Time
}

// Watch starts monitoring the directory and emits settled events.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}
	log.Info("watching directory", "dir", dir, "extensions", w.extensions)

	events := make(chan ports.FileEvent, 100)

	go func() {
		defer close(events)

		pending := make(map[string]*pendingEvent)
		var tick <-chan time.Time
		if w.settle > 0 {
			ticker := time.NewTicker(w.settle / 4)
			defer ticker.Stop()
			tick = ticker.C
		}

		emit := func(ev ports.FileEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.isWatchedExtension(event.Name) {
					continue
				}
				op, ok := operation(event.Op)
				if !ok {
					continue
				}
				if w.settle == 0 {
					if !emit(ports.FileEvent{Path: event.Name, Operation: op}) {
						return
					}
					continue
				}
				if p, ok := pending[event.Name]; ok {
					p.op = merge(p.op, op)
					p.last = time.Now()
				} else {
					pending[event.Name] = &pendingEvent{op: op, last: time.Now()}
				}
			case now := <-tick:
				var ready []string
				for path, p := range pending {
					if now.Sub(p.last) >= w.settle {
						ready = append(ready, path)
					}
				}
				sort.Strings(ready)
				for _, path := range ready {
					op := pending[path].op
					delete(pending, path)
					if !emit(ports.FileEvent{Path: path, Operation: op}) {
						return
					}
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Error("file watcher error", "dir", dir, "error", err)
			}
		}
	}()

	return events, nil
}

func operation(op fsnotify.Op) (ports.FileOperation, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return ports.FileCreated, true
	case op.Has(fsnotify.Write):
		return ports.FileModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ports.FileDeleted, true
	default:
		return 0, false
	}
}

// merge folds a new operation into the pending one for the same path.
func merge(prev, next ports.FileOperation) ports.FileOperation {
	switch {
	case next == ports.FileDeleted:
		return ports.FileDeleted
	case prev == ports.FileDeleted:
		return ports.FileCreated
	case prev == ports.FileCreated:
		return ports.FileCreated
	default:
		return next
	}
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

// isWatchedExtension checks if the file has a watched extension.
func (w *FSNotifyWatcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}
