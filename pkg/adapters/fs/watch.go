package fs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/nebula/pkg/core"
)

// Watch emits an event whenever an entry is added to or removed from queue.
// The queue directory is created if needed. The channel is closed when ctx is done.
func (r *Repository) Watch(ctx context.Context, queue string) (<-chan core.Event, error) {
	dir, err := r.queueDir(queue)
	if err != nil {
		return nil, err
	}
	if !r.readOnly {
		if err := r.CreateQueue(ctx, queue); err != nil {
			return nil, err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch queue %s: %w", queue, err)
	}

	events := make(chan core.Event, 16)
	r.setWatching(1)

	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer func() {
			_ = watcher.Close()
			close(events)
			r.setWatching(-1)
		}()
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				e, ok := r.queueEvent(queue, event)
				if !ok {
					continue
				}
				r.debug("queue event", "queue", queue, "event", e.String())
				select {
				case events <- e:
				case <-ctx.Done():
					return nil
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				r.watchError(err)
			}
		}
	}, lifecycle.WithErrorHandler(func(err error) {
		r.watchError(fmt.Errorf("queue watcher panic: %w", err))
	}))

	return events, nil
}

// queueEvent maps a raw filesystem event to a queue event, ignoring temp files.
func (r *Repository) queueEvent(queue string, event fsnotify.Event) (core.Event, bool) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, TempFilePrefix) || filepath.Ext(name) != Extension {
		return core.Event{}, false
	}

	var eType core.EventType
	switch {
	case event.Has(fsnotify.Create):
		eType = core.EventCreate
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		eType = core.EventDelete
	default:
		return core.Event{}, false
	}

	return core.Event{
		Type:      eType,
		Queue:     core.Tag(queue),
		ID:        strings.TrimSuffix(name, Extension),
		Timestamp: time.Now().Unix(),
	}, true
}

func (r *Repository) watchError(err error) {
	if r.config.ErrorHandler != nil {
		r.config.ErrorHandler(err)
		return
	}
	if r.config.Logger != nil {
		r.config.Logger.Error("fsnotify error", "error", err)
	}
}

func (r *Repository) setWatching(delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers += delta
}

var _ core.Watchable = (*Repository)(nil)
