// Package watcher reports changes to the immediate children of watched
// roots. Watches are per root and deliberately not recursive; changes
// deep inside a project are caught by the periodic rescan instead.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/projdex/projdex/internal/debounce"
)

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

// DirEvent names a directory entry under a watched root that changed.
// Consumers re-stat the path, so the exact type is advisory.
type DirEvent struct {
	Type EventType
	Path string
}

type Watcher struct {
	roots   []string
	watcher *fsnotify.Watcher
	events  chan DirEvent
	done    chan struct{}
	deb     *debounce.Debouncer

	pendingMu sync.Mutex
	pending   map[string]DirEvent
}

func New(roots []string, debounceDelay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		roots:   roots,
		watcher: fsw,
		events:  make(chan DirEvent, 100),
		done:    make(chan struct{}),
		pending: make(map[string]DirEvent),
	}
	w.deb = debounce.New(debounceDelay, w.flush)
	return w, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	added := 0
	for _, root := range w.roots {
		if err := w.watcher.Add(root); err != nil {
			log.Printf("Warning: failed to watch %s: %v", root, err)
			continue
		}
		added++
	}
	if added == 0 && len(w.roots) > 0 {
		return fmt.Errorf("failed to watch any of %d directories", len(w.roots))
	}

	go w.processEvents(ctx)
	return nil
}

func (w *Watcher) Events() <-chan DirEvent {
	return w.events
}

func (w *Watcher) Close() error {
	w.deb.Stop()
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Only direct children of a root are project candidates
	parent := filepath.Dir(event.Name)
	isChild := false
	for _, root := range w.roots {
		if parent == filepath.Clean(root) {
			isChild = true
			break
		}
	}
	if !isChild {
		return
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	var evType EventType
	switch {
	case event.Has(fsnotify.Create):
		evType = EventCreate
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		// Chmod covers xattr updates on the directory itself
		evType = EventModify
	case event.Has(fsnotify.Remove):
		evType = EventDelete
	case event.Has(fsnotify.Rename):
		evType = EventRename
	default:
		return
	}

	w.pendingMu.Lock()
	// Last event wins; consumers re-stat the path either way
	w.pending[event.Name] = DirEvent{Type: evType, Path: event.Name}
	w.pendingMu.Unlock()
	w.deb.Trigger()
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	events := make([]DirEvent, 0, len(w.pending))
	for _, event := range w.pending {
		events = append(events, event)
	}
	w.pending = make(map[string]DirEvent)
	w.pendingMu.Unlock()

	for _, event := range events {
		select {
		case w.events <- event:
		default:
			log.Printf("Event channel full, dropping event for %s", event.Path)
		}
	}
}

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "CREATE"
	case EventModify:
		return "MODIFY"
	case EventDelete:
		return "DELETE"
	case EventRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}
