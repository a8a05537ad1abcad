// Package watcher adapts filesystem events to artifact-arrival
// notifications. It is the only place that knows artifacts come from a
// watched directory; the grouper just sees a stream of identifiers.
package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// dedupeWindow suppresses duplicate notifications for the same path. Editors
// and capture tools frequently emit several events for one new file, and the
// arrival contract is at-least-once.
const dedupeWindow = 2 * time.Second

// imageExtensions are the artifact types the agent reacts to.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
}

// NotifyFunc receives one call per newly discovered artifact.
type NotifyFunc func(path string)

// Watcher watches a capture directory and notifies on new image files.
type Watcher struct {
	dir    string
	notify NotifyFunc
	log    *logrus.Entry

	fsw  *fsnotify.Watcher
	done chan struct{}

	mu   sync.Mutex
	seen map[string]time.Time
}

// New creates a watcher for dir. Call Start to begin watching.
func New(dir string, notify NotifyFunc, log *logrus.Logger) *Watcher {
	if log == nil {
		log = logrus.New()
	}
	return &Watcher{
		dir:    dir,
		notify: notify,
		log:    log.WithField("component", "watcher"),
		done:   make(chan struct{}),
		seen:   make(map[string]time.Time),
	}
}

// Start begins watching the directory. Events are dispatched from a single
// goroutine, so the notify callback is never called concurrently.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.fsw = fsw

	go w.loop()
	w.log.WithField("dir", w.dir).Info("watching for new captures")
	return nil
}

// Stop halts event delivery. Safe to call once.
func (w *Watcher) Stop() {
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

// handle filters events down to first sightings of new image files. Both
// Create and Rename-into-place arrivals are covered; Write events are
// ignored because capture tools produce them repeatedly while flushing.
func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Create) {
		return
	}
	if !imageExtensions[strings.ToLower(filepath.Ext(event.Name))] {
		return
	}
	if w.isDuplicate(event.Name) {
		w.log.WithField("artifact", event.Name).Debug("duplicate arrival suppressed")
		return
	}

	w.notify(event.Name)
}

func (w *Watcher) isDuplicate(path string) bool {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	if last, ok := w.seen[path]; ok && now.Sub(last) < dedupeWindow {
		return true
	}
	w.seen[path] = now

	// Keep the dedupe map from growing forever on a busy directory.
	if len(w.seen) > 1024 {
		for p, ts := range w.seen {
			if now.Sub(ts) >= dedupeWindow {
				delete(w.seen, p)
			}
		}
	}
	return false
}
