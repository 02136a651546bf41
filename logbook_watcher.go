package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const logbookDebounce = 500 * time.Millisecond

// LogbookWatcher re-imports the logbook file whenever it changes on disk.
// The directory is watched rather than the file, since loggers commonly
// rewrite a log by renaming a temporary file over it.
type LogbookWatcher struct {
	path     string
	debounce time.Duration
	dispatch func(ctx context.Context, ev Event) error
	log      *logrus.Entry
}

// NewLogbookWatcher creates a watcher that hands each new file content to dispatch
func NewLogbookWatcher(path string, dispatch func(ctx context.Context, ev Event) error) *LogbookWatcher {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &LogbookWatcher{
		path:     abs,
		debounce: logbookDebounce,
		dispatch: dispatch,
		log:      NewLogger("logbook").WithField("path", abs),
	}
}

// Run watches until ctx is done
func (w *LogbookWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	w.log.Info("Watching logbook for changes")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("File watcher error")

		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *LogbookWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *LogbookWatcher) reload(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		// Renamed away and not yet replaced; the Create that follows retriggers
		w.log.WithError(err).Debug("Logbook not readable")
		return
	}
	if err := w.dispatch(ctx, LogReplaceEvent{Name: filepath.Base(w.path), Data: data}); err != nil {
		w.log.WithError(err).Warn("Failed to re-import logbook")
		return
	}
	w.log.WithField("bytes", len(data)).Info("Logbook re-imported")
}
