package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogbookWatcher_Relevant(t *testing.T) {
	w := NewLogbookWatcher("/var/log/station/wsjtx_log.adi", nil)

	assert.True(t, w.relevant(fsnotify.Event{Name: "/var/log/station/wsjtx_log.adi", Op: fsnotify.Write}))
	assert.True(t, w.relevant(fsnotify.Event{Name: "/var/log/station/wsjtx_log.adi", Op: fsnotify.Create}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/var/log/station/wsjtx_log.adi", Op: fsnotify.Chmod}))
	assert.False(t, w.relevant(fsnotify.Event{Name: "/var/log/station/other.adi", Op: fsnotify.Write}))
}

func TestLogbookWatcher_ReloadsOnWrite(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	path := filepath.Join(dir, "wsjtx_log.adi")
	require.NoError(t, os.WriteFile(path, []byte("<CALL:4>K1AB<EOR>\n"), 0o644))

	got := make(chan LogReplaceEvent, 4)
	w := NewLogbookWatcher(path, func(ctx context.Context, ev Event) error {
		if replace, ok := ev.(LogReplaceEvent); ok {
			got <- replace
		}
		return nil
	})
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watch is registered asynchronously; keep writing until it is seen
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var ev LogReplaceEvent
wait:
	for {
		select {
		case ev = <-got:
			if string(ev.Data) == workedADIF {
				break wait
			}
		case <-ticker.C:
			require.NoError(t, os.WriteFile(path, []byte(workedADIF), 0o644))
		case <-deadline:
			t.Fatal("logbook change was not picked up")
		}
	}

	assert.Equal(t, "wsjtx_log.adi", ev.Name)
	assert.Equal(t, workedADIF, string(ev.Data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestLogbookWatcher_MissingDirectory(t *testing.T) {
	w := NewLogbookWatcher(filepath.Join(t.TempDir(), "missing", "log.adi"), nil)
	err := w.Run(context.Background())
	assert.Error(t, err)
}
