package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type arrivalLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *arrivalLog) notify(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
}

func (l *arrivalLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.paths))
	copy(out, l.paths)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestWatcher_NotifiesOnNewImage(t *testing.T) {
	dir := t.TempDir()
	arrivals := &arrivalLog{}
	w := New(dir, arrivals.notify, quietLogger())
	require.NoError(t, w.Start())
	defer w.Stop()

	path := filepath.Join(dir, "capture.png")
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))

	waitFor(t, 5*time.Second, func() bool { return len(arrivals.snapshot()) == 1 })
	assert.Equal(t, []string{path}, arrivals.snapshot())
}

func TestWatcher_IgnoresNonImageFiles(t *testing.T) {
	dir := t.TempDir()
	arrivals := &arrivalLog{}
	w := New(dir, arrivals.notify, quietLogger())
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shot.PNG"), []byte("img"), 0o644))

	waitFor(t, 5*time.Second, func() bool { return len(arrivals.snapshot()) == 1 })

	// Give any stray .txt event a moment to arrive before asserting absence.
	time.Sleep(100 * time.Millisecond)
	paths := arrivals.snapshot()
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "shot.PNG")
}

func TestWatcher_StartFailsOnMissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing"), func(string) {}, quietLogger())
	err := w.Start()
	assert.Error(t, err)
}

func TestIsDuplicate(t *testing.T) {
	w := New(t.TempDir(), func(string) {}, quietLogger())

	assert.False(t, w.isDuplicate("/captures/a.png"), "first sighting is not a duplicate")
	assert.True(t, w.isDuplicate("/captures/a.png"), "immediate repeat is a duplicate")
	assert.False(t, w.isDuplicate("/captures/b.png"), "different path is independent")
}
