package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/snapsolver/internal/retry"
)

func TestResultWriter_StreamAndFinalize(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewResultWriter(dir, uuid.New())
	require.NoError(t, err)

	require.NoError(t, writer.WriteChunk("## Analysis\n"))
	require.NoError(t, writer.WriteChunk("Use two pointers.\n"))

	final, err := writer.Finalize("Two Pointer Sliding Window")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "two-pointer-sliding-window.md"), final)
	content, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "## Analysis\nUse two pointers.\n", string(content))

	// The temp file must be gone after the rename.
	_, err = os.Stat(writer.TempPath())
	assert.True(t, os.IsNotExist(err))
}

func TestResultWriter_TempFileNeverAtFinalPath(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewResultWriter(dir, uuid.New())
	require.NoError(t, err)
	require.NoError(t, writer.WriteChunk("partial"))

	// Simulated crash before RENAME: only the temp file exists, and no .md
	// result is visible at the destination.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), tempSuffix))
	assert.False(t, strings.HasSuffix(entries[0].Name(), ".md"))

	writer.Discard()
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "Discard must remove the temp file")
}

func TestResultWriter_NameCollisionKeepsBothResults(t *testing.T) {
	dir := t.TempDir()

	first, err := NewResultWriter(dir, uuid.New())
	require.NoError(t, err)
	require.NoError(t, first.WriteChunk("one"))
	firstPath, err := first.Finalize("Same Title")
	require.NoError(t, err)

	second, err := NewResultWriter(dir, uuid.New())
	require.NoError(t, err)
	require.NoError(t, second.WriteChunk("two"))
	secondPath, err := second.Finalize("Same Title")
	require.NoError(t, err)

	assert.NotEqual(t, firstPath, secondPath)
	for _, p := range []string{firstPath, secondPath} {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain title", "Binary Search Basics", "binary-search-basics"},
		{"path separators stripped", "a/b\\c", "a-b-c"},
		{"reserved characters", `answer: "why?"`, "answer-why"},
		{"empty falls back", "", "result"},
		{"symbols only falls back", "!!!***", "result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeName(tt.input)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
			assert.NotContains(t, got, "\\")
		})
	}
}

func TestSanitizeName_BoundsLength(t *testing.T) {
	long := strings.Repeat("very long title ", 30)
	got := SanitizeName(long)
	assert.LessOrEqual(t, len(got), maxNameLength)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestArchiver_MovesPreservingFilenames(t *testing.T) {
	srcDir := t.TempDir()
	processedDir := filepath.Join(t.TempDir(), "processed")

	var paths []string
	for _, name := range []string{"shot1.png", "shot2.png"} {
		p := filepath.Join(srcDir, name)
		require.NoError(t, os.WriteFile(p, []byte("img"), 0o644))
		paths = append(paths, p)
	}

	archiver := NewArchiver(processedDir, retry.Policy{MaxAttempts: 2, Backoff: time.Millisecond}, testLogger())
	require.NoError(t, archiver.Archive(context.Background(), paths))

	for _, name := range []string{"shot1.png", "shot2.png"} {
		_, err := os.Stat(filepath.Join(processedDir, name))
		assert.NoError(t, err)
	}
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "source must be moved, not copied")
	}
}

func TestArchiver_MissingSourceIsNotAnError(t *testing.T) {
	processedDir := t.TempDir()
	archiver := NewArchiver(processedDir, retry.Policy{MaxAttempts: 2, Backoff: time.Millisecond}, testLogger())

	err := archiver.Archive(context.Background(), []string{filepath.Join(t.TempDir(), "gone.png")})
	assert.NoError(t, err)
}

func TestClassifyMoveError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		isResource bool
	}{
		{
			name:       "permission denied is a resource failure",
			err:        &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EACCES},
			isResource: true,
		},
		{
			name:       "busy file is transient",
			err:        &os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EBUSY},
			isResource: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyMoveError(tt.err)
			assert.Equal(t, tt.isResource, retry.IsResource(classified))
			assert.Equal(t, !tt.isResource, retry.IsTransient(classified))
		})
	}
}

func TestCopyThenRemove_MovesContentAndDropsSource(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	src := filepath.Join(srcDir, "shot.png")
	dest := filepath.Join(destDir, "shot.png")
	require.NoError(t, os.WriteFile(src, []byte("pixels"), 0o644))

	require.NoError(t, copyThenRemove(src, dest))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(content))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source must be removed after the copy")
}

func TestCopyThenRemove_MissingSourceIsSuccess(t *testing.T) {
	err := copyThenRemove(filepath.Join(t.TempDir(), "gone.png"), filepath.Join(t.TempDir(), "out.png"))
	assert.NoError(t, err)
}
