// Package storage handles crash-safe result persistence and artifact
// archiving. Results are written to a temporary file in the destination
// directory, fsynced, and atomically renamed into place, so a reader never
// observes a partially written result.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/snapsolver/internal/retry"
)

// maxNameLength bounds sanitized filenames to stay well inside filesystem
// limits once the extension and collision suffix are added.
const maxNameLength = 80

// tempSuffix marks an in-progress result file. Leftover files with this
// suffix after a crash are safe to inspect or delete; the final path is never
// touched until the rename.
const tempSuffix = ".inprogress"

// ResultWriter streams solved-result text into a temporary file and promotes
// it to its final name only once the result is complete and durable.
type ResultWriter struct {
	dir  string
	file *os.File
	path string
}

// NewResultWriter creates the output directory if needed and opens a
// temporary file for the given task.
func NewResultWriter(outputDir string, taskID uuid.UUID) (*ResultWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, retry.Resource(fmt.Errorf("failed to create output directory: %w", err))
	}

	path := filepath.Join(outputDir, fmt.Sprintf(".%s%s", taskID, tempSuffix))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, retry.Resource(fmt.Errorf("failed to create temp result file: %w", err))
	}

	return &ResultWriter{dir: outputDir, file: file, path: path}, nil
}

// WriteChunk appends a chunk of result text to the temporary file. Each chunk
// reaches the file immediately so a crash mid-stream leaves a readable
// partial temp file.
func (w *ResultWriter) WriteChunk(chunk string) error {
	if _, err := w.file.WriteString(chunk); err != nil {
		return retry.Resource(fmt.Errorf("failed to write result chunk: %w", err))
	}
	return nil
}

// Finalize fsyncs and closes the temporary file, then atomically renames it
// to <sanitized-name>.md in the output directory. On name collision a short
// unique suffix is appended rather than replacing the existing result.
func (w *ResultWriter) Finalize(name string) (string, error) {
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return "", retry.Resource(fmt.Errorf("failed to sync result file: %w", err))
	}
	if err := w.file.Close(); err != nil {
		return "", retry.Resource(fmt.Errorf("failed to close result file: %w", err))
	}

	final := filepath.Join(w.dir, SanitizeName(name)+".md")
	if _, err := os.Stat(final); err == nil {
		stamp := time.Now().Format("150405")
		final = filepath.Join(w.dir, fmt.Sprintf("%s-%s.md", SanitizeName(name), stamp))
	}

	// os.Rename within one volume is atomic replace-or-create.
	if err := os.Rename(w.path, final); err != nil {
		return "", retry.Resource(fmt.Errorf("failed to rename result into place: %w", err))
	}
	return final, nil
}

// Discard closes and removes the temporary file. Used on the failure path so
// an aborted task leaves no half-written output behind.
func (w *ResultWriter) Discard() {
	_ = w.file.Close()
	_ = os.Remove(w.path)
}

// TempPath returns the path of the in-progress file, for diagnostics.
func (w *ResultWriter) TempPath() string {
	return w.path
}

// SanitizeName turns a suggested title into a safe filename: no path
// separators, no reserved characters, bounded length. Falls back to "result"
// when nothing usable remains.
func SanitizeName(name string) string {
	cleaned := slug.Make(name)
	if cleaned == "" {
		return "result"
	}
	if len(cleaned) > maxNameLength {
		cleaned = cleaned[:maxNameLength]
	}
	return cleaned
}

// Archiver moves consumed source artifacts into the processed directory,
// retrying each move to ride out transient file locks from sync or antivirus
// tools.
type Archiver struct {
	processedDir string
	policy       retry.Policy
	log          *logrus.Entry
}

// NewArchiver creates an archiver that moves artifacts into processedDir.
func NewArchiver(processedDir string, policy retry.Policy, log *logrus.Logger) *Archiver {
	if log == nil {
		log = logrus.New()
	}
	return &Archiver{
		processedDir: processedDir,
		policy:       policy,
		log:          log.WithField("component", "archiver"),
	}
}

// Archive moves every path into the processed directory, preserving original
// filenames. A vanished source file counts as archived: it was handled out of
// band. The first unrecoverable move aborts and returns the error.
func (a *Archiver) Archive(ctx context.Context, paths []string) error {
	if err := os.MkdirAll(a.processedDir, 0o755); err != nil {
		return retry.Resource(fmt.Errorf("failed to create processed directory: %w", err))
	}

	for _, src := range paths {
		dest := filepath.Join(a.processedDir, filepath.Base(src))
		err := a.policy.Do(ctx, "archive "+filepath.Base(src), func() error {
			return moveFile(src, dest)
		})
		if err != nil {
			return err
		}
		a.log.WithFields(logrus.Fields{"src": src, "dest": dest}).Debug("artifact archived")
	}
	return nil
}

// moveFile renames src to dest. A missing source is success. A cross-device
// rename falls back to copy-then-remove; other failures go through
// classifyMoveError.
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	if errors.Is(err, syscall.EXDEV) {
		return copyThenRemove(src, dest)
	}
	return classifyMoveError(err)
}

// classifyMoveError sorts a failed move into the retry taxonomy. Permission
// errors will not heal across attempts and are resource failures; anything
// else (file locks from sync or antivirus tools) is worth retrying.
func classifyMoveError(err error) error {
	if os.IsPermission(err) {
		return retry.Resource(err)
	}
	return retry.Transient(err)
}

// copyThenRemove emulates a rename across filesystem boundaries, where
// os.Rename fails with EXDEV. Not atomic, but the source outlives the copy,
// so a crash mid-way loses nothing.
func copyThenRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return classifyMoveError(err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return classifyMoveError(err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return retry.Resource(fmt.Errorf("failed to copy %s across volumes: %w", src, err))
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return retry.Resource(err)
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		// The copy is durable; retrying the whole move just re-runs the
		// rename, which is safe to repeat.
		return classifyMoveError(err)
	}
	return nil
}
