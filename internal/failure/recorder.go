// Package failure persists diagnostic records for tasks the pipeline could
// not complete.
package failure

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/snapsolver/internal/types"
)

// Recorder writes one FailureRecord per failed task into the failure
// directory. Recorder errors are logged and swallowed: a broken failure path
// must never take down the worker that hit the original error.
type Recorder struct {
	dir string
	log *logrus.Entry
}

// NewRecorder creates a recorder writing into dir.
func NewRecorder(dir string, log *logrus.Logger) *Recorder {
	if log == nil {
		log = logrus.New()
	}
	return &Recorder{dir: dir, log: log.WithField("component", "failure")}
}

// Record persists the record as <failure-dir>/<timestamp>-<task-id>.md.
// Returns the written path, or "" if persisting failed.
func (r *Recorder) Record(record types.FailureRecord) string {
	entry := r.log.WithFields(logrus.Fields{
		"task":  record.TaskID,
		"stage": record.Stage,
	})

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		entry.WithError(err).Error("failed to create failure directory, record lost")
		return ""
	}

	path := filepath.Join(r.dir, record.Filename())
	if err := os.WriteFile(path, []byte(record.Markdown()), 0o644); err != nil {
		entry.WithError(err).Error("failed to write failure record, record lost")
		return ""
	}

	entry.WithField("path", path).Warn(fmt.Sprintf("task failed at %s, record written", record.Stage))
	return path
}
