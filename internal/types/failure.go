package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FailureRecord is the write-once diagnostic produced when a task cannot
// complete. It carries enough context for an operator to diagnose and
// manually re-submit without re-running the pipeline.
type FailureRecord struct {
	TaskID     uuid.UUID `json:"task_id"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
	ErrorClass string    `json:"error_class,omitempty"`
	Artifacts  []string  `json:"artifacts"`
	Text       string    `json:"text,omitempty"`
	Category   Category  `json:"category,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filename returns the record's on-disk name, <timestamp>-<task-id>.md.
func (r FailureRecord) Filename() string {
	return fmt.Sprintf("%s-%s.md", r.CreatedAt.Format("20060102-150405"), r.TaskID)
}

// Markdown renders the record in the human-readable structured format written
// to the failure directory.
func (r FailureRecord) Markdown() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Task %s failed\n\n", r.TaskID))
	sb.WriteString(fmt.Sprintf("- **Stage:** %s\n", r.Stage))
	sb.WriteString(fmt.Sprintf("- **Time:** %s\n", r.CreatedAt.Format(time.RFC3339)))
	if r.Category != "" {
		sb.WriteString(fmt.Sprintf("- **Category:** %s\n", r.Category))
	}
	if r.ErrorClass != "" {
		sb.WriteString(fmt.Sprintf("- **Error class:** %s\n", r.ErrorClass))
	}
	sb.WriteString(fmt.Sprintf("- **Reason:** %s\n\n", r.Reason))

	sb.WriteString("## Artifacts\n\n")
	for _, path := range r.Artifacts {
		sb.WriteString(fmt.Sprintf("- %s\n", path))
	}

	if r.Text != "" {
		sb.WriteString("\n## Text at point of failure\n\n")
		sb.WriteString(r.Text)
		sb.WriteString("\n")
	}

	return sb.String()
}
