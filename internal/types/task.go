// Package types defines the shared data model for the snapsolver agent.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Artifact is one arrived input unit (typically a captured screenshot),
// identified by its filesystem path. Immutable once created.
type Artifact struct {
	Path      string    `json:"path"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// Task is a sealed, immutable group of artifacts awaiting pipeline execution.
// A Task is created by sealing exactly one group and is consumed by exactly
// one worker.
type Task struct {
	ID        uuid.UUID  `json:"id"`
	Artifacts []Artifact `json:"artifacts"`
	SealedAt  time.Time  `json:"sealed_at"`
}

// NewTask seals the given artifacts into a Task. The slice is copied so the
// caller may reuse its backing array.
func NewTask(artifacts []Artifact) Task {
	frozen := make([]Artifact, len(artifacts))
	copy(frozen, artifacts)
	return Task{
		ID:        uuid.New(),
		Artifacts: frozen,
		SealedAt:  time.Now(),
	}
}

// Paths returns the artifact paths in arrival order.
func (t Task) Paths() []string {
	paths := make([]string, len(t.Artifacts))
	for i, a := range t.Artifacts {
		paths[i] = a.Path
	}
	return paths
}
