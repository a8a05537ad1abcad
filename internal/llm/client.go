package llm

import (
	"context"
	"io"

	"github.com/jonathan/snapsolver/internal/types"
)

// Classifier assigns a routing category to a task's artifact set.
type Classifier interface {
	Classify(ctx context.Context, artifacts []types.Artifact) (types.Category, error)
}

// Extractor transcribes the text content of a single artifact.
type Extractor interface {
	ExtractText(ctx context.Context, artifact types.Artifact) (string, error)
}

// Polisher merges raw per-artifact transcriptions into one coherent problem
// statement.
type Polisher interface {
	Polish(ctx context.Context, mergedText string) (string, error)
}

// ResultStream is an incrementally produced solver response. Recv returns the
// next chunk of result text, io.EOF on clean end-of-stream, or the in-stream
// error that terminated the response.
type ResultStream interface {
	Recv() (string, error)
}

// Solver produces a streamed solution for a polished problem statement. The
// model argument is the solver identity selected from the routing table.
type Solver interface {
	Solve(ctx context.Context, problemText string, category types.Category, model string) (ResultStream, error)
}

// Namer suggests a short descriptive filename for a finished result.
type Namer interface {
	SuggestName(ctx context.Context, resultText string) (string, error)
}

// HealthChecker probes collaborator availability before expensive calls.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// Collaborators bundles every external service the pipeline invokes. Fields
// are interfaces so tests can substitute fakes per stage.
type Collaborators struct {
	Classifier Classifier
	Extractor  Extractor
	Polisher   Polisher
	Solver     Solver
	Namer      Namer
	Health     HealthChecker
}

// chunkStream is a ResultStream backed by a fixed chunk list, used by tests
// and by non-streaming fallbacks.
type chunkStream struct {
	chunks []string
	err    error
	pos    int
}

// NewChunkStream returns a ResultStream yielding the given chunks, then err
// if non-nil, otherwise a clean end-of-stream.
func NewChunkStream(chunks []string, err error) ResultStream {
	return &chunkStream{chunks: chunks, err: err}
}

func (s *chunkStream) Recv() (string, error) {
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}
