// Package pipeline drives one sealed task through the ordered stage sequence
// CLASSIFY → TEXTUALIZE → SOLVE → PERSIST → RENAME → ARCHIVE, with per-stage
// retry and failure escalation.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/snapsolver/internal/failure"
	"github.com/jonathan/snapsolver/internal/llm"
	"github.com/jonathan/snapsolver/internal/retry"
	"github.com/jonathan/snapsolver/internal/storage"
	"github.com/jonathan/snapsolver/internal/types"
)

// minProblemLength is the sanity floor for a merged transcription. Anything
// shorter almost certainly means the OCR failed, and passing it downstream
// would waste an expensive solve call on garbage.
const minProblemLength = 100

// Ledger records task outcomes to an external store. Implementations must be
// safe for concurrent use by multiple workers.
type Ledger interface {
	RecordTask(ctx context.Context, task types.Task, status string, stage Stage, outputPath, reason string) error
}

// Options configures an Orchestrator.
type Options struct {
	Collaborators llm.Collaborators
	Routing       map[types.Category]string // immutable category→model snapshot
	Policy        retry.Policy
	OutputDir     string
	Archiver      *storage.Archiver
	Recorder      *failure.Recorder
	Ledger        Ledger // optional
	Log           *logrus.Logger
}

// Orchestrator runs the stage sequence for one task at a time. It holds no
// per-task state, so a single instance is shared by every worker.
type Orchestrator struct {
	opts Options
	log  *logrus.Logger
}

// New creates an orchestrator from opts.
func New(opts Options) *Orchestrator {
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	return &Orchestrator{opts: opts, log: opts.Log}
}

// Run executes the full pipeline for task. A failed stage escalates to the
// failure recorder and never propagates past this method: the returned error
// reports the outcome but a worker loop only logs it.
func (o *Orchestrator) Run(ctx context.Context, task types.Task) error {
	pctx := &Context{Task: task}
	log := o.log.WithField("task", task.ID)

	log.WithField("artifacts", len(task.Artifacts)).Info("pipeline started")

	if err := o.classify(ctx, pctx, log); err != nil {
		return o.fail(ctx, pctx, StageClassify, err)
	}
	if err := o.textualize(ctx, pctx, log); err != nil {
		return o.fail(ctx, pctx, StageTextualize, err)
	}
	if err := o.solve(ctx, pctx, log); err != nil {
		return o.fail(ctx, pctx, StageSolve, err)
	}

	writer, err := o.persist(pctx, log)
	if err != nil {
		return o.fail(ctx, pctx, StagePersist, err)
	}
	if err := o.rename(ctx, pctx, writer, log); err != nil {
		writer.Discard()
		return o.fail(ctx, pctx, StageRename, err)
	}
	o.archive(ctx, pctx, log)

	log.WithField("output", pctx.OutputPath).Info("pipeline done")
	o.ledger(ctx, pctx, "success", StageDone, "")
	return nil
}

// classify assigns the routing category. The health gate runs first so a
// down collaborator fails fast instead of exhausting the stage's retries on
// real calls.
func (o *Orchestrator) classify(ctx context.Context, pctx *Context, log *logrus.Entry) error {
	collab := o.opts.Collaborators

	if collab.Health != nil {
		if err := o.opts.Policy.Do(ctx, "health check", func() error {
			return collab.Health.Check(ctx)
		}); err != nil {
			return err
		}
	}

	return o.opts.Policy.Do(ctx, "classify", func() error {
		category, err := collab.Classifier.Classify(ctx, pctx.Task.Artifacts)
		if err != nil {
			return err
		}
		pctx.Category = category
		log.WithField("category", category).Info("task classified")
		return nil
	})
}

// textualize extracts text from every artifact in parallel, merges the
// results in arrival order, and polishes them into one problem statement. A
// polish failure falls back to the raw merged text rather than failing the
// task.
func (o *Orchestrator) textualize(ctx context.Context, pctx *Context, log *logrus.Entry) error {
	collab := o.opts.Collaborators

	texts := make([]string, len(pctx.Task.Artifacts))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, artifact := range pctx.Task.Artifacts {
		group.Go(func() error {
			return o.opts.Policy.Do(groupCtx, "extract "+artifact.Path, func() error {
				text, err := collab.Extractor.ExtractText(groupCtx, artifact)
				if err != nil {
					return err
				}
				texts[i] = text
				return nil
			})
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	pctx.MergedText = strings.Join(texts, "\n\n")

	err := o.opts.Policy.Do(ctx, "polish", func() error {
		polished, err := collab.Polisher.Polish(ctx, pctx.MergedText)
		if err != nil {
			return err
		}
		pctx.ProblemText = polished
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("polishing failed, using raw merged text")
		pctx.ProblemText = pctx.MergedText
	}

	// Quality gate: visual-reasoning tasks legitimately transcribe to very
	// little text, every other category should have a substantial statement.
	if pctx.Category != types.CategoryVisualReasoning && len(pctx.ProblemText) < minProblemLength {
		return retry.Permanent(fmt.Errorf("transcription too short (%d chars), likely OCR failure", len(pctx.ProblemText)))
	}
	return nil
}

// solve looks up the solver model for the category and consumes the
// incrementally produced result. A transient in-stream error restarts the
// whole solve attempt with a clean buffer so no chunk is duplicated.
func (o *Orchestrator) solve(ctx context.Context, pctx *Context, log *logrus.Entry) error {
	collab := o.opts.Collaborators
	model := o.opts.Routing[pctx.Category]

	err := o.opts.Policy.Do(ctx, "solve", func() error {
		stream, err := collab.Solver.Solve(ctx, pctx.ProblemText, pctx.Category, model)
		if err != nil {
			return err
		}

		var sb strings.Builder
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			sb.WriteString(chunk)
		}
		pctx.ResultText = sb.String()
		return nil
	})
	if err != nil {
		return err
	}

	if strings.TrimSpace(pctx.ResultText) == "" {
		return retry.Permanent(fmt.Errorf("solver returned an empty result"))
	}
	log.WithField("result_chars", len(pctx.ResultText)).Info("task solved")
	return nil
}

// persist writes the accumulated result to a temporary file in the output
// directory, never to the final path.
func (o *Orchestrator) persist(pctx *Context, log *logrus.Entry) (*storage.ResultWriter, error) {
	writer, err := storage.NewResultWriter(o.opts.OutputDir, pctx.Task.ID)
	if err != nil {
		return nil, err
	}
	if err := writer.WriteChunk(pctx.ResultText); err != nil {
		writer.Discard()
		return nil, err
	}
	log.WithField("temp", writer.TempPath()).Debug("result persisted to temp file")
	return writer, nil
}

// rename obtains a descriptive filename and atomically promotes the temp
// file to <sanitized-name>.md.
func (o *Orchestrator) rename(ctx context.Context, pctx *Context, writer *storage.ResultWriter, log *logrus.Entry) error {
	collab := o.opts.Collaborators

	err := o.opts.Policy.Do(ctx, "suggest name", func() error {
		name, err := collab.Namer.SuggestName(ctx, pctx.ResultText)
		if err != nil {
			return err
		}
		pctx.SuggestedName = name
		return nil
	})
	if err != nil {
		return err
	}

	final, err := writer.Finalize(pctx.SuggestedName)
	if err != nil {
		return err
	}
	pctx.OutputPath = final
	return nil
}

// archive moves the consumed artifacts to the processed directory. The
// result is already durably named at this point, so an archive failure is
// logged loudly but does not turn the task into a failure: the output exists
// and the leftover inputs point an operator at the stuck files.
func (o *Orchestrator) archive(ctx context.Context, pctx *Context, log *logrus.Entry) {
	if err := o.opts.Archiver.Archive(ctx, pctx.Task.Paths()); err != nil {
		log.WithError(err).Error("archiving failed, source artifacts left in place")
	}
}

// fail records the failure and leaves the task's inputs untouched for manual
// re-submission. Recorder problems are swallowed inside the recorder itself.
func (o *Orchestrator) fail(ctx context.Context, pctx *Context, stage Stage, cause error) error {
	record := types.FailureRecord{
		TaskID:     pctx.Task.ID,
		Stage:      string(stage),
		Reason:     cause.Error(),
		ErrorClass: retry.ClassOf(cause),
		Artifacts:  pctx.Task.Paths(),
		Text:       pctx.bestText(),
		Category:   pctx.Category,
		CreatedAt:  time.Now(),
	}
	o.opts.Recorder.Record(record)
	o.ledger(ctx, pctx, "failed", stage, cause.Error())
	return fmt.Errorf("task %s failed at %s: %w", pctx.Task.ID, stage, cause)
}

// ledger records the task outcome when a ledger is configured. Ledger errors
// never affect the task outcome.
func (o *Orchestrator) ledger(ctx context.Context, pctx *Context, status string, stage Stage, reason string) {
	if o.opts.Ledger == nil {
		return
	}
	if err := o.opts.Ledger.RecordTask(ctx, pctx.Task, status, stage, pctx.OutputPath, reason); err != nil {
		o.log.WithError(err).Warn("failed to record task outcome in ledger")
	}
}
