// Package pool runs a fixed-size set of workers that drain the task queue
// through the pipeline orchestrator.
package pool

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/snapsolver/internal/grouper"
	"github.com/jonathan/snapsolver/internal/types"
)

// DefaultWorkers is the default pool size.
const DefaultWorkers = 3

// Runner executes one task to completion or failure. Implemented by the
// pipeline orchestrator.
type Runner interface {
	Run(ctx context.Context, task types.Task) error
}

// Pool owns N long-lived workers. Workers are symmetric and stateless
// between tasks; each loops pop → run → pop until the queue signals
// shutdown.
type Pool struct {
	queue  *grouper.Queue
	runner Runner
	size   int
	log    *logrus.Logger
	wg     sync.WaitGroup
}

// New creates a pool of size workers consuming from queue. A non-positive
// size falls back to DefaultWorkers.
func New(size int, queue *grouper.Queue, runner Runner, log *logrus.Logger) *Pool {
	if size <= 0 {
		size = DefaultWorkers
	}
	if log == nil {
		log = logrus.New()
	}
	return &Pool{queue: queue, runner: runner, size: size, log: log}
}

// Start launches the workers. The context is passed through to each task's
// pipeline run; cancelling it aborts backoff waits inside in-flight tasks
// but a worker always finishes its current task before checking for
// shutdown.
func (p *Pool) Start(ctx context.Context) {
	p.log.WithField("workers", p.size).Info("starting worker pool")
	for i := 1; i <= p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Drain closes the queue and blocks until every queued and in-flight task
// has finished. No task is lost mid-pipeline.
func (p *Pool) Drain() {
	p.queue.Close()
	p.wg.Wait()
	p.log.Info("worker pool drained")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)
	log.Debug("worker started")

	for {
		task, ok := p.queue.Pop()
		if !ok {
			log.Debug("queue closed, worker exiting")
			return
		}
		p.runOne(ctx, log, task)
	}
}

// runOne isolates a single task execution so a panic in one task never
// takes the worker down with it.
func (p *Pool) runOne(ctx context.Context, log *logrus.Entry, task types.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{"task": task.ID, "panic": r}).
				Error("panic while processing task, worker continues")
		}
	}()

	log.WithField("task", task.ID).Info("task picked up")
	if err := p.runner.Run(ctx, task); err != nil {
		// The orchestrator has already recorded the failure; the worker only
		// notes it and moves on.
		log.WithField("task", task.ID).WithError(err).Warn("task did not complete")
	}
}
