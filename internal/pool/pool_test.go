package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/snapsolver/internal/grouper"
	"github.com/jonathan/snapsolver/internal/types"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// countingRunner records which tasks ran and optionally blocks or panics.
type countingRunner struct {
	mu      sync.Mutex
	ran     []types.Task
	block   chan struct{} // if non-nil, Run waits on it
	panicOn map[string]bool
	active  atomic.Int32
	peak    atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context, task types.Task) error {
	current := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.peak.Load()
		if current <= peak || r.peak.CompareAndSwap(peak, current) {
			break
		}
	}

	if r.block != nil {
		<-r.block
	}

	r.mu.Lock()
	r.ran = append(r.ran, task)
	shouldPanic := r.panicOn[task.Artifacts[0].Path]
	r.mu.Unlock()

	if shouldPanic {
		panic("task exploded")
	}
	return nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func task(path string) types.Task {
	return types.NewTask([]types.Artifact{{Path: path}})
}

func TestPool_ProcessesEveryQueuedTask(t *testing.T) {
	queue := grouper.NewQueue()
	runner := &countingRunner{}
	p := New(4, queue, runner, quietLogger())
	p.Start(context.Background())

	const total = 50
	for i := 0; i < total; i++ {
		require.NoError(t, queue.Push(task("/captures/a.png")))
	}
	p.Drain()

	assert.Equal(t, total, runner.count())
}

func TestPool_DrainWaitsForInFlightTasks(t *testing.T) {
	queue := grouper.NewQueue()
	runner := &countingRunner{block: make(chan struct{})}
	p := New(2, queue, runner, quietLogger())
	p.Start(context.Background())

	require.NoError(t, queue.Push(task("/captures/slow.png")))

	drained := make(chan struct{})
	go func() {
		p.Drain()
		close(drained)
	}()

	select {
	case <-drained:
		t.Fatal("Drain returned while a task was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.block)
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("Drain never returned after the task finished")
	}
	assert.Equal(t, 1, runner.count())
}

func TestPool_PanicInOneTaskDoesNotKillWorkers(t *testing.T) {
	queue := grouper.NewQueue()
	runner := &countingRunner{panicOn: map[string]bool{"/captures/boom.png": true}}
	p := New(1, queue, runner, quietLogger())
	p.Start(context.Background())

	require.NoError(t, queue.Push(task("/captures/boom.png")))
	require.NoError(t, queue.Push(task("/captures/after.png")))
	p.Drain()

	// The single worker must survive the panic and process the second task.
	assert.Equal(t, 2, runner.count())
}

func TestPool_RespectsConcurrencyBound(t *testing.T) {
	queue := grouper.NewQueue()
	runner := &countingRunner{block: make(chan struct{})}
	p := New(3, queue, runner, quietLogger())
	p.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, queue.Push(task("/captures/x.png")))
	}

	// Let workers pick up tasks, then release them.
	time.Sleep(100 * time.Millisecond)
	close(runner.block)
	p.Drain()

	assert.Equal(t, 10, runner.count())
	assert.LessOrEqual(t, runner.peak.Load(), int32(3), "never more than pool-size tasks in flight")
}

func TestPool_RunnerErrorDoesNotStopPool(t *testing.T) {
	queue := grouper.NewQueue()
	errRunner := runnerFunc(func(ctx context.Context, task types.Task) error {
		return errors.New("task failed")
	})
	p := New(2, queue, errRunner, quietLogger())
	p.Start(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, queue.Push(task("/captures/f.png")))
	}

	done := make(chan struct{})
	go func() {
		p.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not drain after runner errors")
	}
}

type runnerFunc func(ctx context.Context, task types.Task) error

func (f runnerFunc) Run(ctx context.Context, task types.Task) error { return f(ctx, task) }
