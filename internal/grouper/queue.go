package grouper

import (
	"errors"
	"sync"

	"github.com/jonathan/snapsolver/internal/types"
)

// ErrQueueClosed is returned by Push after Close has been called.
var ErrQueueClosed = errors.New("task queue is closed")

// Queue is an unbounded FIFO of sealed tasks shared by the finalizer (sole
// producer) and the worker pool (many consumers). Push never blocks so a slow
// consumer can never stall group sealing; the backpressure trade-off is
// documented in DESIGN.md.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []types.Task
	closed bool
}

// NewQueue creates an empty task queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a task in FIFO order and wakes one waiting consumer.
func (q *Queue) Push(task types.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.tasks = append(q.tasks, task)
	q.cond.Signal()
	return nil
}

// Pop blocks until a task is available or the queue is closed and drained.
// The second return value is false only once no task will ever be returned
// again, which is the worker shutdown signal.
func (q *Queue) Pop() (types.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}

	if len(q.tasks) == 0 {
		return types.Task{}, false
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting new tasks and wakes all blocked consumers. Tasks
// already queued are still handed out so shutdown drains rather than drops.
// Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
