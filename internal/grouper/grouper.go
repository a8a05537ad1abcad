// Package grouper batches artifact arrival events into sealed tasks using a
// rearmable idle-timeout window, and provides the FIFO queue those tasks are
// handed off on.
//
// The boundary between one logical submission and the next is a pause in the
// arrival rate, not a count or a fixed interval: every arrival rearms the
// deadline, and only a full idle window of silence seals the open group.
package grouper

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/snapsolver/internal/types"
)

// DefaultIdleWindow is the default pause that seals an open group.
const DefaultIdleWindow = 8 * time.Second

// SubmitFunc receives each sealed task, in seal order.
type SubmitFunc func(types.Task)

// Accumulator collects arriving artifacts into the single open group for its
// stream and seals the group into a task after an idle window with no
// arrivals. All state transitions happen inside one mutex, so an arrival
// racing the deadline can never be dropped or double-counted.
type Accumulator struct {
	idle   time.Duration
	submit SubmitFunc
	log    *logrus.Entry

	mu     sync.Mutex
	open   []types.Artifact
	timer  *time.Timer
	gen    uint64 // bumped on every rearm and seal; a stale timer firing is a no-op
	closed bool

	// inflight counts deadline submissions that have left the mutex but not
	// yet reached the submit callback. Shutdown waits on it so a task sealed
	// by a concurrently firing timer is handed off before Shutdown returns.
	inflight sync.WaitGroup
}

// NewAccumulator creates an accumulator that seals groups after idle and
// passes them to submit. If idle is non-positive, DefaultIdleWindow is used.
func NewAccumulator(idle time.Duration, submit SubmitFunc, log *logrus.Logger) *Accumulator {
	if idle <= 0 {
		idle = DefaultIdleWindow
	}
	if log == nil {
		log = logrus.New()
	}
	return &Accumulator{
		idle:   idle,
		submit: submit,
		log:    log.WithField("component", "grouper"),
	}
}

// Add appends an artifact to the open group (creating one if none is open)
// and rearms the idle deadline. Safe to call concurrently with timer expiry.
// Arrivals after Shutdown are dropped.
func (a *Accumulator) Add(path string) {
	a.mu.Lock()

	if a.closed {
		a.mu.Unlock()
		a.log.WithField("artifact", path).Warn("arrival after shutdown, dropping")
		return
	}

	a.open = append(a.open, types.Artifact{Path: path, ArrivedAt: time.Now()})
	size := len(a.open)

	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(a.idle, func() { a.deadline(gen) })

	a.mu.Unlock()

	a.log.WithFields(logrus.Fields{
		"artifact":   path,
		"group_size": size,
	}).Info("artifact added to open group")
}

// deadline runs on timer expiry. A rearm between scheduling and firing bumps
// the generation, making this call a no-op; that closes the cancel-raced-with-
// firing window without trusting Timer.Stop alone.
func (a *Accumulator) deadline(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || len(a.open) == 0 {
		a.mu.Unlock()
		return
	}
	task := a.seal()
	a.inflight.Add(1)
	a.mu.Unlock()
	defer a.inflight.Done()

	a.log.WithFields(logrus.Fields{
		"task":      task.ID,
		"artifacts": len(task.Artifacts),
	}).Info("idle window elapsed, group sealed")
	a.submit(task)
}

// seal converts the open group into a task and resets the accumulator so the
// next arrival opens a fresh group. Caller must hold the mutex and must have
// checked the group is non-empty.
func (a *Accumulator) seal() types.Task {
	task := types.NewTask(a.open)
	a.open = nil
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return task
}

// Shutdown stops accepting arrivals and seals any open group immediately so
// no collected artifact is lost on exit. Every sealed task is submitted
// before Shutdown returns, including one a concurrently expiring timer
// sealed just before the call; the caller may close the downstream queue as
// soon as Shutdown is back.
func (a *Accumulator) Shutdown() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true

	var task types.Task
	var sealed bool
	if len(a.open) > 0 {
		task = a.seal()
		sealed = true
	} else if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	if sealed {
		a.log.WithFields(logrus.Fields{
			"task":      task.ID,
			"artifacts": len(task.Artifacts),
		}).Info("open group sealed on shutdown")
		a.submit(task)
	}

	// A timer may have sealed the group and unlocked before we took the
	// mutex; its submission is still in flight. Returning before it lands
	// would let the caller close the queue under it and drop the task.
	a.inflight.Wait()
}

// PendingLen reports the size of the currently open group.
func (a *Accumulator) PendingLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.open)
}
