package workq

import (
	"sync"
	"time"

	"kbdcode-go/errcode"
)

// CancelResult reports what Cancel found.
type CancelResult uint8

const (
	// NotScheduled: nothing was pending.
	NotScheduled CancelResult = iota
	// Canceled: the handler will not run for the cancelled schedule.
	Canceled
	// AlreadyRunning: the handler had started; it completes normally.
	AlreadyRunning
)

func (r CancelResult) String() string {
	switch r {
	case Canceled:
		return "canceled"
	case AlreadyRunning:
		return "already_running"
	default:
		return "not_scheduled"
	}
}

type workState uint8

const (
	stateIdle workState = iota
	stateDelaying
	stateQueued
	stateRunning
)

// DelayedWork is a one-shot handler that runs on its Queue after a delay.
// The zero value is not usable; create with Queue.NewDelayedWork.
type DelayedWork struct {
	q       *Queue
	handler func()

	mu    sync.Mutex
	state workState
	timer Stopper
	gen   uint64 // bumped on every schedule and cancel; stale expiries compare against it
}

// NewDelayedWork binds handler to q. Nothing is scheduled yet.
func (q *Queue) NewDelayedWork(handler func()) *DelayedWork {
	return &DelayedWork{q: q, handler: handler}
}

// Schedule arms the work to run after d. If it is already pending the call
// is a no-op and the earlier deadline stands. Scheduling from inside the
// running handler is allowed.
func (w *DelayedWork) Schedule(d time.Duration) error {
	if d < 0 {
		return errcode.InvalidParams
	}
	if w.q.stopped.Load() {
		return errcode.Closed
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == stateDelaying || w.state == stateQueued {
		return nil
	}
	w.gen++
	gen := w.gen
	w.state = stateDelaying
	w.timer = w.q.after(d, func() { w.expire(gen) })
	return nil
}

// Cancel stops a pending schedule. See CancelResult for the outcomes.
func (w *DelayedWork) Cancel() CancelResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case stateDelaying:
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.gen++
		w.state = stateIdle
		return Canceled
	case stateQueued:
		w.gen++
		w.state = stateIdle
		return Canceled
	case stateRunning:
		return AlreadyRunning
	default:
		return NotScheduled
	}
}

// Pending reports whether a schedule is outstanding and not yet running.
func (w *DelayedWork) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == stateDelaying || w.state == stateQueued
}

// Running reports whether the handler is executing right now.
func (w *DelayedWork) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == stateRunning
}

// expire runs on the timer goroutine.
func (w *DelayedWork) expire(gen uint64) {
	w.mu.Lock()
	if w.gen != gen || w.state != stateDelaying {
		w.mu.Unlock()
		return
	}
	w.state = stateQueued
	w.timer = nil
	w.mu.Unlock()

	w.q.post(func() { w.run(gen) })
}

// run executes on queue context.
func (w *DelayedWork) run(gen uint64) {
	w.mu.Lock()
	if w.gen != gen || w.state != stateQueued {
		w.mu.Unlock()
		return
	}
	w.state = stateRunning
	w.mu.Unlock()

	w.handler()

	w.mu.Lock()
	if w.gen == gen && w.state == stateRunning {
		w.state = stateIdle
	}
	w.mu.Unlock()
}
