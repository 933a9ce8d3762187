// Package workq provides a single serialized execution context for the
// keyboard pipeline plus one-shot delayed work items that run on it.
//
// Everything submitted to a Queue, including expired DelayedWork handlers,
// runs one at a time on the goroutine that called Run. State owned by
// handlers therefore needs no locking as long as it is only touched from
// queue context.
package workq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"kbdcode-go/errcode"
)

const defaultDepth = 32

// Stopper is the part of *time.Timer DelayedWork needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc arms f to be called once after d. Implementations must not call
// f synchronously.
type AfterFunc func(d time.Duration, f func()) Stopper

func stdAfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

type Option func(*Queue)

// WithAfterFunc replaces the timer source, mainly for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(q *Queue) {
		if fn != nil {
			q.after = fn
		}
	}
}

type Queue struct {
	items   chan func()
	after   AfterFunc
	stopped atomic.Bool
	done    chan struct{}

	// Expired DelayedWork goes here instead of items. Each DelayedWork has
	// at most one entry, so the list is bounded by the number of items.
	readyMu sync.Mutex
	ready   []func()
	wake    chan struct{}
}

// New returns a queue holding up to depth pending items.
func New(depth int, opts ...Option) *Queue {
	if depth <= 0 {
		depth = defaultDepth
	}
	q := &Queue{
		items: make(chan func(), depth),
		after: stdAfterFunc,
		done:  make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Run executes items until ctx is cancelled. Items still queued at that
// point are dropped.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	defer q.stopped.Store(true)
	for {
		q.runReady()
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case fn := <-q.items:
			// Expiries posted before fn was submitted run first.
			q.runReady()
			fn()
		}
	}
}

// post hands expired work to Run. It never blocks and never fails.
func (q *Queue) post(fn func()) {
	q.readyMu.Lock()
	q.ready = append(q.ready, fn)
	q.readyMu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) runReady() {
	q.readyMu.Lock()
	batch := q.ready
	q.ready = nil
	q.readyMu.Unlock()
	for _, fn := range batch {
		fn()
	}
}

// Done is closed once Run has returned.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Submit enqueues fn without blocking.
func (q *Queue) Submit(fn func()) error {
	if q.stopped.Load() {
		return errcode.Closed
	}
	select {
	case q.items <- fn:
		return nil
	default:
		return errcode.Busy
	}
}

// SubmitWait enqueues fn, waiting for room while the queue is full. It
// must not be called from queue context.
func (q *Queue) SubmitWait(ctx context.Context, fn func()) error {
	if q.stopped.Load() {
		return errcode.Closed
	}
	select {
	case q.items <- fn:
		return nil
	case <-q.done:
		return errcode.Closed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do submits fn and waits for it to finish. It must not be called from
// queue context.
func (q *Queue) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := q.SubmitWait(ctx, func() { defer close(finished); fn() }); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-q.done:
		return errcode.Closed
	case <-ctx.Done():
		return ctx.Err()
	}
}
