// Package workqtest provides a manual timer source for workq.
package workqtest

import (
	"sort"
	"sync"
	"time"

	"kbdcode-go/services/workq"
)

// Clock hands out timers that only fire when Advance moves past them.
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*Timer
}

type Timer struct {
	c       *Clock
	due     time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *Timer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// AfterFunc matches workq.AfterFunc.
func (c *Clock) AfterFunc(d time.Duration, f func()) workq.Stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &Timer{c: c, due: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Now is the elapsed fake time.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Armed counts timers that are neither stopped nor fired.
func (c *Clock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance moves time forward by d and fires due timers in deadline order on
// the calling goroutine.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*Timer
	keep := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case t.due <= c.now:
			t.fired = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		t.f()
	}
}
