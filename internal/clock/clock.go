// Package clock provides the scheduling capability used by quiz countdowns.
package clock

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc stops a scheduled callback. Calling it more than once is safe.
type CancelFunc func()

// Scheduler runs a callback once after a delay.
type Scheduler interface {
	Schedule(fn func(), delay time.Duration) CancelFunc
}

// Real schedules callbacks on the runtime timer.
type Real struct{}

func (Real) Schedule(fn func(), delay time.Duration) CancelFunc {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

// Fake is a virtual clock for tests. Callbacks run synchronously inside Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*fakeTimer
}

type fakeTimer struct {
	at       time.Duration
	seq      int
	fn       func()
	canceled bool
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Schedule(fn func(), delay time.Duration) CancelFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{at: f.now + delay, seq: f.seq, fn: fn}
	f.pending = append(f.pending, t)
	return func() {
		f.mu.Lock()
		t.canceled = true
		f.mu.Unlock()
	}
}

// Advance moves virtual time forward, firing due callbacks in order.
// Callbacks scheduled while advancing fire too if they fall inside the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.popDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.at
		f.mu.Unlock()

		next.fn()
	}
}

// Pending reports how many live callbacks are waiting.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.pending {
		if !t.canceled {
			n++
		}
	}
	return n
}

func (f *Fake) popDueLocked(target time.Duration) *fakeTimer {
	live := f.pending[:0]
	for _, t := range f.pending {
		if !t.canceled {
			live = append(live, t)
		}
	}
	f.pending = live
	sort.Slice(f.pending, func(i, j int) bool {
		if f.pending[i].at != f.pending[j].at {
			return f.pending[i].at < f.pending[j].at
		}
		return f.pending[i].seq < f.pending[j].seq
	})
	if len(f.pending) == 0 || f.pending[0].at > target {
		return nil
	}
	next := f.pending[0]
	f.pending = f.pending[1:]
	return next
}
