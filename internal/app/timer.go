package app

import (
	"sync"
	"time"

	"quiz-attempt-service/internal/clock"
)

// Countdown ticks once per second and calls onExpire when it reaches zero.
// Ticks that fire after Stop or a restart are discarded.
type Countdown struct {
	sched    clock.Scheduler
	onTick   func(remaining int)
	onExpire func()

	mu        sync.Mutex
	remaining int
	running   bool
	run       uint64
	cancel    clock.CancelFunc
}

func NewCountdown(sched clock.Scheduler, onTick func(remaining int), onExpire func()) *Countdown {
	return &Countdown{sched: sched, onTick: onTick, onExpire: onExpire}
}

// Start (re)arms the countdown with the given number of seconds.
func (c *Countdown) Start(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.remaining = seconds
	if seconds <= 0 {
		return
	}
	c.running = true
	c.scheduleLocked(c.run)
}

// Stop cancels the pending tick and returns the seconds left.
func (c *Countdown) Stop() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return c.remaining
}

// Reset stops the countdown and forgets the remaining time.
func (c *Countdown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.remaining = 0
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Countdown) scheduleLocked(run uint64) {
	c.cancel = c.sched.Schedule(func() { c.tick(run) }, time.Second)
}

func (c *Countdown) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
	c.run++
}

func (c *Countdown) tick(run uint64) {
	c.mu.Lock()
	if !c.running || run != c.run {
		c.mu.Unlock()
		return
	}
	c.remaining--
	remaining := c.remaining
	expired := remaining <= 0
	if expired {
		c.running = false
		c.cancel = nil
	} else {
		c.scheduleLocked(run)
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if expired && c.onExpire != nil {
		c.onExpire()
	}
}
