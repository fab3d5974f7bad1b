package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInOrder(t *testing.T) {
	c := NewFake()
	var fired []string
	c.Schedule(func() { fired = append(fired, "b") }, 2*time.Second)
	c.Schedule(func() { fired = append(fired, "a") }, time.Second)

	c.Advance(1500 * time.Millisecond)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("expected only a, got %v", fired)
	}
	c.Advance(time.Second)
	if len(fired) != 2 || fired[1] != "b" {
		t.Fatalf("expected a then b, got %v", fired)
	}
}

func TestFakeCancel(t *testing.T) {
	c := NewFake()
	fired := false
	cancel := c.Schedule(func() { fired = true }, time.Second)
	cancel()
	cancel()
	c.Advance(time.Minute)
	if fired {
		t.Fatalf("canceled callback fired")
	}
	if c.Pending() != 0 {
		t.Fatalf("expected nothing pending, got %d", c.Pending())
	}
}

func TestFakeRescheduleWithinWindow(t *testing.T) {
	c := NewFake()
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.Schedule(tick, time.Second)
	}
	c.Schedule(tick, time.Second)

	c.Advance(5 * time.Second)
	if ticks != 5 {
		t.Fatalf("expected 5 ticks, got %d", ticks)
	}
}

func TestRealSchedule(t *testing.T) {
	done := make(chan struct{})
	Real{}.Schedule(func() { close(done) }, time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("real timer did not fire")
	}

	fired := make(chan struct{}, 1)
	cancel := Real{}.Schedule(func() { fired <- struct{}{} }, 50*time.Millisecond)
	cancel()
	select {
	case <-fired:
		t.Fatalf("canceled real timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}
