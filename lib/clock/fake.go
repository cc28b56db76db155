// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock that only moves when Advance is called. Poll
// loop, retry and store tests drive it; it is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	changed *sync.Cond

	// timers is kept sorted by deadline.
	timers []timer
}

type timer struct {
	deadline time.Time
	fire     chan time.Time
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	clock := &FakeClock{now: start}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After fires once the clock reaches now+d. A non-positive d fires
// at once and registers nothing.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	fire := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		fire <- c.now
		return fire
	}
	deadline := c.now.Add(d)
	at, _ := slices.BinarySearchFunc(c.timers, deadline, func(t timer, deadline time.Time) int {
		if t.deadline.After(deadline) {
			return 1
		}
		return -1
	})
	c.timers = slices.Insert(c.timers, at, timer{deadline: deadline, fire: fire})
	c.changed.Broadcast()
	return fire
}

func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the clock by d and fires the timers that came due,
// earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := 0
	for due < len(c.timers) && !c.timers[due].deadline.After(now) {
		due++
	}
	fired := slices.Clone(c.timers[:due])
	c.timers = slices.Delete(c.timers, 0, due)
	c.mu.Unlock()

	for _, t := range fired {
		t.fire <- now
	}
}

// WaitForTimers blocks until at least n timers are pending. Tests call
// it to know a loop has finished a cycle and is waiting for its next
// tick.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.timers) < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
