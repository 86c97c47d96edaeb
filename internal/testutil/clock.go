package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubClock is a manual clock for upload tests. Sleep does not block: it
// records the wait and moves the clock forward, so flood waits and backoff
// delays show up in later timestamps.
type StubClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  []time.Duration
	onWait func(d time.Duration) error
}

// NewStubClock returns a StubClock reading t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep matches vidup.SleepFunc. It fails with ctx.Err() when ctx is done,
// and with the OnWait error when one is set.
func (c *StubClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.onWait != nil {
		if err := c.onWait(d); err != nil {
			return err
		}
	}
	c.now = c.now.Add(d)
	return nil
}

// OnWait installs fn to run on every Sleep, e.g. to cancel a push mid-wait.
func (c *StubClock) OnWait(fn func(d time.Duration) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWait = fn
}

// Slept returns every duration passed to Sleep, in order.
func (c *StubClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// StubIDGenerator hands out attempt IDs "attempt-1", "attempt-2", ...
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("attempt-%d", g.next)
}
