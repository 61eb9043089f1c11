package testfixtures

import (
	"strconv"
	"sync"
	"time"
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// Clock is a deterministic time source. Every call to Now returns the
// current instant and then moves the clock forward by the configured step,
// so durations measured between two calls are predictable.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewClock returns a clock starting at start that advances by step on every
// reading. A zero start means ReferenceTime.
func NewClock(start time.Time, step time.Duration) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Peek returns the next reading without advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Sequence yields "<prefix>-1", "<prefix>-2", ... and is safe for
// concurrent use. It stands in for uuid run identifiers.
type Sequence struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
}

// NewSequence returns a sequence with the given prefix, "run" when empty.
func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "run"
	}
	return &Sequence{prefix: prefix}
}

// Next returns the next identifier.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return s.prefix + "-" + strconv.FormatUint(s.counter, 10)
}
