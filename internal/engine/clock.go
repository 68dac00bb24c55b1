package engine

import "sync/atomic"

// Clock numbers driver ticks.
//
// Every tick is stamped with a strictly increasing sequence number, so traces
// order by tick without relying on wall-clock time. A resumed run starts the
// clock at the last recorded tick.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations), so
// observers may read Current while the driver ticks.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first tick is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next tick is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances to and returns the next tick.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued tick, 0 before the first.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
