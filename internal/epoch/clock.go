// Package epoch implements the pipeline's dispatch clock: a single
// atomically-stored timestamp that every component reads as "now" when
// stamping packets/frames or scheduling a commit, explicitly advanced by
// whichever component owns time for the pipeline (demuxer PTS, a wall-clock
// driver, or a test harness) rather than ticking on its own.
package epoch

import (
	"sync/atomic"
	"time"
)

// Mode records which of SetOffset/SetSystem last defined the clock's value.
type Mode int32

const (
	// Offset is the default mode: the stored value was computed as
	// monotoneNow()+d by the last SetOffset call.
	Offset Mode = iota
	// System: the stored value was time.Now().UnixNano() at the last
	// SetSystem call.
	System
)

// Clock is a single atomically-stored nanosecond timestamp. The zero value
// is not usable; construct with NewClock.
type Clock struct {
	start time.Time
	value atomic.Int64
	mode  atomic.Int32
}

// NewClock creates a clock pinned to the current instant, in Offset mode
// with a zero offset.
func NewClock() *Clock {
	c := &Clock{start: time.Now()}
	c.mode.Store(int32(Offset))
	return c
}

// monotoneNow returns nanoseconds elapsed since the clock was constructed.
// time.Since is immune to wall-clock adjustments as long as both operands
// carry a monotonic reading, which time.Now() always does.
func (c *Clock) monotoneNow() int64 {
	return time.Since(c.start).Nanoseconds()
}

// SetOffset computes monotoneNow()+d and stores it as the clock's current
// value (release semantics via atomic.Store).
func (c *Clock) SetOffset(d int64) {
	c.mode.Store(int32(Offset))
	c.value.Store(c.monotoneNow() + d)
}

// SetSystem stores the current wall-clock time in Unix nanoseconds as the
// clock's current value.
func (c *Clock) SetSystem() {
	c.mode.Store(int32(System))
	c.value.Store(time.Now().UnixNano())
}

// Now loads the clock's current value (acquire semantics via atomic.Load).
// It does not advance on its own between SetOffset/SetSystem calls: the
// pipeline component driving time is expected to call SetOffset/SetSystem
// again each time it wants Now() to move forward.
func (c *Clock) Now() int64 {
	return c.value.Load()
}

// CurrentMode reports whether the clock's value was last set via SetOffset
// or SetSystem.
func (c *Clock) CurrentMode() Mode {
	return Mode(c.mode.Load())
}
