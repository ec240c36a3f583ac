package proctor

import (
	"errors"
	"time"
)

// DefaultTickInterval is the countdown resolution.
const DefaultTickInterval = time.Second

// ErrTimerStarted is returned when a timer is started twice.
var ErrTimerStarted = errors.New("exam timer already started")

// Ticker delivers periodic ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock abstracts wall time so sessions can be driven deterministically.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// Timer is a single countdown against a wall-clock deadline. Ticks only
// sample the clock, so late or dropped ticks cannot stretch the exam. It
// expires exactly once and cannot be restarted. Window focus has no effect on it.
type Timer struct {
	duration  time.Duration
	interval  time.Duration
	deadline  time.Time
	remaining time.Duration
	started   bool
	stopped   bool
}

// NewTimer creates a countdown of duration reported in steps of interval.
func NewTimer(duration, interval time.Duration) *Timer {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Timer{duration: duration, interval: interval, remaining: duration}
}

// Start arms the timer at now.
func (t *Timer) Start(now time.Time) error {
	if t.started {
		return ErrTimerStarted
	}
	t.started = true
	t.deadline = now.Add(t.duration)
	return nil
}

// Tick samples the clock and reports whether this tick expired the timer.
// Ticks after expiry or Stop are ignored.
func (t *Timer) Tick(now time.Time) bool {
	if !t.started || t.stopped {
		return false
	}
	t.remaining = t.deadline.Sub(now)
	if t.remaining > 0 {
		return false
	}
	t.remaining = 0
	t.stopped = true
	return true
}

// Stop halts the countdown without expiring it.
func (t *Timer) Stop() {
	t.stopped = true
}

// Running reports whether ticks are still counted.
func (t *Timer) Running() bool {
	return t.started && !t.stopped
}

// Deadline is the instant the timer expires. Zero before Start.
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Remaining returns the time left at the last tick, rounded up to a whole interval.
func (t *Timer) Remaining() time.Duration {
	if t.remaining <= 0 {
		return 0
	}
	steps := (t.remaining + t.interval - 1) / t.interval
	return steps * t.interval
}
