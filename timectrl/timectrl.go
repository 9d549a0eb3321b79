// Package timectrl supplies the clocks behind turn deadlines. Production
// code runs on the wall clock; tests drive a ManualClock explicitly.
package timectrl

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop cancels the callback. It reports false when the callback has
	// already run or was stopped before.
	Stop() bool
}

// Clock abstracts time so deadline logic is testable.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// ManualClock only moves when Advance or SetTime is called. Callbacks that
// fall due run synchronously on the advancing goroutine, earliest first.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	clock *ManualClock
	at    time.Time
	seq   int
	fn    func()
	done  bool
}

// NewManualClock returns a clock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of scheduled callbacks.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.SetTime(c.Now().Add(d))
}

// SetTime moves the clock to t and runs every callback due by then.
// Moving backwards never fires anything.
func (c *ManualClock) SetTime(t time.Time) {
	c.mu.Lock()
	c.now = t
	var due []*manualTimer
	kept := c.timers[:0]
	for _, tm := range c.timers {
		if !tm.at.After(t) {
			tm.done = true
			due = append(due, tm)
			continue
		}
		kept = append(kept, tm)
	}
	c.timers = kept
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if !due[i].at.Equal(due[j].at) {
			return due[i].at.Before(due[j].at)
		}
		return due[i].seq < due[j].seq
	})
	for _, tm := range due {
		tm.fn()
	}
}

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			break
		}
	}
	return true
}

// DeadlineTimer fires once per armed turn when the turn's deadline passes.
// Re-arming for the next turn cancels the previous deadline, and a fire
// that races with re-arming is dropped.
type DeadlineTimer struct {
	clock   Clock
	timeout time.Duration
	fire    func(turn int)

	mu       sync.Mutex
	timer    Timer
	turn     int
	deadline time.Time
	stopped  bool
}

// NewDeadlineTimer returns an unarmed timer. A nil clock selects RealClock.
func NewDeadlineTimer(clock Clock, timeout time.Duration, fire func(turn int)) *DeadlineTimer {
	if clock == nil {
		clock = RealClock{}
	}
	return &DeadlineTimer{clock: clock, timeout: timeout, fire: fire}
}

// Arm starts the deadline of turn, replacing any earlier one. A
// non-positive timeout leaves the timer disarmed.
func (d *DeadlineTimer) Arm(turn int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.turn = turn
	d.deadline = time.Time{}
	if d.timeout <= 0 {
		return
	}
	d.deadline = d.clock.Now().Add(d.timeout)
	d.timer = d.clock.AfterFunc(d.timeout, func() { d.expire(turn) })
}

func (d *DeadlineTimer) expire(turn int) {
	d.mu.Lock()
	if d.stopped || d.turn != turn || d.timer == nil {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.deadline = time.Time{}
	d.mu.Unlock()
	d.fire(turn)
}

// Deadline returns the armed turn's deadline.
func (d *DeadlineTimer) Deadline() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deadline, !d.deadline.IsZero()
}

// Stop disarms the timer permanently.
func (d *DeadlineTimer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.deadline = time.Time{}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
