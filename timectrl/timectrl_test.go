package timectrl

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestManualClockSetTime(t *testing.T) {
	c := NewManualClock(epoch)

	newNow := epoch.Add(42 * time.Second)
	c.SetTime(newNow)

	if got := c.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestManualClockFiresInOrder(t *testing.T) {
	c := NewManualClock(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(time.Second, func() { order = append(order, 1) })
	stopped := c.AfterFunc(2*time.Second, func() { order = append(order, 2) })
	c.AfterFunc(10*time.Second, func() { order = append(order, 10) })

	if !stopped.Stop() {
		t.Fatalf("Stop on pending timer returned false")
	}
	c.Advance(5 * time.Second)

	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Fatalf("fired %v, want [1 3]", order)
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", c.Pending())
	}
	if stopped.Stop() {
		t.Fatalf("second Stop returned true")
	}
}

func TestDeadlineTimerFiresOncePerTurn(t *testing.T) {
	c := NewManualClock(epoch)
	var fired []int
	d := NewDeadlineTimer(c, time.Minute, func(turn int) { fired = append(fired, turn) })

	d.Arm(1)
	if at, ok := d.Deadline(); !ok || !at.Equal(epoch.Add(time.Minute)) {
		t.Fatalf("Deadline() = %v, %v", at, ok)
	}
	c.Advance(30 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("fired early: %v", fired)
	}

	// Turn 1 resolved early; turn 2's deadline starts now.
	d.Arm(2)
	c.Advance(45 * time.Second)
	if len(fired) != 0 {
		t.Fatalf("stale deadline fired: %v", fired)
	}
	c.Advance(15 * time.Second)
	if len(fired) != 1 || fired[0] != 2 {
		t.Fatalf("fired = %v, want [2]", fired)
	}
	if _, ok := d.Deadline(); ok {
		t.Fatalf("deadline still reported after firing")
	}

	c.Advance(time.Hour)
	if len(fired) != 1 {
		t.Fatalf("fired again without re-arming: %v", fired)
	}
}

func TestDeadlineTimerDisabledAndStopped(t *testing.T) {
	c := NewManualClock(epoch)
	var fired int
	off := NewDeadlineTimer(c, 0, func(int) { fired++ })
	off.Arm(1)
	if _, ok := off.Deadline(); ok || c.Pending() != 0 {
		t.Fatalf("zero timeout armed a deadline")
	}

	d := NewDeadlineTimer(c, time.Second, func(int) { fired++ })
	d.Arm(1)
	d.Stop()
	d.Arm(2)
	c.Advance(time.Minute)
	if fired != 0 {
		t.Fatalf("stopped timer fired %d times", fired)
	}
}

func TestDeadlineTimerRealClock(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	var got atomic.Int64
	d := NewDeadlineTimer(nil, 5*time.Millisecond, func(turn int) {
		got.Store(int64(turn))
		wg.Done()
	})
	d.Arm(7)
	wg.Wait()
	if got.Load() != 7 {
		t.Fatalf("fired for turn %d, want 7", got.Load())
	}
}
