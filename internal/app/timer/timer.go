// Package timer provides cancellable wall-clock timers.
package timer

import (
	"context"
	"time"
)

const maxTick = 100 * time.Millisecond

// AfterFunc schedules callback on its own goroutine once d has elapsed on
// the wall clock. The returned function cancels the timer; cancelling after
// the callback started has no effect.
type AfterFunc func(d time.Duration, callback func()) (cancel func())

// WallClock polls the wall clock instead of relying on the monotonic clock,
// so suspended hosts fire overdue timers as soon as they wake up.
func WallClock(d time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	tick := maxTick
	if d/10 < tick {
		tick = d / 10
	}
	if tick < time.Millisecond {
		tick = time.Millisecond
	}

	go func() {
		endTime := ToWallTime(time.Now()).Add(d)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !ToWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// ToWallTime returns t with the monotonic clock reading stripped.
func ToWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

// Slot holds at most one pending timer. Every Set or Cancel invalidates the
// previous timer, including one whose callback is already waiting to run.
type Slot struct {
	after  AfterFunc
	gen    uint64
	cancel func()
}

// NewSlot creates a slot that schedules through after (WallClock if nil).
func NewSlot(after AfterFunc) *Slot {
	if after == nil {
		after = WallClock
	}
	return &Slot{after: after}
}

// Set replaces the pending timer. The callback receives a check that
// reports whether this timer is still the current one and, if so, marks the
// slot empty. The check must run under the lock that guards Set and Cancel.
func (s *Slot) Set(d time.Duration, callback func(current func() bool)) {
	s.Cancel()
	gen := s.gen
	s.cancel = s.after(d, func() {
		callback(func() bool {
			if s.gen != gen {
				return false
			}
			s.cancel = nil
			return true
		})
	})
}

// Cancel stops the pending timer, if any.
func (s *Slot) Cancel() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Pending reports whether a timer is set.
func (s *Slot) Pending() bool {
	return s.cancel != nil
}
