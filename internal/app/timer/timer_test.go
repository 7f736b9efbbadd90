package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWallClock_Fires(t *testing.T) {
	var fired atomic.Bool
	WallClock(5*time.Millisecond, func() { fired.Store(true) })

	assert.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestWallClock_Cancel(t *testing.T) {
	var fired atomic.Bool
	cancel := WallClock(20*time.Millisecond, func() { fired.Store(true) })
	cancel()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestSlot_StaleCallbackIsIgnored(t *testing.T) {
	var mu sync.Mutex
	var stale func() bool

	// Capture the callback without running it, as if it were blocked on the lock.
	slot := NewSlot(func(d time.Duration, callback func()) func() {
		go callback()
		return func() {}
	})

	done := make(chan struct{})
	mu.Lock()
	slot.Set(time.Millisecond, func(current func() bool) {
		mu.Lock()
		defer mu.Unlock()
		stale = current
		close(done)
	})
	slot.Cancel()
	mu.Unlock()

	<-done
	mu.Lock()
	defer mu.Unlock()
	assert.False(t, stale())
}

func TestSlot_CurrentCallbackClearsSlot(t *testing.T) {
	var mu sync.Mutex
	var ran atomic.Bool

	slot := NewSlot(nil)
	mu.Lock()
	slot.Set(2*time.Millisecond, func(current func() bool) {
		mu.Lock()
		defer mu.Unlock()
		if current() {
			ran.Store(true)
		}
	})
	assert.True(t, slot.Pending())
	mu.Unlock()

	assert.Eventually(t, ran.Load, time.Second, time.Millisecond)
	mu.Lock()
	assert.False(t, slot.Pending())
	mu.Unlock()
}
