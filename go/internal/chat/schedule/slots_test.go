package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleFiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	slots := NewSlots(clock, nil)

	var fired atomic.Int32
	slots.Schedule("typing-stop", 2*time.Second, func() { fired.Add(1) })
	assert.True(t, slots.Pending("typing-stop"))

	clock.Advance(1999 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, slots.Pending("typing-stop"))
}

func TestScheduleReplacesInsteadOfStacking(t *testing.T) {
	clock := clockwork.NewFakeClock()
	slots := NewSlots(clock, nil)

	var first, second atomic.Int32
	slots.Schedule("k", time.Second, func() { first.Add(1) })
	clock.Advance(500 * time.Millisecond)
	slots.Schedule("k", time.Second, func() { second.Add(1) })

	clock.Advance(600 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(0), second.Load())

	clock.Advance(400 * time.Millisecond)
	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestCancelIsRealCancellation(t *testing.T) {
	clock := clockwork.NewFakeClock()
	slots := NewSlots(clock, nil)

	var fired atomic.Int32
	slots.Schedule("k", time.Second, func() { fired.Add(1) })
	assert.True(t, slots.Cancel("k"))
	assert.False(t, slots.Cancel("k"))

	clock.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestCallbackRunsUnderGuard(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var guard sync.Mutex
	slots := NewSlots(clock, &guard)

	done := make(chan struct{})
	slots.Schedule("k", time.Second, func() { close(done) })

	guard.Lock()
	clock.Advance(time.Second)
	select {
	case <-done:
		t.Fatal("callback ran while the guard was held")
	case <-time.After(20 * time.Millisecond):
	}
	guard.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	select {
	case <-done:
	case <-ctx.Done():
		require.FailNow(t, "callback never ran")
	}
}

func TestCancelWhileCallbackWaitsForGuardDropsIt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var guard sync.Mutex
	slots := NewSlots(clock, &guard)

	var fired atomic.Int32
	slots.Schedule("k", time.Second, func() { fired.Add(1) })

	guard.Lock()
	clock.Advance(time.Second)
	time.Sleep(10 * time.Millisecond)
	slots.Cancel("k")
	guard.Unlock()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestStopRefusesNewTimers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	slots := NewSlots(clock, nil)

	slots.Schedule("a", time.Second, func() {})
	slots.Stop()
	assert.False(t, slots.Pending("a"))

	slots.Schedule("b", time.Second, func() {})
	assert.False(t, slots.Pending("b"))
}
