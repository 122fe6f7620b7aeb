package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestPolicy(t *testing.T) (*Policy, *MemoryTracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
	tracker := NewMemoryTracker()
	return NewPolicy(tracker).WithClock(clock.Now), tracker, clock
}

func TestPolicy_FiveFailuresLockForFiveMinutes(t *testing.T) {
	ctx := context.Background()
	p, tracker, clock := newTestPolicy(t)

	for i := 1; i <= 4; i++ {
		lockedNow, err := p.Fail(ctx, "device-1")
		require.NoError(t, err)
		assert.False(t, lockedNow, "attempt %d should not lock", i)
	}

	lockedNow, err := p.Fail(ctx, "device-1")
	require.NoError(t, err)
	assert.True(t, lockedNow, "5th failure should lock")

	s, _ := tracker.Get(ctx, "device-1")
	assert.Equal(t, 0, s.Attempts, "attempts reset when the lock is set")
	assert.Equal(t, clock.Now().Add(5*time.Minute), s.LockUntil)

	locked, remaining, err := p.Check(ctx, "device-1")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, 300, remaining)

	// Just before expiry: still locked, 1 second (rounded up) left
	clock.Advance(5*time.Minute - 500*time.Millisecond)
	locked, remaining, _ = p.Check(ctx, "device-1")
	assert.True(t, locked)
	assert.Equal(t, 1, remaining)

	// At exactly lockUntil the lock is over
	clock.Advance(500 * time.Millisecond)
	locked, _, _ = p.Check(ctx, "device-1")
	assert.False(t, locked)
}

func TestPolicy_SuccessClearsCounter(t *testing.T) {
	ctx := context.Background()
	p, tracker, _ := newTestPolicy(t)

	for i := 0; i < 3; i++ {
		_, err := p.Fail(ctx, "device-1")
		require.NoError(t, err)
	}
	require.NoError(t, p.Succeed(ctx, "device-1"))

	s, _ := tracker.Get(ctx, "device-1")
	assert.Equal(t, State{}, s)

	// The count starts over: four more failures still do not lock
	for i := 0; i < 4; i++ {
		lockedNow, _ := p.Fail(ctx, "device-1")
		assert.False(t, lockedNow)
	}
}

func TestPolicy_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestPolicy(t)

	for i := 0; i < 5; i++ {
		_, _ = p.Fail(ctx, "device-a")
	}

	locked, _, _ := p.Check(ctx, "device-a")
	assert.True(t, locked)
	locked, _, _ = p.Check(ctx, "device-b")
	assert.False(t, locked)
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, 1, ceilSeconds(time.Millisecond))
	assert.Equal(t, 1, ceilSeconds(time.Second))
	assert.Equal(t, 2, ceilSeconds(time.Second+time.Millisecond))
	assert.Equal(t, 0, ceilSeconds(0))
}
