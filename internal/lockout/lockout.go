// Package lockout implements the login attempt deterrent.
//
// THIS IS NOT A SECURITY CONTROL.
// The state is keyed by a per-browser device cookie, not by account. Clearing
// cookies, opening a private window or switching browsers resets it. It exists
// to slow down a person hammering the login form and to show a friendly
// countdown. The actual brute-force defense is server-side: the per-IP rate
// limiter on the login route (middleware.RateLimit) and bcrypt's cost.
//
// ALGORITHM:
//
//	state = {attempts, lockUntil}
//	failed login   → attempts++; if attempts == 5 → lockUntil = now+5m, attempts = 0
//	while now < lockUntil → reject without contacting the backend,
//	                        show ceil((lockUntil-now)/1s) seconds remaining
//	successful login → clear the record entirely
package lockout

import (
	"context"
	"fmt"
	"time"
)

// Defaults match the login page behaviour users already know.
const (
	DefaultMaxAttempts = 5
	DefaultLockFor     = 5 * time.Minute
)

// State is the persisted record for one device.
// A zero LockUntil means "not locked".
type State struct {
	Attempts  int       `json:"attempts"`
	LockUntil time.Time `json:"lockUntil"`
}

// Tracker stores State per key. It is the only persisted, mutable
// client-side resource; implementations need not lock across a
// read-modify-write (last writer wins is acceptable for advisory state).
type Tracker interface {
	// Get returns the stored state, or the zero State if none exists.
	Get(ctx context.Context, key string) (State, error)
	// Record replaces the stored state.
	Record(ctx context.Context, key string, s State) error
	// Clear removes the record.
	Clear(ctx context.Context, key string) error
}

// Policy applies the lockout algorithm on top of a Tracker.
type Policy struct {
	tracker     Tracker
	maxAttempts int
	lockFor     time.Duration
	now         func() time.Time
}

// NewPolicy returns a Policy with the default thresholds (5 attempts, 5 minutes).
func NewPolicy(tracker Tracker) *Policy {
	return &Policy{
		tracker:     tracker,
		maxAttempts: DefaultMaxAttempts,
		lockFor:     DefaultLockFor,
		now:         time.Now,
	}
}

// WithClock swaps the time source. Tests use it to step time deterministically.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// Check reports whether key is currently locked, and for how many more
// seconds (rounded up). It never modifies state.
func (p *Policy) Check(ctx context.Context, key string) (locked bool, remainingSeconds int, err error) {
	s, err := p.tracker.Get(ctx, key)
	if err != nil {
		return false, 0, fmt.Errorf("lockout: reading state: %w", err)
	}

	now := p.now()
	if s.LockUntil.IsZero() || !now.Before(s.LockUntil) {
		return false, 0, nil
	}

	return true, ceilSeconds(s.LockUntil.Sub(now)), nil
}

// Fail records one failed login. It returns true when this failure tripped
// the lock.
func (p *Policy) Fail(ctx context.Context, key string) (lockedNow bool, err error) {
	s, err := p.tracker.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("lockout: reading state: %w", err)
	}

	s.Attempts++
	if s.Attempts >= p.maxAttempts {
		s = State{Attempts: 0, LockUntil: p.now().Add(p.lockFor)}
		lockedNow = true
	} else {
		s.LockUntil = time.Time{}
	}

	if err := p.tracker.Record(ctx, key, s); err != nil {
		return false, fmt.Errorf("lockout: recording failure: %w", err)
	}
	return lockedNow, nil
}

// Succeed clears the record after a successful login.
func (p *Policy) Succeed(ctx context.Context, key string) error {
	if err := p.tracker.Clear(ctx, key); err != nil {
		return fmt.Errorf("lockout: clearing state: %w", err)
	}
	return nil
}

// ceilSeconds rounds d up to whole seconds: 1ms → 1, 1000ms → 1, 1001ms → 2.
func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
