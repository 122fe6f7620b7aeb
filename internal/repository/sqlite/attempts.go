package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/mentorflow/internal/lockout"
)

// LoginAttempts is the persistent lockout.Tracker, one row per device key
// in login_attempts. It survives restarts, unlike lockout.MemoryTracker.
type LoginAttempts struct {
	db *DB
}

var _ lockout.Tracker = (*LoginAttempts)(nil)

// LoginAttempts returns the tracker view of db.
func (db *DB) LoginAttempts() *LoginAttempts {
	return &LoginAttempts{db: db}
}

// Get returns the stored state, or the zero State when the key is unknown.
func (a *LoginAttempts) Get(ctx context.Context, key string) (lockout.State, error) {
	var (
		s         lockout.State
		lockUntil *time.Time
	)
	err := a.db.conn.QueryRowContext(ctx,
		`SELECT attempts, lock_until FROM login_attempts WHERE device_key = ?`, key,
	).Scan(&s.Attempts, &lockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return lockout.State{}, nil
		}
		return lockout.State{}, fmt.Errorf("sqlite: reading login attempts: %w", err)
	}
	if lockUntil != nil {
		s.LockUntil = *lockUntil
	}
	return s, nil
}

// Record replaces the stored state for key.
func (a *LoginAttempts) Record(ctx context.Context, key string, s lockout.State) error {
	var lockUntil any
	if !s.LockUntil.IsZero() {
		lockUntil = s.LockUntil.UTC()
	}
	_, err := a.db.conn.ExecContext(ctx,
		`INSERT INTO login_attempts (device_key, attempts, lock_until, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (device_key) DO UPDATE SET
		   attempts   = excluded.attempts,
		   lock_until = excluded.lock_until,
		   updated_at = excluded.updated_at`,
		key, s.Attempts, lockUntil, a.db.now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording login attempts: %w", err)
	}
	return nil
}

// Clear deletes the record for key.
func (a *LoginAttempts) Clear(ctx context.Context, key string) error {
	if _, err := a.db.conn.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE device_key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: clearing login attempts: %w", err)
	}
	return nil
}
