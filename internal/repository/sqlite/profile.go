package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/realtime"
	"github.com/sakif/mentorflow/internal/repository"
)

var _ repository.ProfileRepository = (*DB)(nil)

// GetProfile returns the profile of userID, or nil, nil if none exists yet.
// A missing profile is a normal state (new sign-up), not an error.
func (db *DB) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, full_name, academic_year, branch, role FROM profiles WHERE id = ?`, userID,
	).Scan(&p.ID, &p.FullName, &p.AcademicYear, &p.Branch, &p.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", userID, err)
	}
	return &p, nil
}

// UpsertProfile writes the editable profile fields.
//
// Role is only honoured on INSERT (defaulting to student). An existing
// profile keeps its role: promotion to admin is an operator action, not a
// profile edit.
func (db *DB) UpsertProfile(ctx context.Context, p *model.Profile) error {
	role := p.Role
	if role == "" {
		role = model.RoleStudent
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (id, full_name, academic_year, branch, role, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   full_name     = excluded.full_name,
		   academic_year = excluded.academic_year,
		   branch        = excluded.branch,
		   updated_at    = excluded.updated_at`,
		p.ID, p.FullName, p.AcademicYear, p.Branch, role, db.now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting profile %s: %w", p.ID, err)
	}

	// Read back the stored role so the caller sees the canonical row.
	if err := db.conn.QueryRowContext(ctx,
		`SELECT role FROM profiles WHERE id = ?`, p.ID,
	).Scan(&p.Role); err != nil {
		return fmt.Errorf("sqlite: reading profile role %s: %w", p.ID, err)
	}

	db.publish("profiles", realtime.EventUpdate, p.ID, *p)
	return nil
}

// SetProfileRole changes a user's role. Used by operator tooling and tests.
func (db *DB) SetProfileRole(ctx context.Context, userID, role string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET role = ?, updated_at = ? WHERE id = ?`, role, db.now(), userID)
	if err != nil {
		return fmt.Errorf("sqlite: setting role for %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: setting role for %s: no profile", userID)
	}
	return nil
}

// CountProfiles returns the number of profiles (the "total students" figure).
func (db *DB) CountProfiles(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting profiles: %w", err)
	}
	return n, nil
}
