package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, password_hash, github_id, login, avatar_url, metadata, created_at, updated_at`

// CreateUser inserts a password account.
//
// Emails are unique among non-empty values (partial index), so a second
// sign-up with the same address fails with ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := db.now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Metadata == nil {
		user.Metadata = map[string]string{}
	}

	md, err := json.Marshal(user.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: encoding metadata: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, github_id, login, avatar_url, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, nullInt64(user.GitHubID), user.Login, user.AvatarURL,
		string(md), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			conflict := apperror.Conflict("User already registered")
			conflict.Field = "email"
			return conflict
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// Upsert inserts or updates a user based on their GitHub ID.
//
// LOOKUP ORDER:
//  1. github_id match → refresh login/avatar, keep the internal ID
//  2. email match     → link the GitHub identity to the existing account
//  3. neither         → brand-new account
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("github_id", "GitHub ID is required")
	}

	existing, err := db.scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, *user.GitHubID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", *user.GitHubID, err)
	}

	if existing == nil && user.Email != "" {
		existing, err = db.scanUser(db.conn.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = ?`, user.Email))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: looking up user by email: %w", err)
		}
	}

	if existing == nil {
		return db.CreateUser(ctx, user)
	}

	user.ID = existing.ID
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = db.now()
	user.PasswordHash = existing.PasswordHash
	user.Metadata = existing.Metadata
	if user.Email == "" {
		user.Email = existing.Email
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE users SET github_id = ?, login = ?, email = ?, avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		*user.GitHubID, user.Login, user.Email, user.AvatarURL, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := db.scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email. Returns apperror.ErrNotFound if absent.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := db.scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND email <> ''`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UpdateUserMetadata merges md into the stored metadata. An empty value
// deletes the key.
func (db *DB) UpdateUserMetadata(ctx context.Context, id string, md map[string]string) (*model.User, error) {
	var updated *model.User
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		u, err := db.scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperror.NotFound("user", id)
			}
			return fmt.Errorf("sqlite: getting user %s: %w", id, err)
		}

		for k, v := range md {
			if v == "" {
				delete(u.Metadata, k)
				continue
			}
			u.Metadata[k] = v
		}
		raw, err := json.Marshal(u.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: encoding metadata: %w", err)
		}

		u.UpdatedAt = db.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET metadata = ?, updated_at = ? WHERE id = ?`,
			string(raw), u.UpdatedAt, id,
		); err != nil {
			return fmt.Errorf("sqlite: updating metadata for %s: %w", id, err)
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
		metadata string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &githubID, &u.Login, &u.AvatarURL,
		&metadata, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	u.Metadata = map[string]string{}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &u.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", u.ID, err)
		}
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
