// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an account on the auth surface of the backend.
//
// Accounts come from two identity sources:
//   - email + password sign-up (PasswordHash set, GitHubID nil)
//   - GitHub OAuth (GitHubID set, PasswordHash empty)
//
// WHY *int64 FOR GitHubID?
// A password-only account has no GitHub identity. NULL in the DB keeps the
// UNIQUE constraint on github_id happy for any number of such accounts:
// SQLite treats every NULL as distinct.
//
// Metadata is free-form key/value data the user can edit about themselves
// (e.g. "full_name"), stored as a JSON object.
type User struct {
	ID           string            `json:"id"                  db:"id"`
	Email        string            `json:"email"               db:"email"`
	PasswordHash string            `json:"-"                   db:"password_hash"`
	GitHubID     *int64            `json:"githubId,omitempty"  db:"github_id"`
	Login        string            `json:"login,omitempty"     db:"login"`
	AvatarURL    string            `json:"avatarUrl,omitempty" db:"avatar_url"`
	Metadata     map[string]string `json:"metadata"            db:"metadata"`
	CreatedAt    time.Time         `json:"createdAt"           db:"created_at"`
	UpdatedAt    time.Time         `json:"updatedAt"           db:"updated_at"`
}

// Session is the view of a signed-in user that the auth surface hands out.
// It is derived from a validated token plus the account row.
type Session struct {
	UserID    string            `json:"userId"`
	Email     string            `json:"email"`
	Metadata  map[string]string `json:"metadata"`
	Token     string            `json:"-"`
	ExpiresAt time.Time         `json:"expiresAt"`
}
