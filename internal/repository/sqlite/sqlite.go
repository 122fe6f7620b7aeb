// Package sqlite is MentorFlow's embedded backend: it implements the
// repository interfaces and the named procedures on top of SQLite, and
// publishes a change event for every successful write.
//
// WHY AN EMBEDDED BACKEND?
// The platform only needs tables, a handful of transactional procedures and
// a change feed. SQLite gives us all three inside the binary: one file on
// disk, ":memory:" in tests, no server to run.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so no C compiler is
// needed and cross-compilation just works.
//
// TRANSACTIONS:
// Every procedure (approve, reject, broadcast) runs inside db.withTx. Change
// events are published only AFTER the commit, so subscribers never observe a
// row that is later rolled back.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/mentorflow/internal/realtime"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// Publisher receives change events after successful writes.
// *realtime.Broker satisfies it.
type Publisher interface {
	Publish(e realtime.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(realtime.Event) {}

// Option configures a DB.
type Option func(*DB)

// WithPublisher routes change events to p.
func WithPublisher(p Publisher) Option {
	return func(db *DB) { db.publisher = p }
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// DB wraps a sql.DB connection pool and implements every repository interface.
type DB struct {
	conn      *sql.DB
	publisher Publisher
	now       func() time.Time
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/mentorflow.db"  → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests)
func New(dbPath string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// ONE CONNECTION:
	// SQLite has a single writer anyway. With one pooled connection the
	// PRAGMAs below apply to every query, and ":memory:" refers to the same
	// database for the whole lifetime of the pool.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{
		conn:      conn,
		publisher: nopPublisher{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates every table. CREATE ... IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		ddl  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				github_id     INTEGER UNIQUE,
				login         TEXT NOT NULL DEFAULT '',
				avatar_url    TEXT NOT NULL DEFAULT '',
				metadata      TEXT NOT NULL DEFAULT '{}',
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email) WHERE email <> '';
		`},
		{"profiles", `
			CREATE TABLE IF NOT EXISTS profiles (
				id            TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				full_name     TEXT NOT NULL DEFAULT '',
				academic_year TEXT NOT NULL DEFAULT '',
				branch        TEXT NOT NULL DEFAULT '',
				role          TEXT NOT NULL DEFAULT 'student',
				updated_at    DATETIME NOT NULL
			);
		`},
		// tasks: templates. user_tasks.task_id has no foreign
		// key: deleting a template leaves progress rows behind, and those
		// render as "Task details not found".
		{"tasks", `
			CREATE TABLE IF NOT EXISTS tasks (
				id          TEXT PRIMARY KEY,
				title       TEXT NOT NULL,
				description TEXT NOT NULL,
				points      INTEGER NOT NULL CHECK (points >= 0),
				due_date    DATETIME,
				tasks_url   TEXT NOT NULL DEFAULT '',
				created_at  DATETIME NOT NULL
			);
		`},
		{"user_tasks", `
			CREATE TABLE IF NOT EXISTS user_tasks (
				id                TEXT PRIMARY KEY,
				user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				task_id           TEXT NOT NULL,
				status            TEXT NOT NULL,
				submission_url    TEXT NOT NULL DEFAULT '',
				submitted_at      DATETIME,
				rejection_message TEXT NOT NULL DEFAULT '',
				created_at        DATETIME NOT NULL,
				updated_at        DATETIME NOT NULL,
				UNIQUE (user_id, task_id)
			);
			CREATE INDEX IF NOT EXISTS idx_user_tasks_status ON user_tasks(status);
		`},
		{"leaderboard", `
			CREATE TABLE IF NOT EXISTS leaderboard (
				user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
				score      INTEGER NOT NULL DEFAULT 0 CHECK (score >= 0),
				updated_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_leaderboard_score ON leaderboard(score DESC);
		`},
		{"notifications", `
			CREATE TABLE IF NOT EXISTS notifications (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title      TEXT NOT NULL,
				message    TEXT NOT NULL,
				type       TEXT NOT NULL,
				is_read    INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
		`},
		{"login_attempts", `
			CREATE TABLE IF NOT EXISTS login_attempts (
				device_key TEXT PRIMARY KEY,
				attempts   INTEGER NOT NULL DEFAULT 0,
				lock_until DATETIME,
				updated_at DATETIME NOT NULL
			);
		`},
	}

	for _, s := range steps {
		if _, err := db.conn.Exec(s.ddl); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}

	// task_id links approval/rejection notices to the task. Added after the
	// first release, so older databases get it via ALTER TABLE.
	if err := db.addColumnIfNotExists("notifications", "task_id", "TEXT"); err != nil {
		return fmt.Errorf("adding task_id to notifications: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// withTx runs fn in a transaction, committing on nil and rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (db *DB) publish(table string, typ realtime.EventType, userID string, record any) {
	db.publisher.Publish(realtime.Event{
		Table:  table,
		Type:   typ,
		UserID: userID,
		Record: record,
		At:     db.now(),
	})
}
