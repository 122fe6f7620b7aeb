package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/realtime"
	"github.com/sakif/mentorflow/internal/repository"
)

var _ repository.UserTaskRepository = (*DB)(nil)

const userTaskColumns = `id, user_id, task_id, status, submission_url, submitted_at, rejection_message, created_at, updated_at`

// ListUserTasks returns every progress row of one user.
func (db *DB) ListUserTasks(ctx context.Context, userID string) ([]model.UserTask, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userTaskColumns+` FROM user_tasks WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing user tasks for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.UserTask{}
	for rows.Next() {
		ut, err := scanUserTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user task row: %w", err)
		}
		out = append(out, *ut)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user task rows: %w", err)
	}
	return out, nil
}

// GetUserTask returns one progress row or apperror.ErrNotFound.
func (db *DB) GetUserTask(ctx context.Context, id string) (*model.UserTask, error) {
	return db.getUserTask(ctx, db.conn, id)
}

// queryRower lets helpers run inside or outside a transaction.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) getUserTask(ctx context.Context, q queryRower, id string) (*model.UserTask, error) {
	ut, err := scanUserTask(q.QueryRowContext(ctx,
		`SELECT `+userTaskColumns+` FROM user_tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user task", id)
		}
		return nil, fmt.Errorf("sqlite: getting user task %s: %w", id, err)
	}
	return ut, nil
}

// StartUserTask moves (userID, taskID) to in_progress.
//
// UPSERT KEYED BY (user_id, task_id):
// The UNIQUE constraint plus ON CONFLICT makes a double click produce one
// row, not two. The DO UPDATE only touches rows that are already
// in_progress; a row in any other state is left alone and reported as a
// conflict, so "start" can never rewind a submitted or completed task.
func (db *DB) StartUserTask(ctx context.Context, userID, taskID string) (*model.UserTask, error) {
	now := db.now()
	id := xid.New().String()

	var (
		ut       *model.UserTask
		inserted bool
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO user_tasks (id, user_id, task_id, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (user_id, task_id) DO UPDATE
			   SET updated_at = excluded.updated_at
			   WHERE user_tasks.status = ?`,
			id, userID, taskID, string(model.StatusInProgress), now, now,
			string(model.StatusInProgress),
		)
		if err != nil {
			return fmt.Errorf("sqlite: starting task %s for %s: %w", taskID, userID, err)
		}

		ut, err = scanUserTask(tx.QueryRowContext(ctx,
			`SELECT `+userTaskColumns+` FROM user_tasks WHERE user_id = ? AND task_id = ?`,
			userID, taskID))
		if err != nil {
			return fmt.Errorf("sqlite: reading started task: %w", err)
		}
		inserted = ut.ID == id
		if n, _ := res.RowsAffected(); n == 0 || ut.Status != model.StatusInProgress {
			return apperror.Conflict(fmt.Sprintf("task is already %s", ut.Status.Label()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	typ := realtime.EventUpdate
	if inserted {
		typ = realtime.EventInsert
	}
	db.publish("user_tasks", typ, userID, *ut)
	return ut, nil
}

// SubmitUserTask moves an in_progress row to pending_review.
func (db *DB) SubmitUserTask(ctx context.Context, id string, submittedAt time.Time) (*model.UserTask, error) {
	return db.transitionUserTask(ctx, id, model.StatusInProgress, model.StatusPendingReview,
		`UPDATE user_tasks SET status = ?, submitted_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.StatusPendingReview), submittedAt.UTC(), db.now(), id, string(model.StatusInProgress))
}

// RetryUserTask moves a rejected row back to in_progress.
func (db *DB) RetryUserTask(ctx context.Context, id string) (*model.UserTask, error) {
	return db.transitionUserTask(ctx, id, model.StatusRejected, model.StatusInProgress,
		`UPDATE user_tasks SET status = ?, rejection_message = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(model.StatusInProgress), db.now(), id, string(model.StatusRejected))
}

// transitionUserTask moves row id to status to. The current status must be
// able to reach to (model.CanTransition) and must still be from when the
// guarded UPDATE (WHERE status = from) runs; otherwise it is a conflict.
func (db *DB) transitionUserTask(ctx context.Context, id string, from, to model.TaskStatus, query string, args ...any) (*model.UserTask, error) {
	var ut *model.UserTask
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := db.getUserTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.Status != from || !model.CanTransition(cur.Status, to) {
			return apperror.Conflict(fmt.Sprintf("task is %s, not %s", cur.Status.Label(), from.Label()))
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("sqlite: moving user task %s to %s: %w", id, to, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.Conflict(fmt.Sprintf("user task %s changed while moving to %s", id, to.Label()))
		}

		ut, err = db.getUserTask(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	db.publish("user_tasks", realtime.EventUpdate, ut.UserID, *ut)
	return ut, nil
}

// ListPendingReview returns submissions awaiting an admin, oldest first.
func (db *DB) ListPendingReview(ctx context.Context) ([]model.PendingReview, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT ut.id, ut.user_id, ut.status, ut.submission_url, ut.submitted_at,
		        COALESCE(t.title, ''), COALESCE(t.points, 0),
		        COALESCE(p.full_name, ''), u.email
		 FROM user_tasks ut
		 JOIN users u ON u.id = ut.user_id
		 LEFT JOIN tasks t ON t.id = ut.task_id
		 LEFT JOIN profiles p ON p.id = ut.user_id
		 WHERE ut.status = ?
		 ORDER BY ut.submitted_at, ut.rowid`,
		string(model.StatusPendingReview))
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing pending reviews: %w", err)
	}
	defer rows.Close()

	out := []model.PendingReview{}
	for rows.Next() {
		var pr model.PendingReview
		if err := rows.Scan(&pr.UserTaskID, &pr.UserID, &pr.Status, &pr.SubmissionURL, &pr.SubmittedAt,
			&pr.TaskTitle, &pr.TaskPoints, &pr.FullName, &pr.Email); err != nil {
			return nil, fmt.Errorf("sqlite: scanning pending review row: %w", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating pending review rows: %w", err)
	}
	return out, nil
}

// CountUserTasksByStatus counts one user's rows in the given status.
func (db *DB) CountUserTasksByStatus(ctx context.Context, userID string, status model.TaskStatus) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_tasks WHERE user_id = ? AND status = ?`, userID, string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting %s tasks for %s: %w", status, userID, err)
	}
	return n, nil
}

func scanUserTask(row rowScanner) (*model.UserTask, error) {
	var ut model.UserTask
	err := row.Scan(&ut.ID, &ut.UserID, &ut.TaskID, &ut.Status, &ut.SubmissionURL, &ut.SubmittedAt,
		&ut.RejectionMessage, &ut.CreatedAt, &ut.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if !ut.Status.Valid() {
		return nil, fmt.Errorf("sqlite: user task %s has unknown status %q", ut.ID, ut.Status)
	}
	return &ut, nil
}
