package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/realtime"
	"github.com/sakif/mentorflow/internal/repository"
)

var _ repository.Procedures = (*DB)(nil)

// ApproveTaskAndUpdateScore is approve_task_and_update_score.
//
// In ONE transaction:
//  1. pending_review → completed (anything else is a conflict)
//  2. leaderboard score += points (row created if missing)
//  3. a task_approved notification for the student
//
// Either all three happen or none; a double approval fails at step 1 and
// credits nothing.
func (db *DB) ApproveTaskAndUpdateScore(ctx context.Context, userTaskID, userID string, points int) error {
	if points < 0 {
		return apperror.ValidationFailed("points", "points must not be negative")
	}

	var (
		ut    *model.UserTask
		note  model.Notification
		score int
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		ut, err = db.reviewable(ctx, tx, userTaskID, userID, model.StatusCompleted)
		if err != nil {
			return err
		}

		now := db.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_tasks SET status = ?, updated_at = ? WHERE id = ?`,
			string(model.StatusCompleted), now, userTaskID,
		); err != nil {
			return fmt.Errorf("sqlite: completing user task %s: %w", userTaskID, err)
		}
		ut.Status = model.StatusCompleted
		ut.UpdatedAt = now

		if err := tx.QueryRowContext(ctx,
			`INSERT INTO leaderboard (user_id, score, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE SET
			   score      = leaderboard.score + excluded.score,
			   updated_at = excluded.updated_at
			 RETURNING score`,
			userID, points, now,
		).Scan(&score); err != nil {
			return fmt.Errorf("sqlite: crediting %d points to %s: %w", points, userID, err)
		}

		title, err := taskTitle(ctx, tx, ut.TaskID)
		if err != nil {
			return err
		}
		taskID := ut.TaskID
		note = model.Notification{
			ID:        xid.New().String(),
			UserID:    userID,
			Title:     "Task Approved",
			Message:   fmt.Sprintf("Your task %q was approved. +%d points!", title, points),
			Type:      model.NotificationTaskApproved,
			TaskID:    &taskID,
			CreatedAt: now,
		}
		return db.insertNotification(ctx, tx, &note)
	})
	if err != nil {
		return err
	}

	db.publish("user_tasks", realtime.EventUpdate, userID, *ut)
	db.publish("leaderboard", realtime.EventUpdate, userID, model.LeaderboardEntry{UserID: userID, Score: score})
	db.publish("notifications", realtime.EventInsert, userID, note)
	return nil
}

// RejectTaskWithFeedback is reject_task_with_feedback: pending_review →
// rejected with the admin's message, plus a task_rejected notification.
func (db *DB) RejectTaskWithFeedback(ctx context.Context, userTaskID, feedback string) error {
	var (
		ut   *model.UserTask
		note model.Notification
	)
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		ut, err = db.reviewable(ctx, tx, userTaskID, "", model.StatusRejected)
		if err != nil {
			return err
		}

		now := db.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_tasks SET status = ?, rejection_message = ?, updated_at = ? WHERE id = ?`,
			string(model.StatusRejected), feedback, now, userTaskID,
		); err != nil {
			return fmt.Errorf("sqlite: rejecting user task %s: %w", userTaskID, err)
		}
		ut.Status = model.StatusRejected
		ut.RejectionMessage = feedback
		ut.UpdatedAt = now

		title, err := taskTitle(ctx, tx, ut.TaskID)
		if err != nil {
			return err
		}
		taskID := ut.TaskID
		note = model.Notification{
			ID:        xid.New().String(),
			UserID:    ut.UserID,
			Title:     "Task Rejected",
			Message:   fmt.Sprintf("Your task %q was rejected: %s", title, feedback),
			Type:      model.NotificationTaskRejected,
			TaskID:    &taskID,
			CreatedAt: now,
		}
		return db.insertNotification(ctx, tx, &note)
	})
	if err != nil {
		return err
	}

	db.publish("user_tasks", realtime.EventUpdate, ut.UserID, *ut)
	db.publish("notifications", realtime.EventInsert, ut.UserID, note)
	return nil
}

// SendAdminNotification is send_admin_notification: one row per non-admin
// profile. Admins authored the announcement and do not receive it.
func (db *DB) SendAdminNotification(ctx context.Context, title, message string) (int, error) {
	var notes []model.Notification
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM profiles WHERE role <> ? ORDER BY id`, model.RoleAdmin)
		if err != nil {
			return fmt.Errorf("sqlite: listing recipients: %w", err)
		}
		var recipients []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("sqlite: scanning recipient: %w", err)
			}
			recipients = append(recipients, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("sqlite: iterating recipients: %w", err)
		}

		now := db.now()
		for _, userID := range recipients {
			n := model.Notification{
				ID:        xid.New().String(),
				UserID:    userID,
				Title:     title,
				Message:   message,
				Type:      model.NotificationAdmin,
				CreatedAt: now,
			}
			if err := db.insertNotification(ctx, tx, &n); err != nil {
				return err
			}
			notes = append(notes, n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, n := range notes {
		db.publish("notifications", realtime.EventInsert, n.UserID, n)
	}
	return len(notes), nil
}

// reviewable loads a user task inside tx and checks that its status can move
// to the review outcome to. When userID is non-empty the row must also belong
// to that user.
func (db *DB) reviewable(ctx context.Context, tx *sql.Tx, userTaskID, userID string, to model.TaskStatus) (*model.UserTask, error) {
	ut, err := db.getUserTask(ctx, tx, userTaskID)
	if err != nil {
		return nil, err
	}
	if userID != "" && ut.UserID != userID {
		return nil, apperror.ValidationFailed("user_id", "user task does not belong to this user")
	}
	if !model.CanTransition(ut.Status, to) {
		return nil, apperror.Conflict(fmt.Sprintf("task is %s, not %s", ut.Status.Label(), model.StatusPendingReview.Label()))
	}
	return ut, nil
}

// taskTitle returns the template title, or the fallback label when the
// template has been deleted.
func taskTitle(ctx context.Context, tx *sql.Tx, taskID string) (string, error) {
	var title string
	err := tx.QueryRowContext(ctx, `SELECT title FROM tasks WHERE id = ?`, taskID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TaskNotFoundTitle, nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: reading title of task %s: %w", taskID, err)
	}
	return title, nil
}
