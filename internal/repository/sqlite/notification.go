package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/realtime"
	"github.com/sakif/mentorflow/internal/repository"
)

var _ repository.NotificationRepository = (*DB)(nil)

// ListNotifications returns a user's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, title, message, type, is_read, created_at, task_id
		 FROM notifications WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var (
			n      model.Notification
			taskID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt, &taskID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification row: %w", err)
		}
		if taskID.Valid {
			id := taskID.String
			n.TaskID = &id
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating notification rows: %w", err)
	}
	return out, nil
}

// CountUnread counts a user's unread notifications.
func (db *DB) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting unread for %s: %w", userID, err)
	}
	return n, nil
}

// MarkRead flags one notification as read. The user_id condition keeps a
// user from touching someone else's rows; a foreign id looks like a missing one.
func (db *DB) MarkRead(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("notification", id)
	}

	db.publish("notifications", realtime.EventUpdate, userID, model.Notification{ID: id, UserID: userID, IsRead: true})
	return nil
}

// MarkAllRead flags every unread notification of userID and returns how many changed.
func (db *DB) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marking all read for %s: %w", userID, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		db.publish("notifications", realtime.EventUpdate, userID, nil)
	}
	return n, nil
}

// insertNotification writes one row inside tx. Callers publish after commit.
func (db *DB) insertNotification(ctx context.Context, tx *sql.Tx, n *model.Notification) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, message, type, is_read, task_id, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, nullString(n.TaskID), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting notification for %s: %w", n.UserID, err)
	}
	return nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
