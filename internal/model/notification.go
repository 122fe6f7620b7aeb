package model

import "time"

// Notification types written by the backend procedures.
const (
	NotificationAdmin        = "admin"
	NotificationTaskApproved = "task_approved"
	NotificationTaskRejected = "task_rejected"
)

// Notification is a message shown to one user. Notifications are created
// server-side only; clients read them and mark them read.
type Notification struct {
	ID        string    `json:"id"         db:"id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	Title     string    `json:"title"      db:"title"`
	Message   string    `json:"message"    db:"message"`
	Type      string    `json:"type"       db:"type"`
	IsRead    bool      `json:"is_read"    db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	TaskID    *string   `json:"task_id"    db:"task_id"`
}
