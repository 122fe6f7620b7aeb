// Package repository declares the storage contracts the services depend on.
//
// One interface per backend resource family. The sqlite package implements
// all of them on a single *DB; tests hand services small fakes instead.
package repository

import (
	"context"
	"time"

	"github.com/sakif/mentorflow/internal/model"
)

// UserRepository is the account store behind the auth surface.
type UserRepository interface {
	// CreateUser inserts a password account. Duplicate emails return ErrConflict.
	CreateUser(ctx context.Context, user *model.User) error
	// Upsert inserts or refreshes an account keyed by GitHub ID.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpdateUserMetadata merges md into the stored metadata and returns the
	// updated account.
	UpdateUserMetadata(ctx context.Context, id string, md map[string]string) (*model.User, error)
}

// TaskRepository stores task templates.
type TaskRepository interface {
	ListTasks(ctx context.Context) ([]model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	CreateTask(ctx context.Context, task *model.Task) error
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, id string) error
}

// UserTaskRepository stores per-user progress rows.
type UserTaskRepository interface {
	ListUserTasks(ctx context.Context, userID string) ([]model.UserTask, error)
	GetUserTask(ctx context.Context, id string) (*model.UserTask, error)
	// StartUserTask moves (user, task) to in_progress, creating the row if
	// needed. Calling it twice yields one row.
	StartUserTask(ctx context.Context, userID, taskID string) (*model.UserTask, error)
	// SubmitUserTask moves an in_progress row to pending_review.
	SubmitUserTask(ctx context.Context, id string, submittedAt time.Time) (*model.UserTask, error)
	// RetryUserTask moves a rejected row back to in_progress and clears the
	// rejection message.
	RetryUserTask(ctx context.Context, id string) (*model.UserTask, error)
	ListPendingReview(ctx context.Context) ([]model.PendingReview, error)
	CountUserTasksByStatus(ctx context.Context, userID string, status model.TaskStatus) (int, error)
}

// ProfileRepository stores profiles.
type ProfileRepository interface {
	// GetProfile returns nil, nil when the user has no profile row yet.
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpsertProfile(ctx context.Context, p *model.Profile) error
	CountProfiles(ctx context.Context) (int, error)
}

// LeaderboardRepository covers the direct table access to leaderboard rows.
type LeaderboardRepository interface {
	// EnsureLeaderboardEntry inserts a score-0 row for userID if none exists.
	EnsureLeaderboardEntry(ctx context.Context, userID string) error
}

// NotificationRepository stores per-user notifications.
type NotificationRepository interface {
	// ListNotifications returns newest first.
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Procedures are the server-side RPCs. Each runs in one transaction.
type Procedures interface {
	LeaderboardWithRank(ctx context.Context) ([]model.LeaderboardEntry, error)
	LeaderboardTop10(ctx context.Context) ([]model.LeaderboardEntry, error)
	ApproveTaskAndUpdateScore(ctx context.Context, userTaskID, userID string, points int) error
	RejectTaskWithFeedback(ctx context.Context, userTaskID, feedback string) error
	// SendAdminNotification fans one notification out to every student
	// profile and returns how many were written.
	SendAdminNotification(ctx context.Context, title, message string) (int, error)
}
