package model

import "time"

// Task is an admin-defined task template.
//
// DueDate is optional; a nil pointer means "no deadline" and serialises as
// JSON null, which is different from the zero time.Time ("0001-01-01").
type Task struct {
	ID          string     `json:"id"          db:"id"`
	Title       string     `json:"title"       db:"title"`
	Description string     `json:"description" db:"description"`
	Points      int        `json:"points"      db:"points"`
	DueDate     *time.Time `json:"due_date"    db:"due_date"`
	TasksURL    string     `json:"tasks_url"   db:"tasks_url"`
	CreatedAt   time.Time  `json:"created_at"  db:"created_at"`
}

// UserTask is one user's progress against one Task.
// At most one row exists per (UserID, TaskID) pair.
type UserTask struct {
	ID               string     `json:"id"                db:"id"`
	UserID           string     `json:"user_id"           db:"user_id"`
	TaskID           string     `json:"task_id"           db:"task_id"`
	Status           TaskStatus `json:"status"            db:"status"`
	SubmissionURL    string     `json:"submission_url"    db:"submission_url"`
	SubmittedAt      *time.Time `json:"submitted_at"      db:"submitted_at"`
	RejectionMessage string     `json:"rejection_message" db:"rejection_message"`
	CreatedAt        time.Time  `json:"created_at"        db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"        db:"updated_at"`
}

// PendingReview is a submitted UserTask joined with what an admin needs to
// judge it: the template's title and points, and who submitted it.
type PendingReview struct {
	UserTaskID    string     `json:"id"`
	UserID        string     `json:"user_id"`
	Status        TaskStatus `json:"status"`
	SubmissionURL string     `json:"submission_url"`
	SubmittedAt   *time.Time `json:"submitted_at"`
	TaskTitle     string     `json:"task_title"`
	TaskPoints    int        `json:"task_points"`
	FullName      string     `json:"full_name"`
	Email         string     `json:"email"`
}

// TaskNotFoundTitle labels progress rows whose template was deleted.
const TaskNotFoundTitle = "Task details not found"
