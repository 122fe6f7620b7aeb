package model

// TaskStatus is the progress state of a UserTask.
//
//	not_started ──start──▶ in_progress ──submit──▶ pending_review ──approve──▶ completed
//	                           ▲                          │
//	                           └──────retry──── rejected ◀┘ reject
//
// not_started is never stored: a missing user_tasks row IS not_started.
type TaskStatus string

const (
	StatusNotStarted    TaskStatus = "not_started"
	StatusInProgress    TaskStatus = "in_progress"
	StatusPendingReview TaskStatus = "pending_review"
	StatusCompleted     TaskStatus = "completed"
	StatusRejected      TaskStatus = "rejected"
)

// transitions lists every legal edge of the status machine.
var transitions = map[TaskStatus][]TaskStatus{
	StatusNotStarted:    {StatusInProgress},
	StatusInProgress:    {StatusPendingReview},
	StatusPendingReview: {StatusCompleted, StatusRejected},
	StatusRejected:      {StatusInProgress},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the five known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusPendingReview, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Label is the display text for a status.
func (s TaskStatus) Label() string {
	switch s {
	case StatusNotStarted:
		return "Not Started"
	case StatusInProgress:
		return "In Progress"
	case StatusPendingReview:
		return "Pending Approval"
	case StatusCompleted:
		return "Completed"
	case StatusRejected:
		return "Rejected"
	}
	return "Unknown"
}
