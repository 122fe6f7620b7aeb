package controller

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/service"
)

// Page messages.
const (
	MsgSubmitted       = "Task submitted for approval! Your points will be credited shortly."
	MsgMissingUserTask = "Cannot submit task: User task entry not found for submission."
	prefixLoadFailed   = "Failed to load your tasks: "
	prefixStatusFailed = "Failed to update task status: "
	prefixSubmitFailed = "Failed to submit task for approval: "
	prefixRetryFailed  = "Failed to retry task: "
	proofMailSubject   = "Proof of Work: "
	proofMailBody      = "Paste your proof of work here."
	DefaultProofEmail  = "tasksquare@duck.com"
)

// TaskService is the part of service.TaskService a board needs.
type TaskService interface {
	ListWithProgress(ctx context.Context, userID string) (*service.Progress, error)
	Start(ctx context.Context, userID, taskID string) (*model.UserTask, error)
	Submit(ctx context.Context, userID, userTaskID string) (*model.UserTask, error)
	Retry(ctx context.Context, userID, userTaskID string) (*model.UserTask, error)
}

// TaskView is a template merged with the user's progress on it.
type TaskView struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Points           int              `json:"points"`
	DueDate          *time.Time       `json:"due_date"`
	TasksURL         string           `json:"tasks_url"`
	UserTaskID       string           `json:"user_task_id"`
	Status           model.TaskStatus `json:"status"`
	StatusLabel      string           `json:"status_label"`
	RejectionMessage string           `json:"rejection_message"`
}

// BoardSnapshot is the page state at one instant.
type BoardSnapshot struct {
	Tasks       []TaskView `json:"tasks"`
	Loading     bool       `json:"loading"`
	Error       string     `json:"error,omitempty"`
	Success     string     `json:"success,omitempty"`
	Selected    *TaskView  `json:"selected,omitempty"`
	ConfirmOpen bool       `json:"confirm_open"`
	ToComplete  *TaskView  `json:"to_complete,omitempty"`
}

// TaskBoard drives one student's task page.
//
// STATE MACHINE (per selected task):
//
//	not_started ──Advance──▶ in_progress ──Advance──▶ [confirm step]
//	[confirm step] ──Confirm(sent=true)──▶ pending_review
//	[confirm step] ──Confirm(sent=false)─▶ in_progress + mail link
//	rejected ──Retry──▶ in_progress
//
// Every mutation is one service call. On failure the error string is set and
// the rest of the state is left alone.
type TaskBoard struct {
	userID     string
	tasks      TaskService
	proofEmail string
	logger     *slog.Logger

	op    sync.Mutex // serialises mutations
	mu    sync.Mutex // guards state
	state BoardSnapshot
	seq   Sequence
}

func NewTaskBoard(userID string, tasks TaskService, proofEmail string, logger *slog.Logger) *TaskBoard {
	if proofEmail == "" {
		proofEmail = DefaultProofEmail
	}
	return &TaskBoard{
		userID:     userID,
		tasks:      tasks,
		proofEmail: proofEmail,
		logger:     logger.With(slog.String("userID", userID)),
		state:      BoardSnapshot{Tasks: []TaskView{}},
	}
}

// Snapshot returns a copy of the current state.
func (b *TaskBoard) Snapshot() BoardSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.state
	s.Tasks = slices.Clone(b.state.Tasks)
	s.Selected = copyView(b.state.Selected)
	s.ToComplete = copyView(b.state.ToComplete)
	return s
}

// Load fetches templates and progress and rebuilds the task list. A response
// that arrives after a newer Load started is dropped.
func (b *TaskBoard) Load(ctx context.Context) error {
	ticket := b.seq.Next()

	b.mu.Lock()
	b.state.Loading = true
	b.state.Error = ""
	b.state.Success = ""
	b.mu.Unlock()

	progress, err := b.tasks.ListWithProgress(ctx, b.userID)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.seq.Current(ticket) {
		return nil
	}
	b.state.Loading = false

	if err != nil {
		if apperror.IsCanceled(err) {
			return nil
		}
		b.state.Error = prefixLoadFailed + errorText(err)
		return err
	}

	b.state.Tasks = merge(progress)
	return nil
}

// merge joins templates with progress rows. Rows whose template is gone are
// kept, titled "Task details not found".
func merge(p *service.Progress) []TaskView {
	byTask := make(map[string]model.UserTask, len(p.UserTasks))
	for _, ut := range p.UserTasks {
		byTask[ut.TaskID] = ut
	}

	views := make([]TaskView, 0, len(p.Tasks)+len(p.UserTasks))
	for _, t := range p.Tasks {
		v := TaskView{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Points:      t.Points,
			DueDate:     t.DueDate,
			TasksURL:    t.TasksURL,
			Status:      model.StatusNotStarted,
		}
		if ut, ok := byTask[t.ID]; ok {
			v.UserTaskID = ut.ID
			v.Status = ut.Status
			v.RejectionMessage = ut.RejectionMessage
			delete(byTask, t.ID)
		}
		v.StatusLabel = v.Status.Label()
		views = append(views, v)
	}

	for _, ut := range p.UserTasks {
		if _, orphan := byTask[ut.TaskID]; !orphan {
			continue
		}
		views = append(views, TaskView{
			ID:               ut.TaskID,
			Title:            model.TaskNotFoundTitle,
			UserTaskID:       ut.ID,
			Status:           ut.Status,
			StatusLabel:      ut.Status.Label(),
			RejectionMessage: ut.RejectionMessage,
		})
	}
	return views
}

// Select opens the details of one task.
func (b *TaskBoard) Select(taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.state.Tasks {
		if b.state.Tasks[i].ID == taskID {
			b.state.Selected = copyView(&b.state.Tasks[i])
			return nil
		}
	}
	return apperror.NotFound("task", taskID)
}

// Close dismisses the details view.
func (b *TaskBoard) Close() {
	b.mu.Lock()
	b.state.Selected = nil
	b.mu.Unlock()
}

// Advance moves the selected task one step forward. Starting a task is a
// backend call; moving an in-progress task only opens the confirm step.
func (b *TaskBoard) Advance(ctx context.Context) error {
	b.op.Lock()
	defer b.op.Unlock()

	sel := b.selected()
	if sel == nil {
		return apperror.ValidationFailed("task", "no task selected")
	}

	switch sel.Status {
	case model.StatusNotStarted:
		ut, err := b.tasks.Start(ctx, b.userID, sel.ID)
		if err != nil {
			return b.fail(prefixStatusFailed, err)
		}
		b.logger.Debug("task started", slog.String("taskID", sel.ID))
		if err := b.Load(ctx); err != nil {
			return err
		}

		b.mu.Lock()
		if b.state.Selected != nil && b.state.Selected.ID == sel.ID {
			b.state.Selected.UserTaskID = ut.ID
			b.state.Selected.Status = ut.Status
			b.state.Selected.StatusLabel = ut.Status.Label()
			b.state.Selected.RejectionMessage = ut.RejectionMessage
		}
		b.mu.Unlock()

	case model.StatusInProgress:
		b.mu.Lock()
		defer b.mu.Unlock()
		if sel.UserTaskID == "" {
			b.state.Error = MsgMissingUserTask
			return apperror.ValidationFailed("user_task_id", MsgMissingUserTask)
		}
		b.state.ToComplete = sel
		b.state.ConfirmOpen = true
	}
	return nil
}

// Confirm answers the "have you sent the proof of work?" step.
//
// sent=true submits the task for review. sent=false leaves the task in
// progress and returns the mail link to compose the proof.
func (b *TaskBoard) Confirm(ctx context.Context, sent bool) (mailto string, err error) {
	b.op.Lock()
	defer b.op.Unlock()

	b.mu.Lock()
	target := copyView(b.state.ToComplete)
	open := b.state.ConfirmOpen
	b.mu.Unlock()
	if target == nil || (!open && sent) {
		return "", apperror.ValidationFailed("task", "no task awaiting confirmation")
	}

	if !sent {
		b.mu.Lock()
		b.state.ConfirmOpen = false
		b.mu.Unlock()
		return b.proofLink(target.Title), nil
	}

	_, submitErr := b.tasks.Submit(ctx, b.userID, target.UserTaskID)

	b.mu.Lock()
	b.state.ConfirmOpen = false
	b.state.ToComplete = nil
	b.state.Selected = nil
	b.mu.Unlock()

	if submitErr != nil {
		return "", b.fail(prefixSubmitFailed, submitErr)
	}

	b.logger.Info("task submitted for approval", slog.String("userTaskID", target.UserTaskID))
	if err := b.Load(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	b.state.Success = MsgSubmitted
	b.mu.Unlock()
	return "", nil
}

// Retry sends the selected rejected task back to in_progress.
func (b *TaskBoard) Retry(ctx context.Context) error {
	b.op.Lock()
	defer b.op.Unlock()

	sel := b.selected()
	if sel == nil {
		return apperror.ValidationFailed("task", "no task selected")
	}
	if _, err := b.tasks.Retry(ctx, b.userID, sel.UserTaskID); err != nil {
		return b.fail(prefixRetryFailed, err)
	}
	if err := b.Load(ctx); err != nil {
		return err
	}
	b.Close()
	return nil
}

func (b *TaskBoard) proofLink(title string) string {
	return fmt.Sprintf("mailto:%s?subject=%s%s&body=%s", b.proofEmail, proofMailSubject, title, proofMailBody)
}

func (b *TaskBoard) selected() *TaskView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyView(b.state.Selected)
}

// fail records err under prefix. Cancellations are swallowed.
func (b *TaskBoard) fail(prefix string, err error) error {
	if apperror.IsCanceled(err) {
		return nil
	}
	b.mu.Lock()
	b.state.Error = prefix + errorText(err)
	b.mu.Unlock()
	b.logger.Warn("task board action failed", slog.String("error", err.Error()))
	return err
}

func copyView(v *TaskView) *TaskView {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
