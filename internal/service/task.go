package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/metrics"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/repository"
)

// Validation constants for task templates.
const (
	MaxTaskTitleLength       = 200
	MaxTaskDescriptionLength = 10000
	MsgTemplateFieldsMissing = "Please fill out all required fields."
	MsgFeedbackRequired      = "Feedback is required to reject a task."
)

// TaskService covers templates (admin), a student's progress, and the admin
// review decisions.
type TaskService struct {
	tasks     repository.TaskRepository
	userTasks repository.UserTaskRepository
	procs     repository.Procedures
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewTaskService(
	tasks repository.TaskRepository,
	userTasks repository.UserTaskRepository,
	procs repository.Procedures,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TaskService {
	return &TaskService{
		tasks:     tasks,
		userTasks: userTasks,
		procs:     procs,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// =========================================================================
// TEMPLATES
// =========================================================================

func (s *TaskService) ListTemplates(ctx context.Context) ([]model.Task, error) {
	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing templates: %w", err)
	}
	return tasks, nil
}

func (s *TaskService) CreateTemplate(ctx context.Context, t *model.Task) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	if err := s.tasks.CreateTask(ctx, t); err != nil {
		return fmt.Errorf("service/task: creating template: %w", err)
	}
	s.logger.Info("task template created", slog.String("id", t.ID), slog.Int("points", t.Points))
	return nil
}

func (s *TaskService) UpdateTemplate(ctx context.Context, t *model.Task) error {
	if t.ID == "" {
		return apperror.ValidationFailed("id", "template id is required")
	}
	if err := validateTemplate(t); err != nil {
		return err
	}
	if err := s.tasks.UpdateTask(ctx, t); err != nil {
		return fmt.Errorf("service/task: updating template %s: %w", t.ID, err)
	}
	s.logger.Info("task template updated", slog.String("id", t.ID))
	return nil
}

// DeleteTemplate removes a template. Students' progress rows survive and
// show up as "Task details not found".
func (s *TaskService) DeleteTemplate(ctx context.Context, id string) error {
	if err := s.tasks.DeleteTask(ctx, id); err != nil {
		return fmt.Errorf("service/task: deleting template %s: %w", id, err)
	}
	s.logger.Info("task template deleted", slog.String("id", id))
	return nil
}

func validateTemplate(t *model.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	t.TasksURL = strings.TrimSpace(t.TasksURL)

	if t.Title == "" || t.Description == "" {
		return apperror.ValidationFailed("title", MsgTemplateFieldsMissing)
	}
	if len(t.Title) > MaxTaskTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or fewer", MaxTaskTitleLength))
	}
	if len(t.Description) > MaxTaskDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or fewer", MaxTaskDescriptionLength))
	}
	if t.Points < 0 {
		return apperror.ValidationFailed("points", "points must not be negative")
	}
	if t.TasksURL != "" {
		u, err := url.Parse(t.TasksURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperror.ValidationFailed("tasks_url", "tasks URL must be an http(s) link")
		}
	}
	return nil
}

// =========================================================================
// STUDENT PROGRESS
// =========================================================================

// Progress is the raw material of a task board: every template plus the
// user's progress rows.
type Progress struct {
	Tasks     []model.Task
	UserTasks []model.UserTask
}

func (s *TaskService) ListWithProgress(ctx context.Context, userID string) (*Progress, error) {
	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing templates: %w", err)
	}
	uts, err := s.userTasks.ListUserTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing progress: %w", err)
	}
	return &Progress{Tasks: tasks, UserTasks: uts}, nil
}

// Start moves a task to in_progress for userID (idempotent).
func (s *TaskService) Start(ctx context.Context, userID, taskID string) (*model.UserTask, error) {
	if _, err := s.tasks.GetTask(ctx, taskID); err != nil {
		return nil, fmt.Errorf("service/task: starting %s: %w", taskID, err)
	}
	ut, err := s.userTasks.StartUserTask(ctx, userID, taskID)
	if err != nil {
		return nil, fmt.Errorf("service/task: starting %s: %w", taskID, err)
	}
	s.metrics.TaskTransition(metrics.TransitionStarted)
	s.logger.Info("task started", slog.String("userID", userID), slog.String("taskID", taskID))
	return ut, nil
}

// Submit moves the user's in_progress row to pending_review.
func (s *TaskService) Submit(ctx context.Context, userID, userTaskID string) (*model.UserTask, error) {
	if _, err := s.owned(ctx, userID, userTaskID); err != nil {
		return nil, err
	}
	ut, err := s.userTasks.SubmitUserTask(ctx, userTaskID, s.now())
	if err != nil {
		return nil, fmt.Errorf("service/task: submitting %s: %w", userTaskID, err)
	}
	s.metrics.TaskTransition(metrics.TransitionSubmitted)
	s.logger.Info("task submitted", slog.String("userID", userID), slog.String("userTaskID", userTaskID))
	return ut, nil
}

// Retry moves the user's rejected row back to in_progress.
func (s *TaskService) Retry(ctx context.Context, userID, userTaskID string) (*model.UserTask, error) {
	if _, err := s.owned(ctx, userID, userTaskID); err != nil {
		return nil, err
	}
	ut, err := s.userTasks.RetryUserTask(ctx, userTaskID)
	if err != nil {
		return nil, fmt.Errorf("service/task: retrying %s: %w", userTaskID, err)
	}
	s.metrics.TaskTransition(metrics.TransitionRetried)
	return ut, nil
}

// owned loads a progress row and hides rows of other users behind NotFound.
func (s *TaskService) owned(ctx context.Context, userID, userTaskID string) (*model.UserTask, error) {
	if userTaskID == "" {
		return nil, apperror.ValidationFailed("user_task_id", "user task id is required")
	}
	ut, err := s.userTasks.GetUserTask(ctx, userTaskID)
	if err != nil {
		return nil, fmt.Errorf("service/task: %w", err)
	}
	if ut.UserID != userID {
		return nil, apperror.NotFound("user task", userTaskID)
	}
	return ut, nil
}

// =========================================================================
// ADMIN REVIEW
// =========================================================================

func (s *TaskService) ListPendingReview(ctx context.Context) ([]model.PendingReview, error) {
	out, err := s.userTasks.ListPendingReview(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing pending reviews: %w", err)
	}
	return out, nil
}

// Approve credits the template's points to the submitter through the
// approval procedure, which is called exactly once.
func (s *TaskService) Approve(ctx context.Context, userTaskID string) error {
	ut, err := s.userTasks.GetUserTask(ctx, userTaskID)
	if err != nil {
		return fmt.Errorf("service/task: approving %s: %w", userTaskID, err)
	}
	if !model.CanTransition(ut.Status, model.StatusCompleted) {
		return apperror.Conflict(fmt.Sprintf("only tasks pending approval can be approved (task is %s)", ut.Status.Label()))
	}

	task, err := s.tasks.GetTask(ctx, ut.TaskID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.Conflict(model.TaskNotFoundTitle + ": cannot determine points to award")
		}
		return fmt.Errorf("service/task: loading template %s: %w", ut.TaskID, err)
	}

	if err := s.procs.ApproveTaskAndUpdateScore(ctx, ut.ID, ut.UserID, task.Points); err != nil {
		return fmt.Errorf("service/task: approve_task_and_update_score: %w", err)
	}

	s.metrics.TaskTransition(metrics.TransitionApproved)
	s.metrics.NotificationsSent(model.NotificationTaskApproved, 1)
	s.logger.Info("task approved",
		slog.String("userTaskID", ut.ID),
		slog.String("userID", ut.UserID),
		slog.Int("points", task.Points),
	)
	return nil
}

// Reject sends the submission back with feedback.
func (s *TaskService) Reject(ctx context.Context, userTaskID, feedback string) error {
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return apperror.ValidationFailed("feedback", MsgFeedbackRequired)
	}

	if err := s.procs.RejectTaskWithFeedback(ctx, userTaskID, feedback); err != nil {
		return fmt.Errorf("service/task: reject_task_with_feedback: %w", err)
	}

	s.metrics.TaskTransition(metrics.TransitionRejected)
	s.metrics.NotificationsSent(model.NotificationTaskRejected, 1)
	s.logger.Info("task rejected", slog.String("userTaskID", userTaskID))
	return nil
}
