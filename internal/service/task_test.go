package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/metrics"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================

type approveCall struct {
	userTaskID string
	userID     string
	points     int
}

// fakeStore implements every repository contract except users in memory.
// It records procedure calls so tests can count them.
type fakeStore struct {
	tasks         map[string]*model.Task
	userTasks     map[string]*model.UserTask
	profiles      map[string]*model.Profile
	leaderboard   []model.LeaderboardEntry
	ensured       []string
	notifications map[string][]model.Notification
	nextID        int

	approveCalls []approveCall
	rejectCalls  []string
	broadcasts   int

	err error // returned by every method when set
}

var (
	_ repository.TaskRepository         = (*fakeStore)(nil)
	_ repository.UserTaskRepository     = (*fakeStore)(nil)
	_ repository.ProfileRepository      = (*fakeStore)(nil)
	_ repository.LeaderboardRepository  = (*fakeStore)(nil)
	_ repository.NotificationRepository = (*fakeStore)(nil)
	_ repository.Procedures             = (*fakeStore)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:         make(map[string]*model.Task),
		userTasks:     make(map[string]*model.UserTask),
		profiles:      make(map[string]*model.Profile),
		notifications: make(map[string][]model.Notification),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, apperror.NotFound("task", id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) CreateTask(ctx context.Context, t *model.Task) error {
	if f.err != nil {
		return f.err
	}
	t.ID = f.id("task")
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, t *model.Task) error {
	if _, ok := f.tasks[t.ID]; !ok {
		return apperror.NotFound("task", t.ID)
	}
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) error {
	if _, ok := f.tasks[id]; !ok {
		return apperror.NotFound("task", id)
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) ListUserTasks(ctx context.Context, userID string) ([]model.UserTask, error) {
	var out []model.UserTask
	for _, ut := range f.userTasks {
		if ut.UserID == userID {
			out = append(out, *ut)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUserTask(ctx context.Context, id string) (*model.UserTask, error) {
	ut, ok := f.userTasks[id]
	if !ok {
		return nil, apperror.NotFound("user task", id)
	}
	cp := *ut
	return &cp, nil
}

func (f *fakeStore) StartUserTask(ctx context.Context, userID, taskID string) (*model.UserTask, error) {
	for _, ut := range f.userTasks {
		if ut.UserID == userID && ut.TaskID == taskID {
			if ut.Status != model.StatusInProgress {
				return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "task is already " + string(ut.Status)}
			}
			cp := *ut
			return &cp, nil
		}
	}
	ut := &model.UserTask{ID: f.id("ut"), UserID: userID, TaskID: taskID, Status: model.StatusInProgress}
	f.userTasks[ut.ID] = ut
	cp := *ut
	return &cp, nil
}

func (f *fakeStore) transition(id string, from, to model.TaskStatus) (*model.UserTask, error) {
	ut, ok := f.userTasks[id]
	if !ok {
		return nil, apperror.NotFound("user task", id)
	}
	if ut.Status != from {
		return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "wrong status"}
	}
	ut.Status = to
	cp := *ut
	return &cp, nil
}

func (f *fakeStore) SubmitUserTask(ctx context.Context, id string, at time.Time) (*model.UserTask, error) {
	ut, err := f.transition(id, model.StatusInProgress, model.StatusPendingReview)
	if err == nil {
		f.userTasks[id].SubmittedAt = &at
		ut.SubmittedAt = &at
	}
	return ut, err
}

func (f *fakeStore) RetryUserTask(ctx context.Context, id string) (*model.UserTask, error) {
	return f.transition(id, model.StatusRejected, model.StatusInProgress)
}

func (f *fakeStore) ListPendingReview(ctx context.Context) ([]model.PendingReview, error) {
	var out []model.PendingReview
	for _, ut := range f.userTasks {
		if ut.Status == model.StatusPendingReview {
			out = append(out, model.PendingReview{UserTaskID: ut.ID, UserID: ut.UserID, Status: ut.Status})
		}
	}
	return out, nil
}

func (f *fakeStore) CountUserTasksByStatus(ctx context.Context, userID string, status model.TaskStatus) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n := 0
	for _, ut := range f.userTasks {
		if ut.UserID == userID && ut.Status == status {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) UpsertProfile(ctx context.Context, p *model.Profile) error {
	if existing, ok := f.profiles[p.ID]; ok {
		p.Role = existing.Role
	} else {
		p.Role = model.RoleStudent
	}
	cp := *p
	f.profiles[p.ID] = &cp
	return nil
}

func (f *fakeStore) CountProfiles(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(f.profiles), nil
}

func (f *fakeStore) EnsureLeaderboardEntry(ctx context.Context, userID string) error {
	f.ensured = append(f.ensured, userID)
	return nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	return f.notifications[userID], nil
}

func (f *fakeStore) CountUnread(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, no := range f.notifications[userID] {
		if !no.IsRead {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, userID, id string) error {
	for i, no := range f.notifications[userID] {
		if no.ID == id {
			f.notifications[userID][i].IsRead = true
			return nil
		}
	}
	return apperror.NotFound("notification", id)
}

func (f *fakeStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	var n int64
	for i, no := range f.notifications[userID] {
		if !no.IsRead {
			f.notifications[userID][i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) LeaderboardWithRank(ctx context.Context) ([]model.LeaderboardEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.LeaderboardEntry(nil), f.leaderboard...), nil
}

func (f *fakeStore) LeaderboardTop10(ctx context.Context) ([]model.LeaderboardEntry, error) {
	all, err := f.LeaderboardWithRank(ctx)
	if len(all) > 10 {
		all = all[:10]
	}
	return all, err
}

func (f *fakeStore) ApproveTaskAndUpdateScore(ctx context.Context, userTaskID, userID string, points int) error {
	f.approveCalls = append(f.approveCalls, approveCall{userTaskID, userID, points})
	if f.err != nil {
		return f.err
	}
	f.userTasks[userTaskID].Status = model.StatusCompleted
	return nil
}

func (f *fakeStore) RejectTaskWithFeedback(ctx context.Context, userTaskID, feedback string) error {
	f.rejectCalls = append(f.rejectCalls, userTaskID)
	return f.err
}

func (f *fakeStore) SendAdminNotification(ctx context.Context, title, message string) (int, error) {
	f.broadcasts++
	n := 0
	for id, p := range f.profiles {
		if p.Role == model.RoleAdmin {
			continue
		}
		f.notifications[id] = append(f.notifications[id], model.Notification{
			ID: f.id("n"), UserID: id, Title: title, Message: message, Type: model.NotificationAdmin,
		})
		n++
	}
	return n, nil
}

func newTestTaskService(store *fakeStore) *TaskService {
	svc := NewTaskService(store, store, store, metrics.New(), quietLogger())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

// seedPending creates a template worth points and a pending_review row for userID.
func seedPending(t *testing.T, store *fakeStore, userID string, points int) (*model.Task, *model.UserTask) {
	t.Helper()
	task := &model.Task{Title: "Build a CLI", Description: "Use cobra", Points: points}
	require.NoError(t, store.CreateTask(context.Background(), task))
	ut, err := store.StartUserTask(context.Background(), userID, task.ID)
	require.NoError(t, err)
	ut, err = store.SubmitUserTask(context.Background(), ut.ID, time.Now())
	require.NoError(t, err)
	return task, ut
}

// =========================================================================
// TEMPLATE TESTS
// =========================================================================

func TestCreateTemplate_Validation(t *testing.T) {
	tests := []struct {
		name    string
		task    model.Task
		wantMsg string
	}{
		{"missing title", model.Task{Description: "d", Points: 10}, MsgTemplateFieldsMissing},
		{"blank description", model.Task{Title: "t", Description: "   ", Points: 10}, MsgTemplateFieldsMissing},
		{"negative points", model.Task{Title: "t", Description: "d", Points: -1}, "points must not be negative"},
		{"bad url", model.Task{Title: "t", Description: "d", TasksURL: "ftp://x"}, "tasks URL must be an http(s) link"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestTaskService(store)

			err := svc.CreateTemplate(context.Background(), &tt.task)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Empty(t, store.tasks)
		})
	}
}

func TestCreateTemplate_TrimsAndStores(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)

	task := &model.Task{Title: "  Intro  ", Description: " Read the guide ", Points: 0, TasksURL: "https://example.com/t"}
	require.NoError(t, svc.CreateTemplate(context.Background(), task))

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "Intro", store.tasks[task.ID].Title)
	assert.Equal(t, "Read the guide", store.tasks[task.ID].Description)
}

func TestUpdateAndDeleteTemplate(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	ctx := context.Background()

	task := &model.Task{Title: "Old", Description: "d", Points: 5}
	require.NoError(t, svc.CreateTemplate(ctx, task))

	task.Title = "New"
	require.NoError(t, svc.UpdateTemplate(ctx, task))
	assert.Equal(t, "New", store.tasks[task.ID].Title)

	require.ErrorIs(t, svc.UpdateTemplate(ctx, &model.Task{Title: "x", Description: "y"}), apperror.ErrValidation)

	require.NoError(t, svc.DeleteTemplate(ctx, task.ID))
	require.ErrorIs(t, svc.DeleteTemplate(ctx, task.ID), apperror.ErrNotFound)
}

// =========================================================================
// STUDENT PROGRESS TESTS
// =========================================================================

func TestStart_UnknownTemplate(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)

	_, err := svc.Start(context.Background(), "u1", "missing")
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Empty(t, store.userTasks)
}

func TestStartSubmitRetry(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	ctx := context.Background()

	task := &model.Task{Title: "t", Description: "d", Points: 10}
	require.NoError(t, svc.CreateTemplate(ctx, task))

	ut, err := svc.Start(ctx, "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, ut.Status)

	again, err := svc.Start(ctx, "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, ut.ID, again.ID)

	submitted, err := svc.Submit(ctx, "u1", ut.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReview, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
	assert.Equal(t, svc.now(), *submitted.SubmittedAt)

	// Retry only applies to rejected rows.
	_, err = svc.Retry(ctx, "u1", ut.ID)
	require.ErrorIs(t, err, apperror.ErrConflict)

	store.userTasks[ut.ID].Status = model.StatusRejected
	retried, err := svc.Retry(ctx, "u1", ut.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, retried.Status)
}

func TestSubmit_OtherUsersRowIsNotFound(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)

	task := &model.Task{Title: "t", Description: "d", Points: 10}
	require.NoError(t, store.CreateTask(context.Background(), task))
	ut, err := store.StartUserTask(context.Background(), "owner", task.ID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "intruder", ut.ID)
	require.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, model.StatusInProgress, store.userTasks[ut.ID].Status)
}

func TestListWithProgress(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	seedPending(t, store, "u1", 10)
	seedPending(t, store, "u2", 20)

	p, err := svc.ListWithProgress(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, p.Tasks, 2)
	require.Len(t, p.UserTasks, 1)
	assert.Equal(t, "u1", p.UserTasks[0].UserID)
}

// =========================================================================
// REVIEW TESTS
// =========================================================================

func TestApprove_CallsProcedureOnceWithTemplatePoints(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	_, ut := seedPending(t, store, "u1", 120)

	require.NoError(t, svc.Approve(context.Background(), ut.ID))

	require.Len(t, store.approveCalls, 1)
	assert.Equal(t, approveCall{userTaskID: ut.ID, userID: "u1", points: 120}, store.approveCalls[0])
}

func TestApprove_NotPending(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	_, ut := seedPending(t, store, "u1", 10)
	require.NoError(t, svc.Approve(context.Background(), ut.ID))

	err := svc.Approve(context.Background(), ut.ID)
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Len(t, store.approveCalls, 1, "second approval must not reach the procedure")
}

func TestApprove_DeletedTemplate(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	task, ut := seedPending(t, store, "u1", 10)
	delete(store.tasks, task.ID)

	err := svc.Approve(context.Background(), ut.ID)
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Empty(t, store.approveCalls)
}

func TestApprove_BackendError(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	_, ut := seedPending(t, store, "u1", 10)

	store.err = errors.New("connection reset")
	err := svc.Approve(context.Background(), ut.ID)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrNotFound))
	assert.Empty(t, store.approveCalls)
}

func TestReject(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	_, ut := seedPending(t, store, "u1", 10)

	err := svc.Reject(context.Background(), ut.ID, "   ")
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, MsgFeedbackRequired, err.Error())
	assert.Empty(t, store.rejectCalls)

	require.NoError(t, svc.Reject(context.Background(), ut.ID, "Please add tests"))
	assert.Equal(t, []string{ut.ID}, store.rejectCalls)
}

func TestListPendingReview(t *testing.T) {
	store := newFakeStore()
	svc := newTestTaskService(store)
	seedPending(t, store, "u1", 10)

	out, err := svc.ListPendingReview(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
