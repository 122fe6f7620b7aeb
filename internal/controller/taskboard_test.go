package controller

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/service"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeTasks is an in-memory TaskService. list, when set, replaces the
// default ListWithProgress behaviour.
type fakeTasks struct {
	mu        sync.Mutex
	templates []model.Task
	rows      map[string]*model.UserTask // keyed by task id

	list      func(ctx context.Context) (*service.Progress, error)
	startErr  error
	submitErr error

	starts, submits, retries int
}

func newFakeTasks(templates ...model.Task) *fakeTasks {
	return &fakeTasks{templates: templates, rows: make(map[string]*model.UserTask)}
}

func (f *fakeTasks) ListWithProgress(ctx context.Context, userID string) (*service.Progress, error) {
	if f.list != nil {
		return f.list(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &service.Progress{Tasks: append([]model.Task(nil), f.templates...)}
	for _, ut := range f.rows {
		p.UserTasks = append(p.UserTasks, *ut)
	}
	return p, nil
}

func (f *fakeTasks) Start(ctx context.Context, userID, taskID string) (*model.UserTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	ut := &model.UserTask{ID: "ut-" + taskID, UserID: userID, TaskID: taskID, Status: model.StatusInProgress}
	f.rows[taskID] = ut
	cp := *ut
	return &cp, nil
}

func (f *fakeTasks) find(userTaskID string) *model.UserTask {
	for _, ut := range f.rows {
		if ut.ID == userTaskID {
			return ut
		}
	}
	return nil
}

func (f *fakeTasks) Submit(ctx context.Context, userID, userTaskID string) (*model.UserTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	ut := f.find(userTaskID)
	ut.Status = model.StatusPendingReview
	cp := *ut
	return &cp, nil
}

func (f *fakeTasks) Retry(ctx context.Context, userID, userTaskID string) (*model.UserTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries++
	ut := f.find(userTaskID)
	if ut == nil || ut.Status != model.StatusRejected {
		return nil, &apperror.AppError{Err: apperror.ErrConflict, Message: "task is not rejected"}
	}
	ut.Status = model.StatusInProgress
	ut.RejectionMessage = ""
	cp := *ut
	return &cp, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBoard(t *testing.T, tasks *fakeTasks) *TaskBoard {
	t.Helper()
	b := NewTaskBoard("u1", tasks, "proof@example.com", quietLogger())
	require.NoError(t, b.Load(context.Background()))
	return b
}

var (
	intro = model.Task{ID: "t1", Title: "Intro", Description: "Read the guide", Points: 10}
	cli   = model.Task{ID: "t2", Title: "Build a CLI", Description: "Use cobra", Points: 50}
)

// =========================================================================
// LOAD TESTS
// =========================================================================

func TestLoad_MergesProgress(t *testing.T) {
	tasks := newFakeTasks(intro, cli)
	tasks.rows["t2"] = &model.UserTask{ID: "ut-t2", TaskID: "t2", Status: model.StatusRejected, RejectionMessage: "add tests"}
	b := newTestBoard(t, tasks)

	snap := b.Snapshot()
	require.Len(t, snap.Tasks, 2)
	assert.Equal(t, model.StatusNotStarted, snap.Tasks[0].Status)
	assert.Empty(t, snap.Tasks[0].UserTaskID)
	assert.Equal(t, "Not Started", snap.Tasks[0].StatusLabel)
	assert.Equal(t, model.StatusRejected, snap.Tasks[1].Status)
	assert.Equal(t, "ut-t2", snap.Tasks[1].UserTaskID)
	assert.Equal(t, "add tests", snap.Tasks[1].RejectionMessage)
	assert.False(t, snap.Loading)
}

func TestLoad_OrphanRowShowsPlaceholderTitle(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.rows["gone"] = &model.UserTask{ID: "ut-gone", TaskID: "gone", Status: model.StatusCompleted}
	b := newTestBoard(t, tasks)

	snap := b.Snapshot()
	require.Len(t, snap.Tasks, 2)
	assert.Equal(t, model.TaskNotFoundTitle, snap.Tasks[1].Title)
	assert.Equal(t, model.StatusCompleted, snap.Tasks[1].Status)
}

func TestLoad_ErrorIsPrefixed(t *testing.T) {
	tasks := newFakeTasks()
	tasks.list = func(context.Context) (*service.Progress, error) {
		return nil, apperror.Forbidden("permission denied for table tasks")
	}
	b := NewTaskBoard("u1", tasks, "", quietLogger())

	err := b.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Failed to load your tasks: permission denied for table tasks", b.Snapshot().Error)
}

func TestLoad_CancellationIsSwallowed(t *testing.T) {
	tasks := newFakeTasks()
	tasks.list = func(ctx context.Context) (*service.Progress, error) {
		return nil, ctx.Err()
	}
	b := NewTaskBoard("u1", tasks, "", quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, b.Load(ctx))
	assert.Empty(t, b.Snapshot().Error)
}

func TestLoad_StaleResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls int
	var mu sync.Mutex

	tasks := newFakeTasks()
	tasks.list = func(context.Context) (*service.Progress, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(entered)
			<-release
			return &service.Progress{Tasks: []model.Task{{ID: "old", Title: "stale"}}}, nil
		}
		return &service.Progress{Tasks: []model.Task{{ID: "new", Title: "fresh"}}}, nil
	}
	b := NewTaskBoard("u1", tasks, "", quietLogger())

	done := make(chan error)
	go func() { done <- b.Load(context.Background()) }()
	<-entered

	require.NoError(t, b.Load(context.Background()))
	close(release)
	require.NoError(t, <-done)

	snap := b.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, "fresh", snap.Tasks[0].Title)
}

// =========================================================================
// LIFECYCLE TESTS
// =========================================================================

func TestAdvance_StartsTask(t *testing.T) {
	tasks := newFakeTasks(intro)
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))

	require.NoError(t, b.Advance(context.Background()))

	snap := b.Snapshot()
	assert.Equal(t, 1, tasks.starts)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, model.StatusInProgress, snap.Selected.Status)
	assert.Equal(t, "ut-t1", snap.Selected.UserTaskID)
	assert.Equal(t, model.StatusInProgress, snap.Tasks[0].Status)
}

func TestAdvance_InProgressOpensConfirmWithoutBackendCall(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.rows["t1"] = &model.UserTask{ID: "ut-t1", TaskID: "t1", Status: model.StatusInProgress}
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))

	require.NoError(t, b.Advance(context.Background()))

	snap := b.Snapshot()
	assert.True(t, snap.ConfirmOpen)
	require.NotNil(t, snap.ToComplete)
	assert.Equal(t, "t1", snap.ToComplete.ID)
	assert.Zero(t, tasks.starts+tasks.submits)
}

func TestAdvance_InProgressWithoutRow(t *testing.T) {
	tasks := newFakeTasks(intro)
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))

	// Simulate a view that claims in_progress but has no row id.
	b.mu.Lock()
	b.state.Selected.Status = model.StatusInProgress
	b.mu.Unlock()

	err := b.Advance(context.Background())
	require.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, MsgMissingUserTask, b.Snapshot().Error)
	assert.False(t, b.Snapshot().ConfirmOpen)
}

func TestAdvance_CompletedIsNoOp(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.rows["t1"] = &model.UserTask{ID: "ut-t1", TaskID: "t1", Status: model.StatusCompleted}
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))

	require.NoError(t, b.Advance(context.Background()))
	assert.Zero(t, tasks.starts+tasks.submits+tasks.retries)
}

func TestAdvance_FailureKeepsState(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.startErr = errors.New("network down")
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))

	require.Error(t, b.Advance(context.Background()))

	snap := b.Snapshot()
	assert.Equal(t, "Failed to update task status: Something went wrong. Please try again.", snap.Error)
	assert.Equal(t, model.StatusNotStarted, snap.Selected.Status)
	assert.Equal(t, model.StatusNotStarted, snap.Tasks[0].Status)
}

func TestConfirm_DeclineKeepsInProgress(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.rows["t1"] = &model.UserTask{ID: "ut-t1", TaskID: "t1", Status: model.StatusInProgress}
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))
	require.NoError(t, b.Advance(context.Background()))

	link, err := b.Confirm(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, "mailto:proof@example.com?subject=Proof of Work: Intro&body=Paste your proof of work here.", link)
	assert.Zero(t, tasks.submits)
	snap := b.Snapshot()
	assert.False(t, snap.ConfirmOpen)
	assert.Equal(t, model.StatusInProgress, snap.Tasks[0].Status)
}

func TestConfirm_SentSubmits(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.rows["t1"] = &model.UserTask{ID: "ut-t1", TaskID: "t1", Status: model.StatusInProgress}
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))
	require.NoError(t, b.Advance(context.Background()))

	link, err := b.Confirm(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, link)

	snap := b.Snapshot()
	assert.Equal(t, 1, tasks.submits)
	assert.Equal(t, MsgSubmitted, snap.Success)
	assert.Equal(t, model.StatusPendingReview, snap.Tasks[0].Status)
	assert.Nil(t, snap.Selected)
	assert.Nil(t, snap.ToComplete)
}

func TestConfirm_SubmitFailure(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.rows["t1"] = &model.UserTask{ID: "ut-t1", TaskID: "t1", Status: model.StatusInProgress}
	tasks.submitErr = &apperror.AppError{Err: apperror.ErrConflict, Message: "task is completed, not in_progress"}
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))
	require.NoError(t, b.Advance(context.Background()))

	_, err := b.Confirm(context.Background(), true)
	require.ErrorIs(t, err, apperror.ErrConflict)
	assert.Equal(t, "Failed to submit task for approval: task is completed, not in_progress", b.Snapshot().Error)
	assert.Empty(t, b.Snapshot().Success)
}

func TestConfirm_NothingPending(t *testing.T) {
	b := newTestBoard(t, newFakeTasks(intro))

	_, err := b.Confirm(context.Background(), true)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRetry(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.rows["t1"] = &model.UserTask{ID: "ut-t1", TaskID: "t1", Status: model.StatusRejected, RejectionMessage: "redo"}
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))

	require.NoError(t, b.Retry(context.Background()))

	snap := b.Snapshot()
	assert.Equal(t, model.StatusInProgress, snap.Tasks[0].Status)
	assert.Empty(t, snap.Tasks[0].RejectionMessage)
	assert.Nil(t, snap.Selected)
}

func TestRetry_NotRejected(t *testing.T) {
	tasks := newFakeTasks(intro)
	tasks.rows["t1"] = &model.UserTask{ID: "ut-t1", TaskID: "t1", Status: model.StatusInProgress}
	b := newTestBoard(t, tasks)
	require.NoError(t, b.Select("t1"))

	require.Error(t, b.Retry(context.Background()))
	assert.Equal(t, "Failed to retry task: task is not rejected", b.Snapshot().Error)
}

func TestSelect_Unknown(t *testing.T) {
	b := newTestBoard(t, newFakeTasks(intro))
	assert.ErrorIs(t, b.Select("nope"), apperror.ErrNotFound)
}

// =========================================================================
// REGISTRY TESTS
// =========================================================================

func TestRegistry_ReusesAndEvicts(t *testing.T) {
	r, err := NewRegistry(2, newFakeTasks(), "", quietLogger())
	require.NoError(t, err)

	a1, fresh := r.Board("a")
	assert.True(t, fresh)
	a2, fresh := r.Board("a")
	assert.False(t, fresh)
	assert.Same(t, a1, a2)

	r.Board("b")
	r.Board("c") // evicts "a"
	assert.Equal(t, 2, r.Len())

	a3, fresh := r.Board("a")
	assert.True(t, fresh)
	assert.NotSame(t, a1, a3)

	r.Drop("a")
	assert.Equal(t, 1, r.Len())
}

func TestSequence(t *testing.T) {
	var s Sequence
	first := s.Next()
	assert.True(t, s.Current(first))
	second := s.Next()
	assert.False(t, s.Current(first))
	assert.True(t, s.Current(second))
}
