package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
)

func TestTaskCRUD(t *testing.T) {
	pub := &recordingPublisher{}
	db := newTestDB(t, WithPublisher(pub))
	ctx := context.Background()

	due := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	task := &model.Task{Title: "Build a CLI", Description: "Use cobra", Points: 30, DueDate: &due}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}

	got, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if got.Title != "Build a CLI" || got.Points != 30 {
		t.Errorf("GetTask() = %+v", got)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}

	task.Points = 40
	task.DueDate = nil
	if err := db.UpdateTask(ctx, task); err != nil {
		t.Fatalf("UpdateTask() error = %v", err)
	}
	got, _ = db.GetTask(ctx, task.ID)
	if got.Points != 40 || got.DueDate != nil {
		t.Errorf("after update = %+v", got)
	}

	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if _, err := db.GetTask(ctx, task.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetTask() after delete error = %v, want ErrNotFound", err)
	}

	want := []string{"tasks:INSERT", "tasks:UPDATE", "tasks:DELETE"}
	if got := pub.tables(); len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestListTasks_EmptyIsNotNil(t *testing.T) {
	db := newTestDB(t)
	tasks, err := db.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if tasks == nil {
		t.Error("ListTasks() returned nil, want empty slice")
	}
}

func TestListTasks_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	createTestTask(t, db, "first", 10)
	createTestTask(t, db, "second", 10)

	tasks, err := db.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if len(tasks) != 2 || tasks[0].Title != "second" {
		t.Errorf("ListTasks() = %+v, want second first", tasks)
	}
}

func TestCreateTask_NegativePointsRejected(t *testing.T) {
	db := newTestDB(t)
	err := db.CreateTask(context.Background(), &model.Task{Title: "bad", Description: "d", Points: -1})
	if err == nil {
		t.Error("CreateTask() with negative points should fail the CHECK constraint")
	}
}

func TestUpdateDeleteTask_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.UpdateTask(ctx, &model.Task{ID: "missing", Title: "t", Description: "d"}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("UpdateTask() error = %v, want ErrNotFound", err)
	}
	if err := db.DeleteTask(ctx, "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteTask() error = %v, want ErrNotFound", err)
	}
}
