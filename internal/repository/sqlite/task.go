package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/mentorflow/internal/apperror"
	"github.com/sakif/mentorflow/internal/model"
	"github.com/sakif/mentorflow/internal/realtime"
	"github.com/sakif/mentorflow/internal/repository"
)

var _ repository.TaskRepository = (*DB)(nil)

const taskColumns = `id, title, description, points, due_date, tasks_url, created_at`

// ListTasks returns every template, newest first.
func (db *DB) ListTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	// Initialise as empty slice, not nil: JSON encodes nil as null.
	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating task rows: %w", err)
	}
	return tasks, nil
}

// GetTask returns one template or apperror.ErrNotFound.
func (db *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanTask(db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: getting task %s: %w", id, err)
	}
	return t, nil
}

// CreateTask inserts a template, assigning ID and CreatedAt.
func (db *DB) CreateTask(ctx context.Context, task *model.Task) error {
	task.ID = xid.New().String()
	task.CreatedAt = db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Points, nullTime(task.DueDate), task.TasksURL, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting task: %w", err)
	}

	db.publish("tasks", realtime.EventInsert, "", *task)
	return nil
}

// UpdateTask rewrites the editable fields of a template.
func (db *DB) UpdateTask(ctx context.Context, task *model.Task) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, points = ?, due_date = ?, tasks_url = ?
		 WHERE id = ?`,
		task.Title, task.Description, task.Points, nullTime(task.DueDate), task.TasksURL, task.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating task %s: %w", task.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("task", task.ID)
	}

	db.publish("tasks", realtime.EventUpdate, "", *task)
	return nil
}

// DeleteTask removes a template. Progress rows pointing at it stay.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting task %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("task", id)
	}

	db.publish("tasks", realtime.EventDelete, "", model.Task{ID: id})
	return nil
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Points, &t.DueDate, &t.TasksURL, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// nullTime turns an optional time into a driver value (NULL when nil).
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
