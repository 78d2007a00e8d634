package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Task is one user to-do item managed by the task skill.
type Task struct {
	ID          string
	UserID      int64
	Title       string
	Notes       string
	DueAt       *time.Time
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// InsertTask persists a new task.
func (s *Store) InsertTask(ctx context.Context, t *Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, user_id, title, notes, due_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Notes, nullableTime(t.DueAt))
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// CompleteUserTask marks a task complete. Completing an already-complete
// task is a no-op, which keeps skill replays idempotent.
func (s *Store) CompleteUserTask(ctx context.Context, userID int64, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET completed = 1, completed_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ? AND completed = 0`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var dueAt, completedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Notes, &dueAt,
		&t.Completed, &completedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	if dueAt.Valid {
		v := dueAt.Time
		t.DueAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	return &t, nil
}

func (s *Store) queryTasks(ctx context.Context, where string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, notes, due_at, completed, completed_at, created_at
		FROM tasks WHERE `+where+`
		ORDER BY due_at IS NULL, due_at, created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// OpenTasks lists a user's incomplete tasks, soonest due first.
func (s *Store) OpenTasks(ctx context.Context, userID int64) ([]*Task, error) {
	return s.queryTasks(ctx, `user_id = ? AND completed = 0`, userID)
}

// OverdueTasks lists incomplete tasks past their due time for a user.
func (s *Store) OverdueTasks(ctx context.Context, userID int64, now time.Time) ([]*Task, error) {
	return s.queryTasks(ctx, `user_id = ? AND completed = 0 AND due_at IS NOT NULL AND due_at < ?`,
		userID, now.UTC())
}

// FindTaskByTitle resolves a user's open task by exact title. The task
// skill uses this for idempotent creation.
func (s *Store) FindTaskByTitle(ctx context.Context, userID int64, title string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, notes, due_at, completed, completed_at, created_at
		FROM tasks WHERE user_id = ? AND title = ? AND completed = 0 LIMIT 1`,
		userID, title)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return t, nil
}
