package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aide/internal/types"
)

// ErrQueueEmpty signals no claimable task.
var ErrQueueEmpty = errors.New("queue empty")

func marshalPayload(payload map[string]any) (string, error) {
	if payload == nil {
		return "{}", nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(data), nil
}

// EnqueueTask inserts a pending task.
func (s *Store) EnqueueTask(ctx context.Context, task *types.QueueTask) error {
	payload, err := marshalPayload(task.Payload)
	if err != nil {
		return err
	}
	var scheduledFor interface{}
	if task.ScheduledFor != nil {
		scheduledFor = task.ScheduledFor.UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue_tasks (id, task_type, user_id, payload, priority, status, scheduled_for)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.TaskType, task.UserID, payload, int(task.Priority),
		string(types.TaskPending), scheduledFor)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func scanQueueTask(row interface{ Scan(...any) error }) (*types.QueueTask, error) {
	var task types.QueueTask
	var priority int
	var status, payload string
	var scheduledFor sql.NullTime
	if err := row.Scan(&task.ID, &task.TaskType, &task.UserID, &payload,
		&priority, &status, &task.Attempts, &scheduledFor, &task.LastError, &task.CreatedAt); err != nil {
		return nil, err
	}
	task.Priority = types.TaskPriority(priority)
	task.Status = types.TaskStatus(status)
	if scheduledFor.Valid {
		t := scheduledFor.Time
		task.ScheduledFor = &t
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &task.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	return &task, nil
}

const queueTaskColumns = `id, task_type, user_id, payload, priority, status, attempts,
	scheduled_for, last_error, created_at`

// ClaimNextTask atomically claims the highest-priority due pending task and
// marks it running. Returns ErrQueueEmpty when nothing is due. The claim is
// a lease under the single-consumer discipline. Within a priority band, ties
// break on the insertion sequence so same-instant tasks dequeue FIFO.
func (s *Store) ClaimNextTask(ctx context.Context, now time.Time) (*types.QueueTask, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+queueTaskColumns+`
		FROM queue_tasks
		WHERE status = 'pending' AND (scheduled_for IS NULL OR scheduled_for <= ?)
		ORDER BY priority DESC, scheduled_for, seq
		LIMIT 1`, now.UTC())

	task, err := scanQueueTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("failed to select task: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE queue_tasks SET status = 'running', updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'pending'`, task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrQueueEmpty
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	task.Status = types.TaskRunning
	return task, nil
}

// CompleteTask marks a running task done.
func (s *Store) CompleteTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_tasks SET status = 'done', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

// RescheduleTask returns a failed attempt to pending with a backoff delay,
// recording the error and incrementing attempts.
func (s *Store) RescheduleTask(ctx context.Context, id string, retryAt time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_tasks
		SET status = 'pending', attempts = attempts + 1, scheduled_for = ?,
		    last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, retryAt.UTC(), lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	return nil
}

// FailTask marks a task permanently failed.
func (s *Store) FailTask(ctx context.Context, id string, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_tasks
		SET status = 'failed', attempts = attempts + 1, last_error = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to fail task: %w", err)
	}
	return nil
}

// QueueDepths returns task counts per status.
func (s *Store) QueueDepths(ctx context.Context) (map[types.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM queue_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue depths: %w", err)
	}
	defer rows.Close()

	out := make(map[types.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[types.TaskStatus(status)] = n
	}
	return out, rows.Err()
}

// GetQueueTask fetches one task by id.
func (s *Store) GetQueueTask(ctx context.Context, id string) (*types.QueueTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueTaskColumns+` FROM queue_tasks WHERE id = ?`, id)
	task, err := scanQueueTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %s not found", id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}
