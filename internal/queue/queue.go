// Package queue implements the persistent priority queue consumer: four
// priority bands over sqlite, single-consumer claims, and retry with
// exponential backoff.
package queue

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aide/internal/config"
	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/types"
)

// Handler executes one claimed task. A returned error triggers retry with
// backoff until max attempts.
type Handler func(ctx context.Context, task *types.QueueTask) error

// Queue is the persistent work queue plus its single consumer loop.
type Queue struct {
	store    *store.Store
	handlers map[string]Handler
	log      *zap.Logger

	maxAttempts  int
	backoffBase  time.Duration
	backoffCap   time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// New creates a queue over the store.
func New(cfg config.QueueConfig, st *store.Store) *Queue {
	return &Queue{
		store:        st,
		handlers:     make(map[string]Handler),
		log:          logging.Named(logging.ComponentQueue),
		maxAttempts:  cfg.MaxAttempts,
		backoffBase:  cfg.BackoffBaseDuration(),
		backoffCap:   cfg.BackoffCapDuration(),
		pollInterval: cfg.PollIntervalDuration(),
	}
}

// RegisterHandler binds a task type to its handler. Must be called before
// Start.
func (q *Queue) RegisterHandler(taskType string, h Handler) {
	q.handlers[taskType] = h
}

// Enqueue persists a new task and returns its id. scheduledFor nil means
// immediately due.
func (q *Queue) Enqueue(ctx context.Context, taskType string, userID int64, payload map[string]any, priority types.TaskPriority, scheduledFor *time.Time) (string, error) {
	task := &types.QueueTask{
		ID:           uuid.NewString(),
		TaskType:     taskType,
		UserID:       userID,
		Payload:      payload,
		Priority:     priority,
		ScheduledFor: scheduledFor,
	}
	if err := q.store.EnqueueTask(ctx, task); err != nil {
		return "", err
	}
	q.log.Debug("task enqueued",
		zap.String("id", task.ID),
		zap.String("type", taskType),
		zap.String("priority", priority.String()))
	return task.ID, nil
}

// Start launches the consumer loop. Idempotent.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	group, loopCtx := errgroup.WithContext(loopCtx)
	q.cancel = cancel
	q.group = group
	q.running = true

	group.Go(func() error {
		q.consumeLoop(loopCtx)
		return nil
	})
	q.log.Info("queue consumer started", zap.Duration("poll_interval", q.pollInterval))
}

// Stop cancels the consumer and waits for the in-flight task to finish.
// Idempotent.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	cancel, group := q.cancel, q.group
	q.running = false
	q.mu.Unlock()

	cancel()
	_ = group.Wait()
	q.log.Info("queue consumer stopped")
}

// Running reports whether the consumer loop is live.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) consumeLoop(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		// Drain everything due before sleeping again.
		for {
			if ctx.Err() != nil {
				return
			}
			processed, err := q.ProcessOne(ctx)
			if err != nil {
				q.log.Error("queue processing error", zap.Error(err))
				break
			}
			if !processed {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOne claims and executes at most one due task. Returns false when
// the queue had nothing due. Exported for tests and the CLI drain command.
func (q *Queue) ProcessOne(ctx context.Context) (bool, error) {
	task, err := q.store.ClaimNextTask(ctx, time.Now())
	if err == store.ErrQueueEmpty {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	handler, ok := q.handlers[task.TaskType]
	if !ok {
		q.log.Warn("no handler for task type", zap.String("type", task.TaskType))
		return true, q.store.FailTask(ctx, task.ID, fmt.Sprintf("no handler for task type %q", task.TaskType))
	}

	if err := handler(ctx, task); err != nil {
		return true, q.handleFailure(ctx, task, err)
	}
	return true, q.store.CompleteTask(ctx, task.ID)
}

func (q *Queue) handleFailure(ctx context.Context, task *types.QueueTask, taskErr error) error {
	// Attempts counts completed tries; this failure is attempt N+1.
	attempt := task.Attempts + 1
	if attempt >= q.maxAttempts {
		q.log.Warn("task failed permanently",
			zap.String("id", task.ID),
			zap.String("type", task.TaskType),
			zap.Int("attempts", attempt),
			zap.Error(taskErr))
		return q.store.FailTask(ctx, task.ID, taskErr.Error())
	}

	delay := q.backoff(task.Attempts)
	q.log.Debug("task retry scheduled",
		zap.String("id", task.ID),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	return q.store.RescheduleTask(ctx, task.ID, time.Now().Add(delay), taskErr.Error())
}

// backoff is base * 2^attempts, capped.
func (q *Queue) backoff(attempts int) time.Duration {
	delay := time.Duration(float64(q.backoffBase) * math.Pow(2, float64(attempts)))
	if delay > q.backoffCap || delay < 0 {
		return q.backoffCap
	}
	return delay
}

// Depths returns task counts per status.
func (q *Queue) Depths(ctx context.Context) (map[types.TaskStatus]int, error) {
	return q.store.QueueDepths(ctx)
}
