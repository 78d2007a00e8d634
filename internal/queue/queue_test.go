package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"aide/internal/config"
	"aide/internal/store"
	"aide/internal/types"
)

func newTestQueue(t *testing.T) (*Queue, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultQueueConfig()
	cfg.PollInterval = "10ms"
	cfg.BackoffBase = "1ms"
	return New(cfg, st), st
}

func TestHandlerRunsAndCompletes(t *testing.T) {
	q, st := newTestQueue(t)
	ctx := context.Background()

	var got *types.QueueTask
	q.RegisterHandler("ping", func(_ context.Context, task *types.QueueTask) error {
		got = task
		return nil
	})

	id, err := q.Enqueue(ctx, "ping", 1, map[string]any{"note": "hi"}, types.PriorityNormal, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	processed, err := q.ProcessOne(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !processed {
		t.Fatal("expected a task to be processed")
	}
	if got == nil || got.ID != id {
		t.Fatalf("handler saw %+v, want id %s", got, id)
	}
	if got.Payload["note"] != "hi" {
		t.Errorf("payload = %+v", got.Payload)
	}

	stored, err := st.GetQueueTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != types.TaskDone {
		t.Errorf("status = %s, want done", stored.Status)
	}
}

func TestFailedTaskRetriesWithBackoff(t *testing.T) {
	q, st := newTestQueue(t)
	ctx := context.Background()

	q.RegisterHandler("flaky", func(context.Context, *types.QueueTask) error {
		return errors.New("downstream unavailable")
	})

	id, err := q.Enqueue(ctx, "flaky", 1, nil, types.PriorityHigh, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := q.ProcessOne(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	task, err := st.GetQueueTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != types.TaskPending {
		t.Fatalf("status = %s, want pending for retry", task.Status)
	}
	if task.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", task.Attempts)
	}
	if task.ScheduledFor == nil || !task.ScheduledFor.After(time.Now().Add(-time.Second)) {
		t.Errorf("retry not deferred: %v", task.ScheduledFor)
	}
	if task.LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestTaskFailsPermanentlyAfterMaxAttempts(t *testing.T) {
	q, st := newTestQueue(t)
	ctx := context.Background()

	var calls atomic.Int32
	q.RegisterHandler("doomed", func(context.Context, *types.QueueTask) error {
		calls.Add(1)
		return errors.New("always fails")
	})

	id, err := q.Enqueue(ctx, "doomed", 1, nil, types.PriorityNormal, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Each retry reschedules with a tiny backoff; drive the claims directly.
	for i := 0; i < 3; i++ {
		time.Sleep(5 * time.Millisecond)
		if _, err := q.ProcessOne(ctx); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("handler ran %d times, want 3", got)
	}
	task, err := st.GetQueueTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != types.TaskFailed {
		t.Errorf("status = %s, want failed", task.Status)
	}
}

func TestUnknownTaskTypeFails(t *testing.T) {
	q, st := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "mystery", 1, nil, types.PriorityScheduled, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.ProcessOne(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	task, err := st.GetQueueTask(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Status != types.TaskFailed {
		t.Errorf("status = %s, want failed", task.Status)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := config.DefaultQueueConfig()
	q := &Queue{
		backoffBase: 5 * time.Second,
		backoffCap:  cfg.BackoffCapDuration(),
	}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{6, 320 * time.Second},
		{8, 10 * time.Minute},
		{40, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := q.backoff(tc.attempts); got != tc.want {
			t.Errorf("backoff(%d) = %s, want %s", tc.attempts, got, tc.want)
		}
	}
}

func TestConsumerLoopProcessesAndStops(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })

	q, st := newTestQueue(t)
	ctx := context.Background()

	done := make(chan string, 1)
	q.RegisterHandler("ping", func(_ context.Context, task *types.QueueTask) error {
		done <- task.ID
		return nil
	})

	q.Start(ctx)
	q.Start(ctx) // second call is a no-op
	defer q.Stop()

	id, err := q.Enqueue(ctx, "ping", 1, nil, types.PriorityCritical, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case got := <-done:
		if got != id {
			t.Errorf("processed %s, want %s", got, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never picked up the task")
	}

	q.Stop()
	q.Stop() // idempotent
	if q.Running() {
		t.Error("queue still reports running after Stop")
	}

	// Claims are transactional, so nothing should be stuck in running.
	depths, err := st.QueueDepths(ctx)
	if err != nil {
		t.Fatalf("depths: %v", err)
	}
	if depths[types.TaskRunning] != 0 {
		t.Errorf("running depth = %d, want 0", depths[types.TaskRunning])
	}
}
