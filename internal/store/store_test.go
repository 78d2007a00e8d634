package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"aide/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestQueueClaimOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	enqueue := func(id string, p types.TaskPriority) {
		t.Helper()
		if err := s.EnqueueTask(ctx, &types.QueueTask{ID: id, TaskType: "noop", Priority: p}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	enqueue("low-1", types.PriorityScheduled)
	enqueue("normal-1", types.PriorityNormal)
	enqueue("crit-1", types.PriorityCritical)
	enqueue("crit-2", types.PriorityCritical)
	enqueue("high-1", types.PriorityHigh)

	want := []string{"crit-1", "crit-2", "high-1", "normal-1", "low-1"}
	for _, id := range want {
		task, err := s.ClaimNextTask(ctx, time.Now())
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if task.ID != id {
			t.Fatalf("claimed %s, want %s", task.ID, id)
		}
		if task.Status != types.TaskRunning {
			t.Errorf("claimed task status = %s, want running", task.Status)
		}
		if err := s.CompleteTask(ctx, task.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
	if _, err := s.ClaimNextTask(ctx, time.Now()); err != ErrQueueEmpty {
		t.Errorf("expected ErrQueueEmpty, got %v", err)
	}
}

// Same-priority tasks enqueued in one burst share a created_at timestamp, so
// FIFO must hold on insertion order, not on how the random IDs happen to
// sort.
func TestQueueSamePriorityFIFOWithGeneratedIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var inserted []string
	for i := 0; i < 20; i++ {
		id := uuid.NewString()
		if err := s.EnqueueTask(ctx, &types.QueueTask{
			ID: id, TaskType: "noop", Priority: types.PriorityNormal,
		}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
		inserted = append(inserted, id)
	}

	for i, want := range inserted {
		task, err := s.ClaimNextTask(ctx, time.Now())
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if task.ID != want {
			t.Fatalf("claim %d = %s, want %s", i, task.ID, want)
		}
		if err := s.CompleteTask(ctx, task.ID); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}
}

func TestQueueDeferredNotClaimableUntilDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	task := &types.QueueTask{ID: "later", TaskType: "noop", Priority: types.PriorityCritical, ScheduledFor: &future}
	if err := s.EnqueueTask(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := s.ClaimNextTask(ctx, time.Now()); err != ErrQueueEmpty {
		t.Fatalf("deferred task claimed early: %v", err)
	}
	claimed, err := s.ClaimNextTask(ctx, future.Add(time.Minute))
	if err != nil {
		t.Fatalf("claim after due: %v", err)
	}
	if claimed.ID != "later" {
		t.Errorf("claimed %s", claimed.ID)
	}
}

func TestQueueRescheduleIncrementsAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.EnqueueTask(ctx, &types.QueueTask{ID: "flaky", TaskType: "noop", Priority: types.PriorityNormal}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := s.ClaimNextTask(ctx, time.Now()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.RescheduleTask(ctx, "flaky", time.Now().Add(time.Second), "boom"); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	task, err := s.GetQueueTask(ctx, "flaky")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", task.Attempts)
	}
	if task.Status != types.TaskPending {
		t.Errorf("status = %s, want pending", task.Status)
	}
	if task.LastError != "boom" {
		t.Errorf("last_error = %q", task.LastError)
	}
}

func TestQueuePayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := map[string]any{"text": "hello", "count": float64(3)}
	if err := s.EnqueueTask(ctx, &types.QueueTask{
		ID: "p", TaskType: "send_message", UserID: 42,
		Payload: payload, Priority: types.PriorityHigh,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, err := s.ClaimNextTask(ctx, time.Now())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task.UserID != 42 {
		t.Errorf("user_id = %d", task.UserID)
	}
	if task.Payload["text"] != "hello" || task.Payload["count"] != float64(3) {
		t.Errorf("payload = %+v", task.Payload)
	}
}

func TestTrustRowRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row, err := s.GetTrustRow(ctx, 7, "reply_question")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if row.State.Level != types.TrustNew || row.State.TotalInteractions != 0 {
		t.Errorf("missing row should be zeroed at level new, got %+v", row.State)
	}

	row.State = types.TrustState{
		Level: types.TrustBuilding, Approvals: 8, Rejections: 1, Edits: 2, TotalInteractions: 11,
	}
	row.RecentOutcomes = []string{"approval", "approval", "rejection"}
	if err := s.SaveTrustRow(ctx, row); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetTrustRow(ctx, 7, "reply_question")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.State != row.State {
		t.Errorf("state = %+v, want %+v", got.State, row.State)
	}
	if len(got.RecentOutcomes) != 3 {
		t.Errorf("outcomes = %v", got.RecentOutcomes)
	}
}

func TestAssumptionNaturalKeyLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &types.Assumption{
		ID: "a1", Channel: "chan", Category: types.CategoryAudience,
		Statement: "Aged 18-24", Source: types.SourceInferred,
		Status: types.AssumptionActive, Confidence: 0.6,
		Evidence:       []string{"onboarding survey"},
		NextValidation: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := s.InsertAssumption(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := s.FindActiveAssumption(ctx, "chan", types.CategoryAudience, "Aged 18-24")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found == nil || found.ID != "a1" {
		t.Fatalf("found = %+v", found)
	}
	if found.Confidence != 0.6 || found.Source != types.SourceInferred {
		t.Errorf("round trip lost fields: %+v", found)
	}

	missing, err := s.FindActiveAssumption(ctx, "chan", types.CategoryTone, "Casual")
	if err != nil {
		t.Fatalf("find missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing key, got %+v", missing)
	}
}

func TestStaleAssumptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	for _, a := range []*types.Assumption{
		{ID: "stale", Channel: "c", Category: types.CategoryTone, Statement: "s1",
			Source: types.SourceInferred, Status: types.AssumptionActive, NextValidation: past},
		{ID: "fresh", Channel: "c", Category: types.CategoryTopic, Statement: "s2",
			Source: types.SourceInferred, Status: types.AssumptionActive, NextValidation: future},
	} {
		if err := s.InsertAssumption(ctx, a); err != nil {
			t.Fatalf("insert %s: %v", a.ID, err)
		}
	}

	stale, err := s.StaleAssumptions(ctx, time.Now())
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "stale" {
		t.Errorf("stale = %+v", stale)
	}
}

func TestSettingsFallbacks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetSetting(ctx, "scheduler", "interval", "300")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "300" {
		t.Errorf("fallback = %q", got)
	}

	if err := s.SetSetting(ctx, "scheduler", "interval", "120"); err != nil {
		t.Fatalf("set: %v", err)
	}
	n, err := s.GetSettingInt(ctx, "scheduler", "interval", 300)
	if err != nil {
		t.Fatalf("get int: %v", err)
	}
	if n != 120 {
		t.Errorf("interval = %d, want 120", n)
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Now().Add(-time.Minute)
	if err := s.InsertTask(ctx, &Task{ID: "t1", UserID: 1, Title: "ship release", DueAt: &due}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	overdue, err := s.OverdueTasks(ctx, 1, time.Now())
	if err != nil {
		t.Fatalf("overdue: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("overdue = %d, want 1", len(overdue))
	}

	done, err := s.CompleteUserTask(ctx, 1, "t1")
	if err != nil || !done {
		t.Fatalf("complete: done=%v err=%v", done, err)
	}
	// Replay is a no-op.
	done, err = s.CompleteUserTask(ctx, 1, "t1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if done {
		t.Error("second completion should report no change")
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vec := []float32{0.25, -1.5, 3.0, 0}
	if _, err := s.InsertMessage(ctx, &StoredMessage{
		UserID: 1, Role: "user", Content: "hello", Embedding: vec,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	msgs, err := s.EmbeddedMessages(ctx, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	got := msgs[0].Embedding
	if len(got) != len(vec) {
		t.Fatalf("dim = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("embedding[%d] = %f, want %f", i, got[i], vec[i])
		}
	}
}

func TestCostAggregations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	records := []types.CostRecord{
		{Timestamp: now, Provider: types.ProviderClaude, Model: "claude-sonnet-4-20250514",
			TokensIn: 100, TokensOut: 200, CostUSD: 0.05, TaskType: types.TaskCodeGeneration, Success: true},
		{Timestamp: now, Provider: types.ProviderOpenAI, Model: "gpt-4o",
			TokensIn: 50, TokensOut: 50, CostUSD: 0.02, TaskType: types.TaskSimpleQA, Success: true},
		{Timestamp: now, Provider: types.ProviderClaude, Model: "claude-sonnet-4-20250514",
			RateLimitHit: true, Success: false, Error: "rate limit exceeded (429)"},
	}
	for _, rec := range records {
		if err := s.InsertCostRecord(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	from, to := now.Add(-time.Hour), now.Add(time.Hour)
	total, err := s.TotalCost(ctx, from, to)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total < 0.069 || total > 0.071 {
		t.Errorf("total = %f, want 0.07", total)
	}

	byProvider, err := s.CostByProvider(ctx, from, to)
	if err != nil {
		t.Fatalf("by provider: %v", err)
	}
	if byProvider["claude"] < 0.049 || byProvider["openai"] < 0.019 {
		t.Errorf("by provider = %+v", byProvider)
	}

	hits, err := s.RateLimitCounts(ctx, from)
	if err != nil {
		t.Fatalf("rate limits: %v", err)
	}
	if hits["claude"] != 1 {
		t.Errorf("rate limit hits = %+v", hits)
	}
}

func TestModelRegistryHidesDeprecated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	models := []types.ModelInfo{
		{Name: "claude-sonnet-4-20250514", Provider: types.ProviderClaude, Tier: "balanced", ContextWindow: 200000},
		{Name: "claude-2.1", Provider: types.ProviderClaude, Tier: "legacy", ContextWindow: 100000, Deprecated: true},
	}
	for _, m := range models {
		if err := s.UpsertModel(ctx, m); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	visible, err := s.ListModels(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 1 || visible[0].Name != "claude-sonnet-4-20250514" {
		t.Errorf("visible = %+v", visible)
	}
	all, err := s.ListModels(ctx, true)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d models, want 2", len(all))
	}
}
