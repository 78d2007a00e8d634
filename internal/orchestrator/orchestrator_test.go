package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"aide/internal/config"
	"aide/internal/memory"
	"aide/internal/ratelimit"
	"aide/internal/skills"
	"aide/internal/store"
	"aide/internal/types"
)

type scriptedRouter struct {
	decision types.RoutingDecision
	simple   string
	calls    int
}

func (r *scriptedRouter) Classify(context.Context, string) types.RoutingDecision {
	r.calls++
	return r.decision
}

func (r *scriptedRouter) GenerateSimpleResponse(context.Context, string) (string, error) {
	return r.simple, nil
}

type cannedBroker struct {
	content string
	last    types.InferenceRequest
	calls   int
}

func (b *cannedBroker) Infer(_ context.Context, req types.InferenceRequest) (*types.InferenceResult, error) {
	b.calls++
	b.last = req
	return &types.InferenceResult{Content: b.content, Provider: types.ProviderClaude}, nil
}

type recordingQueue struct {
	taskTypes []string
	payloads  []map[string]any
}

func (q *recordingQueue) Enqueue(_ context.Context, taskType string, _ int64, payload map[string]any, _ types.TaskPriority, _ *time.Time) (string, error) {
	q.taskTypes = append(q.taskTypes, taskType)
	q.payloads = append(q.payloads, payload)
	return "task-1", nil
}

type fixedEngine struct{}

func (fixedEngine) Embed(context.Context, string) ([]float32, error) { return []float32{0, 0, 1}, nil }
func (e fixedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, texts[i])
	}
	return out, nil
}
func (fixedEngine) Dimensions() int { return 3 }
func (fixedEngine) Name() string    { return "fixed" }

type fixture struct {
	orch   *Orchestrator
	router *scriptedRouter
	broker *cannedBroker
	queue  *recordingQueue
	store  *store.Store
	memory *memory.Manager
}

func newFixture(t *testing.T, decision types.RoutingDecision) *fixture {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mem := memory.NewManager(config.DefaultMemoryConfig(), st, fixedEngine{})

	registry := skills.NewRegistry()
	registry.Register(context.Background(), skills.NewTaskManager(st))

	router := &scriptedRouter{decision: decision, simple: "Hi there!"}
	broker := &cannedBroker{content: "Here is a detailed answer."}
	queue := &recordingQueue{}

	return &fixture{
		orch:   New(router, broker, registry, mem, nil, queue),
		router: router,
		broker: broker,
		queue:  queue,
		store:  st,
		memory: mem,
	}
}

func TestSimpleQueryNotPersisted(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{Intent: types.IntentSimpleQuery, Confidence: 0.95})
	ctx := context.Background()

	reply, err := f.orch.HandleMessage(ctx, 1, 0, "Hello!")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply == "" {
		t.Fatal("reply is empty")
	}
	if f.broker.calls != 0 {
		t.Error("simple query reached the broker")
	}

	msgs, err := f.store.RecentMessages(ctx, 1, 0, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("persisted %d messages, want 0", len(msgs))
	}
	if len(f.queue.taskTypes) != 0 {
		t.Errorf("enqueued %v, want nothing", f.queue.taskTypes)
	}
}

func TestComplexTaskPersistsAndExtracts(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{
		Intent: types.IntentComplexTask, Confidence: 0.9, UseComplexModel: true,
	})
	ctx := context.Background()

	reply, err := f.orch.HandleMessage(ctx, 1, 7, "Write a Python script to scrape a site")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply != "Here is a detailed answer." {
		t.Errorf("reply = %q", reply)
	}
	if f.broker.last.TaskType != types.TaskCodeGeneration {
		t.Errorf("task type = %s", f.broker.last.TaskType)
	}

	msgs, err := f.store.RecentMessages(ctx, 1, 7, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].ChannelID != 7 {
		t.Errorf("channel = %d, want 7", msgs[0].ChannelID)
	}
	if other, _ := f.store.RecentMessages(ctx, 1, 0, 10); len(other) != 0 {
		t.Errorf("channel 0 has %d messages, want 0", len(other))
	}
	if len(f.queue.taskTypes) != 1 || f.queue.taskTypes[0] != TaskProfileExtraction {
		t.Errorf("enqueued = %v", f.queue.taskTypes)
	}
	if ch, _ := f.queue.payloads[0]["channel_id"].(int64); ch != 7 {
		t.Errorf("payload channel = %v, want 7", f.queue.payloads[0]["channel_id"])
	}
}

func TestComplexTaskCarriesHistoryAndMemories(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{Intent: types.IntentComplexTask, Confidence: 0.9})
	ctx := context.Background()

	if _, err := f.memory.StoreMessage(ctx, 1, 0, "user", "earlier question"); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	if err := f.memory.StoreMemory(ctx, 1, "profile", "prefers short answers"); err != nil {
		t.Fatalf("seed memory: %v", err)
	}

	if _, err := f.orch.HandleMessage(ctx, 1, 0, "Plan my week in detail"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.broker.last.History) == 0 {
		t.Error("history not passed to broker")
	}
	if !strings.Contains(f.broker.last.SystemPrompt, "prefers short answers") {
		t.Errorf("system prompt missing memory: %q", f.broker.last.SystemPrompt)
	}
}

func TestSkillIntentDispatch(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{Intent: types.IntentTaskManagement, Confidence: 0.9})

	reply, err := f.orch.HandleMessage(context.Background(), 1, 0, "remind me to call the bank")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !strings.Contains(strings.ToLower(reply), "call the bank") {
		t.Errorf("reply = %q", reply)
	}
	if f.broker.calls != 0 {
		t.Error("skill intent reached the broker")
	}
}

func TestMemoryStoreAndRecall(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{Intent: types.IntentMemoryStore, Confidence: 0.9})
	ctx := context.Background()

	reply, err := f.orch.HandleMessage(ctx, 1, 0, "remember that my sister's birthday is in June")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.Contains(reply, "remember") {
		t.Errorf("reply = %q", reply)
	}

	f.router.decision = types.RoutingDecision{Intent: types.IntentMemoryRecall, Confidence: 0.9}
	reply, err = f.orch.HandleMessage(ctx, 1, 0, "what do you know about my sister?")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if !strings.Contains(reply, "birthday is in June") {
		t.Errorf("recall reply = %q", reply)
	}
}

func TestRateLimitedMessageSkipsPipeline(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{Intent: types.IntentSimpleQuery, Confidence: 0.9})
	f.orch.limiter = ratelimit.New(config.RateLimitConfig{WindowSeconds: 60, MaxRequests: 1})
	ctx := context.Background()

	if _, err := f.orch.HandleMessage(ctx, 1, 0, "Hello!"); err != nil {
		t.Fatalf("first: %v", err)
	}
	reply, err := f.orch.HandleMessage(ctx, 1, 0, "Hello again!")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !strings.Contains(reply, "wait") {
		t.Errorf("reply = %q", reply)
	}
	if f.router.calls != 1 {
		t.Errorf("router called %d times, want 1", f.router.calls)
	}
}

func TestClassifyTaskType(t *testing.T) {
	tests := []struct {
		text    string
		complex bool
		want    types.TaskType
	}{
		{"debug this stack trace for me", false, types.TaskCodeDebugging},
		{"review this pull request", false, types.TaskCodeReview},
		{"implement a linked list", false, types.TaskCodeGeneration},
		{"summarize this article", false, types.TaskSummarization},
		{"calculate the derivative of x^2", false, types.TaskMathAnalysis},
		{"write me a poem about rain", false, types.TaskCreativeWriting},
		{"extract the names from this text", false, types.TaskDataExtraction},
		{"think through this strategy question", true, types.TaskComplexReasoning},
		{"tell me about your day", false, types.TaskConversation},
	}
	for _, tt := range tests {
		got := classifyTaskType(tt.text, types.RoutingDecision{UseComplexModel: tt.complex})
		if got != tt.want {
			t.Errorf("classifyTaskType(%q) = %s, want %s", tt.text, got, tt.want)
		}
	}
}

func TestStripPrefixes(t *testing.T) {
	if got := stripMemoryPrefix("Remember that I hate cilantro"); got != "I hate cilantro" {
		t.Errorf("memory prefix: %q", got)
	}
	if got := stripRecallPrefix("What do you know about my job?"); got != "my job" {
		t.Errorf("recall prefix: %q", got)
	}
}

func TestProfileExtraction(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{Intent: types.IntentComplexTask, Confidence: 0.9})
	ctx := context.Background()
	f.broker.content = `["works as a nurse", "lives in Lisbon"]`

	if _, err := f.memory.StoreMessage(ctx, 1, 0, "user", "I just got home from my nursing shift here in Lisbon"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	extractor := NewProfileExtractor(f.broker, f.memory)
	if err := extractor.Extract(ctx, 1, 0); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if f.broker.last.TaskType != types.TaskProfileExtraction {
		t.Errorf("task type = %s", f.broker.last.TaskType)
	}

	facts, err := f.memory.Memories(ctx, 1, "profile")
	if err != nil {
		t.Fatalf("memories: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("facts = %d, want 2", len(facts))
	}
}

func TestProfileQueueHandlerReadsChannel(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{Intent: types.IntentComplexTask, Confidence: 0.9})
	ctx := context.Background()
	f.broker.content = `[]`

	// History lives only in channel 3; a handler stuck on channel 0 would
	// find nothing and skip inference.
	if _, err := f.memory.StoreMessage(ctx, 1, 3, "user", "I moved to Porto last month"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	handler := NewProfileExtractor(f.broker, f.memory).QueueHandler()
	task := &types.QueueTask{
		ID:       "task-1",
		TaskType: TaskProfileExtraction,
		UserID:   1,
		Payload:  map[string]any{"channel_id": float64(3)},
	}
	if err := handler(ctx, task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if f.broker.calls != 1 {
		t.Errorf("broker calls = %d, want 1", f.broker.calls)
	}
}

func TestProfileExtractionToleratesBadReply(t *testing.T) {
	f := newFixture(t, types.RoutingDecision{Intent: types.IntentComplexTask, Confidence: 0.9})
	ctx := context.Background()
	f.broker.content = "I could not find any facts."

	if _, err := f.memory.StoreMessage(ctx, 1, 0, "user", "hello"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	extractor := NewProfileExtractor(f.broker, f.memory)
	if err := extractor.Extract(ctx, 1, 0); err != nil {
		t.Errorf("extract should swallow parse failures, got %v", err)
	}
}
