package router

import (
	"context"
	"testing"

	"aide/internal/broker"
	"aide/internal/types"
)

// scriptedClient returns canned content or an error.
type scriptedClient struct {
	content string
	err     error
	calls   int
}

func (c *scriptedClient) Provider() types.Provider { return types.ProviderOllama }
func (c *scriptedClient) Model() string            { return "llama3.2:3b" }

func (c *scriptedClient) Call(_ context.Context, _ types.InferenceRequest) (broker.CallResult, error) {
	c.calls++
	if c.err != nil {
		return broker.CallResult{}, c.err
	}
	return broker.CallResult{Content: c.content, Model: "llama3.2:3b"}, nil
}

func (c *scriptedClient) Stream(_ context.Context, _ types.InferenceRequest) (<-chan types.StreamChunk, <-chan error) {
	chunks := make(chan types.StreamChunk)
	errs := make(chan error, 1)
	close(chunks)
	close(errs)
	return chunks, errs
}

func (c *scriptedClient) HealthCheck(_ context.Context) error { return c.err }

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantIntent  types.MessageIntent
		wantConf    float64
		wantComplex bool
		wantErr     bool
	}{
		{
			name:       "raw json",
			content:    `{"intent": "task_management", "confidence": 0.9, "reasoning": "asks to add a task"}`,
			wantIntent: types.IntentTaskManagement,
			wantConf:   0.9,
		},
		{
			name:       "fenced json block",
			content:    "```json\n{\"intent\": \"simple_query\", \"confidence\": 0.95, \"reasoning\": \"greeting\"}\n```",
			wantIntent: types.IntentSimpleQuery,
			wantConf:   0.95,
		},
		{
			name:       "bare fence",
			content:    "```\n{\"intent\": \"memory_recall\", \"confidence\": 0.8, \"reasoning\": \"\"}\n```",
			wantIntent: types.IntentMemoryRecall,
			wantConf:   0.8,
		},
		{
			name:       "prose around json",
			content:    `Here is my answer: {"intent": "calendar_query", "confidence": 0.7, "reasoning": "schedule"} hope that helps`,
			wantIntent: types.IntentCalendarQuery,
			wantConf:   0.7,
		},
		{
			name:       "uppercase intent",
			content:    `{"intent": "COMPLEX_TASK", "confidence": 0.9, "reasoning": ""}`,
			wantIntent: types.IntentComplexTask,
			wantConf:   0.9,
			wantComplex: true,
		},
		{
			name:       "missing confidence defaults",
			content:    `{"intent": "simple_query", "reasoning": "hi"}`,
			wantIntent: types.IntentSimpleQuery,
			wantConf:   0.8,
		},
		{
			name:       "confidence clamped high",
			content:    `{"intent": "simple_query", "confidence": 3.5, "reasoning": ""}`,
			wantIntent: types.IntentSimpleQuery,
			wantConf:   1.0,
		},
		{
			name:       "confidence clamped low",
			content:    `{"intent": "simple_query", "confidence": -0.2, "reasoning": ""}`,
			wantIntent: types.IntentSimpleQuery,
			wantConf:   0.0,
		},
		{
			name:    "invalid intent",
			content: `{"intent": "make_coffee", "confidence": 0.9, "reasoning": ""}`,
			wantErr: true,
		},
		{
			name:    "no json at all",
			content: "I think this is a task management request.",
			wantErr: true,
		},
		{
			name:    "malformed json",
			content: `{"intent": "simple_query", "confidence":`,
			wantErr: true,
		},
		{
			name:       "complex task below threshold stays cheap",
			content:    `{"intent": "complex_task", "confidence": 0.6, "reasoning": ""}`,
			wantIntent: types.IntentComplexTask,
			wantConf:   0.6,
			wantComplex: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDecision(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				if types.KindOf(err) != types.ErrKindParse {
					t.Errorf("error kind = %v, want parse", types.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDecision failed: %v", err)
			}
			if got.Intent != tt.wantIntent {
				t.Errorf("intent = %s, want %s", got.Intent, tt.wantIntent)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("confidence = %f, want %f", got.Confidence, tt.wantConf)
			}
			if got.UseComplexModel != tt.wantComplex {
				t.Errorf("use_complex_model = %v, want %v", got.UseComplexModel, tt.wantComplex)
			}
		})
	}
}

func TestClassifyUsesPrimary(t *testing.T) {
	primary := &scriptedClient{content: `{"intent": "task_management", "confidence": 0.9, "reasoning": "task"}`}
	fallback := &scriptedClient{content: `{"intent": "simple_query", "confidence": 0.9, "reasoning": ""}`}
	r := NewWithClients(primary, fallback)

	got := r.Classify(context.Background(), "add buy milk to my list")
	if got.Intent != types.IntentTaskManagement {
		t.Errorf("intent = %s", got.Intent)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback called %d times", fallback.calls)
	}
}

func TestClassifyCascadesToFallback(t *testing.T) {
	primary := &scriptedClient{err: types.NewError(types.ErrKindTransport, "connection refused", nil)}
	fallback := &scriptedClient{content: `{"intent": "memory_store", "confidence": 0.85, "reasoning": ""}`}
	r := NewWithClients(primary, fallback)

	got := r.Classify(context.Background(), "remember that I like tea")
	if got.Intent != types.IntentMemoryStore {
		t.Errorf("intent = %s, want memory_store", got.Intent)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestClassifyCascadesOnGarbageOutput(t *testing.T) {
	primary := &scriptedClient{content: "sorry, I cannot classify that"}
	fallback := &scriptedClient{content: `{"intent": "simple_query", "confidence": 0.9, "reasoning": ""}`}
	r := NewWithClients(primary, fallback)

	got := r.Classify(context.Background(), "hello")
	if got.Intent != types.IntentSimpleQuery {
		t.Errorf("intent = %s", got.Intent)
	}
	if fallback.calls != 1 {
		t.Errorf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestClassifySafeDefaultWhenCascadeExhausted(t *testing.T) {
	transportErr := types.NewError(types.ErrKindTransport, "timeout", nil)
	r := NewWithClients(&scriptedClient{err: transportErr}, &scriptedClient{err: transportErr})

	got := r.Classify(context.Background(), "hello")
	if got.Intent != types.IntentSimpleQuery || got.Confidence != 0.5 {
		t.Errorf("safe default = %+v", got)
	}
	if got.UseComplexModel {
		t.Error("safe default must not use the complex model")
	}
}

func TestClassifyUnexpectedFailureRoutesComplex(t *testing.T) {
	r := NewWithClients(&scriptedClient{err: types.NewError(types.ErrKindAuth, "forbidden", nil)}, nil)

	got := r.Classify(context.Background(), "hello")
	if got.Intent != types.IntentComplexTask {
		t.Errorf("intent = %s, want complex_task", got.Intent)
	}
	if !got.UseComplexModel {
		t.Error("unexpected failure should use the complex model")
	}
}

func TestClassifyNoFallbackConfigured(t *testing.T) {
	r := NewWithClients(&scriptedClient{err: types.NewError(types.ErrKindTransport, "down", nil)}, nil)

	got := r.Classify(context.Background(), "hello")
	if got.Intent != types.IntentSimpleQuery || got.Confidence != 0.5 {
		t.Errorf("decision = %+v, want safe default", got)
	}
}

func TestGenerateSimpleResponse(t *testing.T) {
	r := NewWithClients(&scriptedClient{content: "Hello! How can I help?"}, nil)

	got, err := r.GenerateSimpleResponse(context.Background(), "hi")
	if err != nil {
		t.Fatalf("GenerateSimpleResponse failed: %v", err)
	}
	if got != "Hello! How can I help?" {
		t.Errorf("response = %q", got)
	}
}
