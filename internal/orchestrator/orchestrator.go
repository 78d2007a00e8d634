// Package orchestrator ties the synchronous message path together: rate
// limit, intent classification, dispatch to a skill or the broker, memory
// persistence, and background profile extraction.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aide/internal/logging"
	"aide/internal/memory"
	"aide/internal/skills"
	"aide/internal/types"
)

// Classifier routes a message to an intent and answers trivial queries
// locally.
type Classifier interface {
	Classify(ctx context.Context, text string) types.RoutingDecision
	GenerateSimpleResponse(ctx context.Context, text string) (string, error)
}

// Inferrer is the broker surface the orchestrator needs.
type Inferrer interface {
	Infer(ctx context.Context, req types.InferenceRequest) (*types.InferenceResult, error)
}

// SkillDispatcher routes a skill request by top-level intent. Both the
// in-process registry and the RPC client satisfy it.
type SkillDispatcher interface {
	Dispatch(ctx context.Context, intent types.MessageIntent, req types.SkillRequest) types.SkillResponse
}

// promptSource is the optional dispatcher capability of contributing
// system-prompt fragments. The RPC client does not implement it.
type promptSource interface {
	PromptFragments(ctx context.Context, userID int64) []string
}

// RateLimiter gates inbound messages per user.
type RateLimiter interface {
	Check(userID int64) (bool, string)
}

// TaskEnqueuer accepts background work. Satisfied by the priority queue.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, taskType string, userID int64, payload map[string]any, priority types.TaskPriority, scheduledFor *time.Time) (string, error)
}

// Orchestrator handles one inbound message end to end.
type Orchestrator struct {
	router  Classifier
	broker  Inferrer
	skills  SkillDispatcher
	memory  *memory.Manager
	limiter RateLimiter
	queue   TaskEnqueuer
	log     *zap.Logger
}

// New wires the orchestrator. The limiter and queue may be nil; a nil
// limiter admits everything and a nil queue skips background extraction.
func New(router Classifier, broker Inferrer, dispatcher SkillDispatcher, mem *memory.Manager, limiter RateLimiter, queue TaskEnqueuer) *Orchestrator {
	return &Orchestrator{
		router:  router,
		broker:  broker,
		skills:  dispatcher,
		memory:  mem,
		limiter: limiter,
		queue:   queue,
		log:     logging.Named(logging.ComponentOrch),
	}
}

// HandleMessage runs the full pipeline for one user message and returns the
// reply text. It never returns an empty reply on the happy path. Channel 0
// is the direct conversation; other channels keep separate histories.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, channelID int64, text string) (string, error) {
	if o.limiter != nil {
		if ok, reason := o.limiter.Check(userID); !ok {
			return reason, nil
		}
	}

	routing := o.router.Classify(ctx, text)
	o.log.Debug("message routed",
		zap.Int64("user", userID),
		zap.Int64("channel", channelID),
		zap.String("intent", string(routing.Intent)),
		zap.Float64("confidence", routing.Confidence))

	reply, err := o.dispatch(ctx, userID, channelID, text, routing)
	if err != nil {
		return "", err
	}

	// Simple queries and system commands are noise in long-term memory.
	if routing.Intent != types.IntentSimpleQuery && routing.Intent != types.IntentSystemCommand {
		o.persistExchange(ctx, userID, channelID, text, reply)
	}
	return reply, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, userID, channelID int64, text string, routing types.RoutingDecision) (string, error) {
	switch routing.Intent {
	case types.IntentSimpleQuery:
		reply, err := o.router.GenerateSimpleResponse(ctx, text)
		if err != nil {
			o.log.Warn("simple response failed", zap.Error(err))
			return "Sorry, I couldn't answer that right now.", nil
		}
		return reply, nil

	case types.IntentSystemCommand:
		return o.handleSystemCommand(text), nil

	case types.IntentMemoryStore:
		return o.handleMemoryStore(ctx, userID, text)

	case types.IntentMemoryRecall:
		return o.handleMemoryRecall(ctx, userID, text)

	case types.IntentComplexTask:
		return o.handleComplexTask(ctx, userID, channelID, text, routing)

	default:
		return o.handleSkillIntent(ctx, userID, text, routing.Intent), nil
	}
}

func (o *Orchestrator) handleSkillIntent(ctx context.Context, userID int64, text string, intent types.MessageIntent) string {
	if o.skills == nil {
		return "That capability isn't available right now."
	}
	resp := o.skills.Dispatch(ctx, intent, types.SkillRequest{
		ID:      uuid.NewString(),
		UserID:  userID,
		Intent:  skills.SubIntent(intent, text),
		Message: text,
	})
	if !resp.Success {
		o.log.Warn("skill dispatch failed",
			zap.String("intent", string(intent)),
			zap.String("error", resp.Error))
	}
	return resp.Message
}

// handleComplexTask fetches conversation history and relevant memories in
// parallel, then asks the broker with a memory-enriched system prompt.
func (o *Orchestrator) handleComplexTask(ctx context.Context, userID, channelID int64, text string, routing types.RoutingDecision) (string, error) {
	var (
		history  []types.Message
		memories []memory.ScoredMemory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recent, err := o.memory.RecentContext(gctx, userID, channelID, 0)
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		for _, msg := range recent {
			history = append(history, types.Message{Role: types.NormalizeRole(msg.Role), Content: msg.Content})
		}
		return nil
	})
	g.Go(func() error {
		found, err := o.memory.SearchMemories(gctx, userID, text, 0)
		if err != nil {
			// Degraded recall is acceptable; answer without memories.
			o.log.Warn("memory search failed", zap.Error(err))
			return nil
		}
		memories = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	result, err := o.broker.Infer(ctx, types.InferenceRequest{
		Prompt:       text,
		TaskType:     classifyTaskType(text, routing),
		SystemPrompt: o.systemPrompt(ctx, userID, memories),
		History:      history,
	})
	if err != nil {
		return "", fmt.Errorf("inference failed: %w", err)
	}
	return result.Content, nil
}

// systemPrompt assembles the assistant persona, relevant memories, and any
// skill-contributed fragments.
func (o *Orchestrator) systemPrompt(ctx context.Context, userID int64, memories []memory.ScoredMemory) string {
	var b strings.Builder
	b.WriteString("You are a capable personal assistant. Be concise and direct.")

	if len(memories) > 0 {
		b.WriteString("\n\nWhat you know about this user:")
		for _, m := range memories {
			b.WriteString("\n- " + m.Memory.Content)
		}
	}
	if ps, ok := o.skills.(promptSource); ok {
		for _, fragment := range ps.PromptFragments(ctx, userID) {
			b.WriteString("\n\n" + fragment)
		}
	}
	return b.String()
}

func (o *Orchestrator) handleMemoryStore(ctx context.Context, userID int64, text string) (string, error) {
	content := stripMemoryPrefix(text)
	if content == "" {
		return "What would you like me to remember?", nil
	}
	if err := o.memory.StoreMemory(ctx, userID, "user_note", content); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	return "Got it, I'll remember that.", nil
}

func (o *Orchestrator) handleMemoryRecall(ctx context.Context, userID int64, text string) (string, error) {
	hits, err := o.memory.SearchMemories(ctx, userID, stripRecallPrefix(text), 5)
	if err != nil {
		return "", fmt.Errorf("search memories: %w", err)
	}
	if len(hits) == 0 {
		return "I don't have anything stored about that yet.", nil
	}
	var b strings.Builder
	b.WriteString("Here's what I remember:")
	for _, h := range hits {
		b.WriteString("\n- " + h.Memory.Content)
	}
	return b.String(), nil
}

func (o *Orchestrator) handleSystemCommand(text string) string {
	switch {
	case strings.Contains(strings.ToLower(text), "help"):
		return "I can answer questions, manage tasks and calendar events, remember things for you, and watch your projects. Just ask in plain language."
	default:
		return "All systems running."
	}
}

// persistExchange stores both turns of the exchange, then schedules profile
// extraction. The user turn is written before extraction is queued so the
// extractor can observe it.
func (o *Orchestrator) persistExchange(ctx context.Context, userID, channelID int64, text, reply string) {
	if _, err := o.memory.StoreMessage(ctx, userID, channelID, "user", text); err != nil {
		o.log.Warn("failed to store user message", zap.Error(err))
		return
	}
	if _, err := o.memory.StoreMessage(ctx, userID, channelID, "assistant", reply); err != nil {
		o.log.Warn("failed to store assistant message", zap.Error(err))
	}

	if o.queue == nil {
		return
	}
	payload := map[string]any{"channel_id": channelID}
	if _, err := o.queue.Enqueue(ctx, TaskProfileExtraction, userID, payload, types.PriorityNormal, nil); err != nil {
		o.log.Warn("failed to enqueue profile extraction", zap.Error(err))
	}
}

// stripMemoryPrefix removes the "remember that" style lead-in so only the
// fact is stored.
func stripMemoryPrefix(text string) string {
	lower := strings.ToLower(text)
	for _, prefix := range []string{
		"remember that ",
		"remember ",
		"note that ",
		"don't forget that ",
		"don't forget ",
		"keep in mind that ",
	} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(text[len(prefix):])
		}
	}
	return strings.TrimSpace(text)
}

// stripRecallPrefix removes the question lead-in so the search query is just
// the subject.
func stripRecallPrefix(text string) string {
	lower := strings.ToLower(text)
	for _, prefix := range []string{
		"what do you know about ",
		"what do you remember about ",
		"do you remember ",
		"recall ",
	} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(strings.TrimRight(text[len(prefix):], "?"))
		}
	}
	return strings.TrimSpace(strings.TrimRight(text, "?"))
}

// classifyTaskType refines a complex task into the closed task-type set by
// keyword. The router only decides complex vs simple; this picks the
// provider-facing label.
func classifyTaskType(text string, routing types.RoutingDecision) types.TaskType {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "debug", "stack trace", "traceback", "fix this error", "why is this failing"):
		return types.TaskCodeDebugging
	case containsAny(lower, "review this", "review my", "code review"):
		return types.TaskCodeReview
	case containsAny(lower, "write a function", "write code", "implement", "script", "program", "refactor"):
		return types.TaskCodeGeneration
	case containsAny(lower, "summarize", "summary", "tl;dr"):
		return types.TaskSummarization
	case containsAny(lower, "calculate", "equation", "derivative", "integral", "probability"):
		return types.TaskMathAnalysis
	case containsAny(lower, "story", "poem", "lyrics", "screenplay"):
		return types.TaskCreativeWriting
	case containsAny(lower, "extract", "parse this", "pull out"):
		return types.TaskDataExtraction
	case routing.UseComplexModel:
		return types.TaskComplexReasoning
	default:
		return types.TaskConversation
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
