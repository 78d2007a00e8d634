package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aide/internal/logging"
	"aide/internal/memory"
	"aide/internal/types"
)

// TaskProfileExtraction is the queue task type for background profile
// extraction.
const TaskProfileExtraction = "profile_extraction"

const profileHistoryWindow = 10

const profileSystemPrompt = `You extract stable personal facts from conversation transcripts.
Return ONLY a JSON array of short fact strings about the user (preferences, relationships, routines, projects).
Return [] when the transcript contains no new durable facts. No prose.`

// ProfileExtractor turns recent conversation into durable profile memories.
// It runs off the queue so extraction never blocks a reply.
type ProfileExtractor struct {
	broker Inferrer
	memory *memory.Manager
	log    *zap.Logger
}

// NewProfileExtractor creates the extractor.
func NewProfileExtractor(broker Inferrer, mem *memory.Manager) *ProfileExtractor {
	return &ProfileExtractor{
		broker: broker,
		memory: mem,
		log:    logging.Named(logging.ComponentOrch),
	}
}

// QueueHandler adapts the extractor to the queue's handler contract. The
// task payload names the channel the exchange happened in.
func (p *ProfileExtractor) QueueHandler() func(ctx context.Context, task *types.QueueTask) error {
	return func(ctx context.Context, task *types.QueueTask) error {
		var channelID int64
		if v, ok := task.Payload["channel_id"].(float64); ok {
			channelID = int64(v)
		}
		return p.Extract(ctx, task.UserID, channelID)
	}
}

// Extract reads the user's recent turns in one channel, asks the broker for
// durable facts, and stores each one as a profile memory.
func (p *ProfileExtractor) Extract(ctx context.Context, userID, channelID int64) error {
	recent, err := p.memory.RecentContext(ctx, userID, channelID, profileHistoryWindow)
	if err != nil {
		return fmt.Errorf("fetch history: %w", err)
	}
	if len(recent) == 0 {
		return nil
	}

	var transcript strings.Builder
	for _, msg := range recent {
		fmt.Fprintf(&transcript, "%s: %s\n", types.NormalizeRole(msg.Role), msg.Content)
	}

	result, err := p.broker.Infer(ctx, types.InferenceRequest{
		Prompt:       transcript.String(),
		TaskType:     types.TaskProfileExtraction,
		SystemPrompt: profileSystemPrompt,
		MaxTokens:    512,
		Temperature:  0.2,
	})
	if err != nil {
		return fmt.Errorf("profile inference: %w", err)
	}

	facts, err := parseFacts(result.Content)
	if err != nil {
		// A malformed model reply is not worth a retry cycle.
		p.log.Warn("unparseable profile extraction reply", zap.Error(err))
		return nil
	}

	for _, fact := range facts {
		if err := p.memory.StoreMemory(ctx, userID, "profile", fact); err != nil {
			return fmt.Errorf("store profile fact: %w", err)
		}
	}
	if len(facts) > 0 {
		p.log.Info("profile facts extracted",
			zap.Int64("user", userID),
			zap.Int("count", len(facts)))
	}
	return nil
}

// parseFacts pulls the JSON array out of the model reply, tolerating
// markdown fences and surrounding prose.
func parseFacts(content string) ([]string, error) {
	s := strings.TrimSpace(content)
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in reply")
	}

	var raw []string
	if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid facts array: %w", err)
	}

	facts := raw[:0]
	for _, f := range raw {
		if f = strings.TrimSpace(f); f != "" {
			facts = append(facts, f)
		}
	}
	return facts, nil
}
