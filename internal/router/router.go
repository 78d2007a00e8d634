// Package router implements the two-stage intent router: a small local
// model classifies each message into the intent set, with a fallback model
// cascade and hardcoded safe defaults when both stages fail.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"aide/internal/broker"
	"aide/internal/config"
	"aide/internal/logging"
	"aide/internal/types"
)

const classifyMaxTokens = 200

// systemPrompt instructs the model to answer with strict JSON. The intent
// list is generated from the closed set so the two never drift.
var systemPrompt = fmt.Sprintf(`You are an intent classifier for a personal assistant.
Classify the user's message into exactly one intent from this list:
%s

Respond with ONLY a JSON object, no prose:
{"intent": "<intent>", "confidence": <0.0-1.0>, "reasoning": "<one short sentence>"}`,
	intentList())

func intentList() string {
	names := make([]string, len(types.AllIntents))
	for i, intent := range types.AllIntents {
		names[i] = "- " + string(intent)
	}
	return strings.Join(names, "\n")
}

// Router classifies inbound messages with a primary and a fallback local
// model.
type Router struct {
	primary  broker.Client
	fallback broker.Client
	log      *zap.Logger
}

// New builds a router over the configured backend. The gemini backend needs
// an API key; geminiKey is ignored for ollama. The fallback client is nil
// when no fallback model is configured.
func New(cfg config.RouterConfig, geminiKey string) *Router {
	build := func(model string) broker.Client {
		if cfg.Backend == "gemini" {
			return broker.NewGeminiClient(broker.GeminiConfig{
				APIKey: geminiKey, Model: model, Timeout: cfg.TimeoutDuration(),
			})
		}
		return broker.NewOllamaClient(broker.OllamaConfig{
			URL: cfg.URL, Model: model, Timeout: cfg.TimeoutDuration(),
		})
	}

	r := &Router{
		primary: build(cfg.PrimaryModel),
		log:     logging.Named(logging.ComponentRouter),
	}
	if cfg.FallbackModel != "" {
		r.fallback = build(cfg.FallbackModel)
	}
	return r
}

// NewWithClients wires explicit clients. Tests use this.
func NewWithClients(primary, fallback broker.Client) *Router {
	return &Router{primary: primary, fallback: fallback, log: zap.NewNop()}
}

// safeDefault is returned when the whole cascade fails on classified
// errors: route to the cheap path rather than guessing expensive.
func safeDefault() types.RoutingDecision {
	return types.RoutingDecision{
		Intent:     types.IntentSimpleQuery,
		Confidence: 0.5,
		Reasoning:  "fallback",
	}
}

// unexpectedDefault is returned on unclassified failures: route to the
// strongest model so a router bug cannot degrade hard requests.
func unexpectedDefault() types.RoutingDecision {
	return types.RoutingDecision{
		Intent:          types.IntentComplexTask,
		Confidence:      0.5,
		Reasoning:       "router failed",
		UseComplexModel: true,
	}
}

// Classify routes one message. Never returns an error: every failure mode
// maps to a usable default decision.
func (r *Router) Classify(ctx context.Context, text string) types.RoutingDecision {
	decision, err := r.classifyWith(ctx, r.primary, text)
	if err == nil {
		return decision
	}
	if !cascades(err) {
		r.log.Error("router failed unexpectedly", zap.Error(err))
		return unexpectedDefault()
	}
	r.log.Warn("primary classification failed", zap.Error(err))

	if r.fallback != nil {
		decision, err = r.classifyWith(ctx, r.fallback, text)
		if err == nil {
			return decision
		}
		if !cascades(err) {
			r.log.Error("router failed unexpectedly", zap.Error(err))
			return unexpectedDefault()
		}
		r.log.Warn("fallback classification failed", zap.Error(err))
	}
	return safeDefault()
}

// cascades reports whether a failure should move to the next model rather
// than the unexpected default.
func cascades(err error) bool {
	switch types.KindOf(err) {
	case types.ErrKindTransport, types.ErrKindRateLimit, types.ErrKindParse:
		return true
	}
	return false
}

func (r *Router) classifyWith(ctx context.Context, client broker.Client, text string) (types.RoutingDecision, error) {
	result, err := client.Call(ctx, types.InferenceRequest{
		Prompt:       text,
		SystemPrompt: systemPrompt,
		MaxTokens:    classifyMaxTokens,
		Temperature:  0.1,
	})
	if err != nil {
		return types.RoutingDecision{}, err
	}
	return parseDecision(result.Content)
}

// rawDecision is the wire shape the model is asked for. Confidence is a
// pointer so a missing field is distinguishable from zero.
type rawDecision struct {
	Intent     string   `json:"intent"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// parseDecision extracts and validates the model's JSON answer. Tolerates
// fenced code blocks and surrounding prose; rejects everything else with a
// parse error so the cascade engages.
func parseDecision(content string) (types.RoutingDecision, error) {
	payload := extractJSON(content)
	if payload == "" {
		return types.RoutingDecision{}, types.NewError(types.ErrKindParse, "no JSON object in response", nil)
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return types.RoutingDecision{}, types.NewError(types.ErrKindParse, "invalid JSON", err)
	}

	intent, ok := types.ParseIntent(raw.Intent)
	if !ok {
		return types.RoutingDecision{}, types.NewError(types.ErrKindParse,
			fmt.Sprintf("intent %q not in closed set", raw.Intent), nil)
	}

	confidence := 0.8
	if raw.Confidence != nil {
		confidence = *raw.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
	}

	return types.RoutingDecision{
		Intent:     intent,
		Confidence: confidence,
		Reasoning:  raw.Reasoning,
		// Derived, never trusted from the model.
		UseComplexModel: intent == types.IntentComplexTask && confidence >= 0.7,
	}, nil
}

// extractJSON pulls the first JSON object out of the model's reply,
// stripping markdown fences when present.
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		s = strings.TrimPrefix(s, "json")
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// GenerateSimpleResponse answers a trivial message directly with the
// router's small model. Used for SIMPLE_QUERY so cheap traffic never
// reaches the broker.
func (r *Router) GenerateSimpleResponse(ctx context.Context, text string) (string, error) {
	result, err := r.primary.Call(ctx, types.InferenceRequest{
		Prompt:       text,
		SystemPrompt: "You are a helpful personal assistant. Answer briefly.",
		MaxTokens:    512,
		Temperature:  0.7,
	})
	if err != nil {
		return "", fmt.Errorf("simple response failed: %w", err)
	}
	return result.Content, nil
}

// HealthCheck reports whether the primary model answers a trivial
// generation.
func (r *Router) HealthCheck(ctx context.Context) bool {
	return r.primary.HealthCheck(ctx) == nil
}

// Warmup issues a throwaway generation so the backend loads the model
// before the first real message.
func (r *Router) Warmup(ctx context.Context) {
	if err := r.primary.HealthCheck(ctx); err != nil {
		r.log.Warn("router warmup failed", zap.Error(err))
	}
}
