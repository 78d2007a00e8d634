package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"aide/internal/capability"
	"aide/internal/config"
	"aide/internal/logging"
	"aide/internal/types"
)

// CostRecorder receives one record per call attempt, failures included.
type CostRecorder interface {
	Record(ctx context.Context, rec types.CostRecord)
}

// Broker routes inference requests to the cheapest capable provider and
// falls back across providers on failure.
type Broker struct {
	mu        sync.RWMutex
	clients   map[types.Provider]Client
	available map[types.Provider]bool

	recorder  CostRecorder
	log       *zap.Logger
	defaults  config.InferenceConfig
	retryOpts RetryOptions
	capOpts   capability.Options
}

// New constructs a broker with one client per configured provider.
func New(cfg *config.Config, recorder CostRecorder) *Broker {
	b := &Broker{
		clients:   make(map[types.Provider]Client),
		available: make(map[types.Provider]bool),
		recorder:  recorder,
		log:       logging.Named(logging.ComponentBroker),
		defaults:  cfg.Inference,
		retryOpts: RetryOptions{MaxRetries: 1, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Base: 2},
		capOpts:   capability.Options{LocalModel: cfg.Providers.Ollama.Model},
	}
	b.buildClients(cfg.Providers)
	return b
}

// buildClients constructs adapters for every configured provider.
// Callers must not hold the lock.
func (b *Broker) buildClients(cfg config.ProvidersConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clients = make(map[types.Provider]Client)
	b.available = make(map[types.Provider]bool)

	if cfg.Claude.Configured() {
		b.clients[types.ProviderClaude] = NewClaudeClient(ClaudeConfig{
			APIKey: cfg.Claude.APIKey, BaseURL: cfg.Claude.BaseURL,
			Model: cfg.Claude.Model, Timeout: cfg.Claude.TimeoutDuration(),
		})
		b.available[types.ProviderClaude] = true
	}
	if cfg.OpenAI.Configured() {
		b.clients[types.ProviderOpenAI] = NewOpenAIClient(OpenAIConfig{
			APIKey: cfg.OpenAI.APIKey, BaseURL: cfg.OpenAI.BaseURL,
			Model: cfg.OpenAI.Model, Timeout: cfg.OpenAI.TimeoutDuration(),
		})
		b.available[types.ProviderOpenAI] = true
	}
	if cfg.Gemini.Configured() {
		b.clients[types.ProviderGemini] = NewGeminiClient(GeminiConfig{
			APIKey: cfg.Gemini.APIKey, BaseURL: cfg.Gemini.BaseURL,
			Model: cfg.Gemini.Model, Timeout: cfg.Gemini.TimeoutDuration(),
		})
		b.available[types.ProviderGemini] = true
	}
	if cfg.Ollama.Configured() {
		b.clients[types.ProviderOllama] = NewOllamaClient(OllamaConfig{
			URL: cfg.Ollama.URL, Model: cfg.Ollama.Model, Timeout: cfg.Ollama.TimeoutDuration(),
		})
		b.available[types.ProviderOllama] = true
		b.capOpts.LocalModel = cfg.Ollama.Model
	}
}

// SetClient installs a client, marking its provider available. Tests use
// this to inject fakes.
func (b *Broker) SetClient(client Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client.Provider()] = client
	b.available[client.Provider()] = true
}

// RefreshKeys rebuilds the provider clients after a secret-store update.
// Providers dropped on auth failure become available again.
func (b *Broker) RefreshKeys(cfg config.ProvidersConfig) {
	b.buildClients(cfg)
	b.log.Info("provider clients rebuilt", zap.Int("available", len(b.snapshotAvailable())))
}

// AvailableProviders returns a snapshot of the currently usable providers.
func (b *Broker) AvailableProviders() []types.Provider {
	available := b.snapshotAvailable()
	out := make([]types.Provider, 0, len(available))
	for _, p := range types.AllProviders {
		if available[p] {
			out = append(out, p)
		}
	}
	return out
}

func (b *Broker) snapshotAvailable() map[types.Provider]bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snapshot := make(map[types.Provider]bool, len(b.available))
	for p, ok := range b.available {
		snapshot[p] = ok
	}
	return snapshot
}

func (b *Broker) client(p types.Provider) (Client, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.clients[p]
	return c, ok
}

// markUnavailable removes a provider until the next key refresh.
func (b *Broker) markUnavailable(p types.Provider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available[p] = false
	b.log.Warn("provider removed until key refresh", zap.String("provider", string(p)))
}

// applyDefaults fills missing generation parameters.
func (b *Broker) applyDefaults(req types.InferenceRequest) types.InferenceRequest {
	if req.MaxTokens <= 0 {
		req.MaxTokens = b.defaults.DefaultMaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = b.defaults.DefaultTemperature
	}
	return req
}

// Infer dispatches a request to the selected provider with cross-provider
// fallback, computes cost, and records the call.
func (b *Broker) Infer(ctx context.Context, req types.InferenceRequest) (*types.InferenceResult, error) {
	req = b.applyDefaults(req)

	available := b.snapshotAvailable()
	primary, err := capability.ProviderForTask(req.TaskType, available, b.capOpts)
	if err != nil {
		return nil, types.NewError(types.ErrKindCapacity, "no providers available", err)
	}

	result, err := b.callProvider(ctx, primary, req)
	if err == nil {
		return result, nil
	}
	b.log.Warn("primary provider failed",
		zap.String("provider", string(primary)),
		zap.String("task", string(req.TaskType)),
		zap.Error(err))

	return b.tryFallbacks(ctx, primary, req)
}

// tryFallbacks walks the fixed preference order, skipping the failed
// provider, until one succeeds or all are exhausted.
func (b *Broker) tryFallbacks(ctx context.Context, failed types.Provider, req types.InferenceRequest) (*types.InferenceResult, error) {
	available := b.snapshotAvailable()
	var lastErr error
	for _, candidate := range types.AllProviders {
		if candidate == failed || !available[candidate] {
			continue
		}
		result, err := b.callProvider(ctx, candidate, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		b.log.Warn("fallback provider failed", zap.String("provider", string(candidate)), zap.Error(err))
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no fallback providers available")
	}
	return nil, types.NewError(types.ErrKindCapacity, "all providers failed", lastErr)
}

// callProvider invokes one provider with the retry primitive, records the
// outcome, and assembles the result.
func (b *Broker) callProvider(ctx context.Context, provider types.Provider, req types.InferenceRequest) (*types.InferenceResult, error) {
	client, ok := b.client(provider)
	if !ok {
		return nil, fmt.Errorf("no client for provider %s", provider)
	}

	start := time.Now()
	var raw CallResult
	err := Retry(ctx, b.retryOpts, func() error {
		var callErr error
		raw, callErr = client.Call(ctx, req)
		return callErr
	})
	latency := time.Since(start).Milliseconds()

	if err != nil {
		kind := types.KindOf(err)
		b.record(ctx, types.CostRecord{
			Timestamp:    time.Now(),
			Provider:     provider,
			Model:        client.Model(),
			TaskType:     req.TaskType,
			LatencyMS:    latency,
			RateLimitHit: kind == types.ErrKindRateLimit,
			Success:      false,
			Error:        err.Error(),
		})
		if kind == types.ErrKindAuth {
			b.markUnavailable(provider)
		}
		return nil, err
	}

	cost, estimated := EstimateCost(provider, raw.Model, raw.InputTokens, raw.OutputTokens)
	b.record(ctx, types.CostRecord{
		Timestamp:     time.Now(),
		Provider:      provider,
		Model:         raw.Model,
		TokensIn:      raw.InputTokens,
		TokensOut:     raw.OutputTokens,
		CostUSD:       cost,
		CostEstimated: estimated,
		TaskType:      req.TaskType,
		LatencyMS:     latency,
		Success:       true,
	})

	return &types.InferenceResult{
		Content:          raw.Content,
		Provider:         provider,
		TaskType:         req.TaskType,
		Model:            raw.Model,
		InputTokens:      raw.InputTokens,
		OutputTokens:     raw.OutputTokens,
		LatencyMS:        latency,
		EstimatedCostUSD: cost,
	}, nil
}

func (b *Broker) record(ctx context.Context, rec types.CostRecord) {
	if b.recorder != nil {
		b.recorder.Record(ctx, rec)
	}
}

// InferStream dispatches a streaming request. On mid-stream failure the
// stream is abandoned, the non-streaming fallback path runs, and the
// fallback result is re-chunked into pseudo-tokens before the done chunk.
func (b *Broker) InferStream(ctx context.Context, req types.InferenceRequest) (<-chan types.StreamChunk, error) {
	req = b.applyDefaults(req)

	available := b.snapshotAvailable()
	primary, err := capability.ProviderForTask(req.TaskType, available, b.capOpts)
	if err != nil {
		return nil, types.NewError(types.ErrKindCapacity, "no providers available", err)
	}
	client, ok := b.client(primary)
	if !ok {
		return nil, fmt.Errorf("no client for provider %s", primary)
	}

	out := make(chan types.StreamChunk, 64)
	go func() {
		defer close(out)

		start := time.Now()
		chunks, errs := client.Stream(ctx, req)
		failed := false

		for chunk := range chunks {
			if chunk.Done {
				cost, estimated := EstimateCost(primary, chunk.Model, chunk.InputTokens, chunk.OutputTokens)
				b.record(ctx, types.CostRecord{
					Timestamp:     time.Now(),
					Provider:      primary,
					Model:         chunk.Model,
					TokensIn:      chunk.InputTokens,
					TokensOut:     chunk.OutputTokens,
					CostUSD:       cost,
					CostEstimated: estimated,
					TaskType:      req.TaskType,
					LatencyMS:     time.Since(start).Milliseconds(),
					Success:       true,
				})
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				return
			}
		}

		// Content channel closed without a done chunk: mid-stream failure.
		if streamErr := <-errs; streamErr != nil {
			failed = true
			kind := types.KindOf(streamErr)
			b.record(ctx, types.CostRecord{
				Timestamp:    time.Now(),
				Provider:     primary,
				Model:        client.Model(),
				TaskType:     req.TaskType,
				LatencyMS:    time.Since(start).Milliseconds(),
				RateLimitHit: kind == types.ErrKindRateLimit,
				Success:      false,
				Error:        streamErr.Error(),
			})
			if kind == types.ErrKindAuth {
				b.markUnavailable(primary)
			}
			b.log.Warn("stream failed, falling back",
				zap.String("provider", string(primary)), zap.Error(streamErr))
		}
		if !failed {
			return
		}

		result, err := b.tryFallbacks(ctx, primary, req)
		if err != nil {
			b.log.Error("stream fallback exhausted", zap.Error(err))
			return
		}
		if !emitPseudoTokens(ctx, out, result.Content) {
			return
		}
		select {
		case out <- types.StreamChunk{
			Done:         true,
			Model:        result.Model,
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			Provider:     result.Provider,
		}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// HealthCheck reports whether a provider answers a trivial generation.
func (b *Broker) HealthCheck(ctx context.Context, provider types.Provider) bool {
	client, ok := b.client(provider)
	if !ok {
		return false
	}
	return client.HealthCheck(ctx) == nil
}
