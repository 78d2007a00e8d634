package costs

import (
	"context"

	"aide/internal/store"
	"aide/internal/types"
)

// knownModels seeds the registry with the models the broker prices.
var knownModels = []types.ModelInfo{
	{Name: "claude-opus-4", Provider: types.ProviderClaude, Tier: "frontier", ContextWindow: 200000},
	{Name: "claude-sonnet-4-20250514", Provider: types.ProviderClaude, Tier: "balanced", ContextWindow: 200000},
	{Name: "claude-3-5-haiku-20241022", Provider: types.ProviderClaude, Tier: "fast", ContextWindow: 200000},
	{Name: "gpt-4o", Provider: types.ProviderOpenAI, Tier: "balanced", ContextWindow: 128000},
	{Name: "gpt-4o-mini", Provider: types.ProviderOpenAI, Tier: "fast", ContextWindow: 128000},
	{Name: "o1", Provider: types.ProviderOpenAI, Tier: "reasoning", ContextWindow: 200000},
	{Name: "o3-mini", Provider: types.ProviderOpenAI, Tier: "reasoning", ContextWindow: 200000},
	{Name: "gemini-2.0-flash", Provider: types.ProviderGemini, Tier: "fast", ContextWindow: 1000000},
	{Name: "gemini-1.5-pro", Provider: types.ProviderGemini, Tier: "balanced", ContextWindow: 2000000, Deprecated: true},
	{Name: "gemini-1.5-flash", Provider: types.ProviderGemini, Tier: "fast", ContextWindow: 1000000, Deprecated: true},
	{Name: "llama3.2:3b", Provider: types.ProviderOllama, Tier: "local-small", ContextWindow: 128000},
	{Name: "llama3.1:8b", Provider: types.ProviderOllama, Tier: "local-medium", ContextWindow: 128000},
	{Name: "llama3.1:70b", Provider: types.ProviderOllama, Tier: "local-large", ContextWindow: 128000},
}

// SeedModelRegistry upserts the known model set. Run at startup.
func SeedModelRegistry(ctx context.Context, st *store.Store) error {
	for _, m := range knownModels {
		if err := st.UpsertModel(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Models lists registered models; deprecated models are hidden unless
// requested.
func (t *Tracker) Models(ctx context.Context, includeDeprecated bool) ([]types.ModelInfo, error) {
	return t.store.ListModels(ctx, includeDeprecated)
}
