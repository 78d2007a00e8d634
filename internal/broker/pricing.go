package broker

import (
	"strings"

	"aide/internal/types"
)

// modelRates is the per-million-token pricing table. Model names match by
// prefix so dated releases (claude-sonnet-4-20250514) share their family
// rate. Prices are USD.
var modelRates = map[string]types.CostRate{
	"claude-opus-4":     {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"gpt-4o-mini":       {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4o":            {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"o1":                {InputPerMillion: 15.00, OutputPerMillion: 60.00},
	"o3-mini":           {InputPerMillion: 1.10, OutputPerMillion: 4.40},
	"gemini-2.0-flash":  {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gemini-1.5-pro":    {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"gemini-1.5-flash":  {InputPerMillion: 0.075, OutputPerMillion: 0.30},
}

// providerDefaultRates backs unknown models; using one marks the cost
// record as estimated.
var providerDefaultRates = map[types.Provider]types.CostRate{
	types.ProviderClaude: {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	types.ProviderOpenAI: {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	types.ProviderGemini: {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	types.ProviderOllama: {},
}

// EstimateCost computes the USD cost for a call. The bool is true when the
// model was not found in the pricing table and the provider default was
// used instead.
func EstimateCost(provider types.Provider, model string, inputTokens, outputTokens int) (float64, bool) {
	if provider == types.ProviderOllama {
		return 0, false
	}

	name := strings.ToLower(model)
	bestLen := 0
	var bestRate types.CostRate
	for prefix, rate := range modelRates {
		if strings.HasPrefix(name, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			bestRate = rate
		}
	}
	if bestLen > 0 {
		return bestRate.Cost(inputTokens, outputTokens), false
	}
	return providerDefaultRates[provider].Cost(inputTokens, outputTokens), true
}
