// Package capability holds the static task-to-provider capability matrix and
// the local-model tier tables. Everything in here is pure data and pure
// functions; the broker consults it on every dispatch.
package capability

import (
	"fmt"
	"strings"

	"aide/internal/types"
)

// TaskRoute is one row of the capability matrix: the preferred provider for
// a task, the ordered fallbacks, and why.
type TaskRoute struct {
	Primary   types.Provider
	Fallbacks []types.Provider
	Rationale string
}

// Matrix maps every task type to its route. Code tasks prefer Claude,
// reasoning and math prefer OpenAI, long documents prefer Gemini's context
// window, and lightweight tasks run locally when possible.
var Matrix = map[types.TaskType]TaskRoute{
	types.TaskCodeGeneration: {
		Primary:   types.ProviderClaude,
		Fallbacks: []types.Provider{types.ProviderOpenAI, types.ProviderOllama},
		Rationale: "Claude produces the most reliable multi-file code output",
	},
	types.TaskCodeReview: {
		Primary:   types.ProviderClaude,
		Fallbacks: []types.Provider{types.ProviderOpenAI, types.ProviderOllama},
		Rationale: "code review needs the same strengths as generation",
	},
	types.TaskCodeDebugging: {
		Primary:   types.ProviderClaude,
		Fallbacks: []types.Provider{types.ProviderOpenAI, types.ProviderOllama},
		Rationale: "stack-trace reasoning tracks code generation quality",
	},
	types.TaskComplexReasoning: {
		Primary:   types.ProviderOpenAI,
		Fallbacks: []types.Provider{types.ProviderClaude, types.ProviderGemini},
		Rationale: "o-series models lead on multi-step reasoning",
	},
	types.TaskMathAnalysis: {
		Primary:   types.ProviderOpenAI,
		Fallbacks: []types.Provider{types.ProviderClaude, types.ProviderGemini},
		Rationale: "math benchmarks favor OpenAI reasoning models",
	},
	types.TaskLongDocument: {
		Primary:   types.ProviderGemini,
		Fallbacks: []types.Provider{types.ProviderClaude, types.ProviderOpenAI},
		Rationale: "Gemini's context window handles book-length input",
	},
	types.TaskSummarization: {
		Primary:   types.ProviderOllama,
		Fallbacks: []types.Provider{types.ProviderGemini, types.ProviderOpenAI},
		Rationale: "summaries are cheap locally; cloud only for overflow",
	},
	types.TaskCreativeWriting: {
		Primary:   types.ProviderClaude,
		Fallbacks: []types.Provider{types.ProviderOpenAI, types.ProviderGemini},
		Rationale: "prose quality",
	},
	types.TaskSimpleQA: {
		Primary:   types.ProviderOllama,
		Fallbacks: []types.Provider{types.ProviderGemini, types.ProviderOpenAI},
		Rationale: "trivial lookups should cost nothing",
	},
	types.TaskClassification: {
		Primary:   types.ProviderOllama,
		Fallbacks: []types.Provider{types.ProviderGemini, types.ProviderOpenAI},
		Rationale: "closed-set labeling is within small-model reach",
	},
	types.TaskDataExtraction: {
		Primary:   types.ProviderOllama,
		Fallbacks: []types.Provider{types.ProviderGemini, types.ProviderOpenAI},
		Rationale: "structured extraction works locally with schema prompts",
	},
	types.TaskConversation: {
		Primary:   types.ProviderOllama,
		Fallbacks: []types.Provider{types.ProviderClaude, types.ProviderGemini},
		Rationale: "chitchat should not burn cloud tokens",
	},
	types.TaskProfileExtraction: {
		Primary:   types.ProviderOllama,
		Fallbacks: []types.Provider{types.ProviderGemini, types.ProviderOpenAI},
		Rationale: "background extraction runs constantly; keep it free",
	},
	types.TaskTaskParsing: {
		Primary:   types.ProviderOllama,
		Fallbacks: []types.Provider{types.ProviderGemini, types.ProviderOpenAI},
		Rationale: "date/priority parsing is a small-model task",
	},
	types.TaskHeartbeatDecision: {
		Primary:   types.ProviderOllama,
		Fallbacks: []types.Provider{types.ProviderGemini, types.ProviderOpenAI},
		Rationale: "periodic decisions must be cheap to be sustainable",
	},
}

// tierCapabilities maps each local tier to the tasks it can serve.
// Small ⊂ Medium ⊂ Large.
var tierCapabilities = map[types.LocalTier][]types.TaskType{
	types.TierSmall: {
		types.TaskSimpleQA,
		types.TaskClassification,
		types.TaskConversation,
		types.TaskHeartbeatDecision,
	},
	types.TierMedium: {
		types.TaskSimpleQA,
		types.TaskClassification,
		types.TaskConversation,
		types.TaskHeartbeatDecision,
		types.TaskSummarization,
		types.TaskDataExtraction,
		types.TaskTaskParsing,
		types.TaskProfileExtraction,
	},
	types.TierLarge: {
		types.TaskSimpleQA,
		types.TaskClassification,
		types.TaskConversation,
		types.TaskHeartbeatDecision,
		types.TaskSummarization,
		types.TaskDataExtraction,
		types.TaskTaskParsing,
		types.TaskProfileExtraction,
		types.TaskCreativeWriting,
		types.TaskCodeGeneration,
		types.TaskCodeDebugging,
	},
}

// tierPrefixes maps model-name prefixes to tiers. Longest match wins;
// unknown models default to Small as the conservative choice.
var tierPrefixes = []struct {
	prefix string
	tier   types.LocalTier
}{
	{"llama3.3:70b", types.TierLarge},
	{"llama3.1:70b", types.TierLarge},
	{"qwen2.5:72b", types.TierLarge},
	{"qwen2.5-coder:32b", types.TierLarge},
	{"deepseek-r1:32b", types.TierLarge},
	{"mixtral", types.TierLarge},
	{"llama3.1:8b", types.TierMedium},
	{"llama3:8b", types.TierMedium},
	{"qwen2.5:14b", types.TierMedium},
	{"qwen2.5:7b", types.TierMedium},
	{"mistral:7b", types.TierMedium},
	{"gemma3:12b", types.TierMedium},
	{"gemma3:4b", types.TierSmall},
	{"llama3.2:3b", types.TierSmall},
	{"llama3.2:1b", types.TierSmall},
	{"phi3", types.TierSmall},
	{"tinyllama", types.TierSmall},
}

// TierOf derives the tier of a local model by prefix match.
func TierOf(modelName string) types.LocalTier {
	name := strings.ToLower(strings.TrimSpace(modelName))
	best := types.TierSmall
	bestLen := 0
	for _, entry := range tierPrefixes {
		if strings.HasPrefix(name, entry.prefix) && len(entry.prefix) > bestLen {
			best = entry.tier
			bestLen = len(entry.prefix)
		}
	}
	return best
}

// CanLocalHandle reports whether the named local model can serve the task.
func CanLocalHandle(task types.TaskType, modelName string) bool {
	for _, capable := range tierCapabilities[TierOf(modelName)] {
		if capable == task {
			return true
		}
	}
	return false
}

// Options tunes provider selection.
type Options struct {
	// LocalModel is the configured Ollama model name, used for tier checks.
	LocalModel string
	// ForceLocal lists tasks that always go local when Ollama is available.
	ForceLocal map[types.TaskType]bool
	// ForceCloud lists tasks that never go local.
	ForceCloud map[types.TaskType]bool
}

// ProviderForTask selects the cheapest capable provider for a task.
//
// Order: forced-local short circuit, then the matrix primary and fallbacks
// (dropping Ollama for forced-cloud tasks, and requiring a tier-capable
// local model for Ollama candidates), then any available provider at all.
func ProviderForTask(task types.TaskType, available map[types.Provider]bool, opts Options) (types.Provider, error) {
	if opts.ForceLocal[task] && available[types.ProviderOllama] {
		return types.ProviderOllama, nil
	}

	route, ok := Matrix[task]
	if !ok {
		// Unknown task types route like conversation.
		route = Matrix[types.TaskConversation]
	}

	candidates := append([]types.Provider{route.Primary}, route.Fallbacks...)
	for _, candidate := range candidates {
		if candidate == types.ProviderOllama {
			if opts.ForceCloud[task] {
				continue
			}
			if available[types.ProviderOllama] && CanLocalHandle(task, opts.LocalModel) {
				return types.ProviderOllama, nil
			}
			continue
		}
		if available[candidate] {
			return candidate, nil
		}
	}

	// Last resort: any provider at all, in fixed preference order.
	for _, p := range types.AllProviders {
		if available[p] {
			return p, nil
		}
	}
	return "", fmt.Errorf("no providers available for task %s", task)
}
