package types

import "strings"

// Provider identifies an LLM backend family.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderOllama Provider = "ollama"
)

// AllProviders lists the closed provider set in the fixed fallback
// preference order used by the broker.
var AllProviders = []Provider{ProviderClaude, ProviderOpenAI, ProviderGemini, ProviderOllama}

// ParseProvider resolves a string to a Provider, case-insensitively.
func ParseProvider(s string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllProviders {
		if known == p {
			return p, true
		}
	}
	return "", false
}

// CostRate is the per-million-token pricing for a provider or model.
// Local models carry a zero rate.
type CostRate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Cost computes the USD cost for a token count pair.
func (r CostRate) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*r.InputPerMillion +
		float64(outputTokens)/1_000_000*r.OutputPerMillion
}

// TaskType is the finer-grained label the broker uses to choose a provider.
type TaskType string

const (
	TaskCodeGeneration    TaskType = "code_generation"
	TaskCodeReview        TaskType = "code_review"
	TaskCodeDebugging     TaskType = "code_debugging"
	TaskComplexReasoning  TaskType = "complex_reasoning"
	TaskMathAnalysis      TaskType = "math_analysis"
	TaskLongDocument      TaskType = "long_document"
	TaskSummarization     TaskType = "summarization"
	TaskCreativeWriting   TaskType = "creative_writing"
	TaskSimpleQA          TaskType = "simple_qa"
	TaskClassification    TaskType = "classification"
	TaskDataExtraction    TaskType = "data_extraction"
	TaskConversation      TaskType = "conversation"
	TaskProfileExtraction TaskType = "profile_extraction"
	TaskTaskParsing       TaskType = "task_parsing"
	TaskHeartbeatDecision TaskType = "heartbeat_decision"
)

// AllTaskTypes lists every member of the closed task-type set.
var AllTaskTypes = []TaskType{
	TaskCodeGeneration,
	TaskCodeReview,
	TaskCodeDebugging,
	TaskComplexReasoning,
	TaskMathAnalysis,
	TaskLongDocument,
	TaskSummarization,
	TaskCreativeWriting,
	TaskSimpleQA,
	TaskClassification,
	TaskDataExtraction,
	TaskConversation,
	TaskProfileExtraction,
	TaskTaskParsing,
	TaskHeartbeatDecision,
}

// LocalTier classifies a locally hosted model by capability ceiling.
type LocalTier int

const (
	TierSmall LocalTier = iota
	TierMedium
	TierLarge
)

func (t LocalTier) String() string {
	switch t {
	case TierSmall:
		return "small"
	case TierMedium:
		return "medium"
	case TierLarge:
		return "large"
	default:
		return "unknown"
	}
}
