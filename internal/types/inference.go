package types

import "strings"

// Message is one turn of conversation history passed to a provider.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// NormalizeRole maps arbitrary role strings onto the closed set
// {user, assistant, system}. Unknown roles become "user".
func NormalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "model", "ai":
		return "assistant"
	case "system":
		return "system"
	default:
		return "user"
	}
}

// InferenceRequest is the broker's internal request shape.
type InferenceRequest struct {
	Prompt       string
	TaskType     TaskType
	SystemPrompt string
	History      []Message
	MaxTokens    int
	Temperature  float64
}

// InferenceResult is the broker's response to a completed inference call.
type InferenceResult struct {
	Content          string   `json:"content"`
	Provider         Provider `json:"provider"`
	TaskType         TaskType `json:"task_type"`
	Model            string   `json:"model"`
	InputTokens      int      `json:"input_tokens"`
	OutputTokens     int      `json:"output_tokens"`
	LatencyMS        int64    `json:"latency_ms"`
	EstimatedCostUSD float64  `json:"estimated_cost_usd"`
}

// StreamChunk is one unit of a streamed inference response. The final chunk
// has Done=true and carries the model and usage metadata.
type StreamChunk struct {
	Content      string   `json:"content"`
	Done         bool     `json:"done"`
	Model        string   `json:"model,omitempty"`
	InputTokens  int      `json:"input_tokens,omitempty"`
	OutputTokens int      `json:"output_tokens,omitempty"`
	Provider     Provider `json:"provider,omitempty"`
}

// EstimateTokens approximates a token count when the provider does not
// report usage: whitespace tokenization times two.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text)) * 2
}
