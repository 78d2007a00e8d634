package types

import "time"

// CostRecord is the persisted row for one inference call or failed attempt.
// Every call produces exactly one record, failures included.
type CostRecord struct {
	Timestamp     time.Time `json:"ts"`
	Provider      Provider  `json:"provider"`
	Model         string    `json:"model"`
	TokensIn      int       `json:"tokens_in"`
	TokensOut     int       `json:"tokens_out"`
	CostUSD       float64   `json:"cost_usd"`
	CostEstimated bool      `json:"cost_estimated"`
	TaskType      TaskType  `json:"task_type,omitempty"`
	UserID        int64     `json:"user_id,omitempty"`
	LatencyMS     int64     `json:"latency_ms,omitempty"`
	RateLimitHit  bool      `json:"rate_limit_hit"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}

// ModelInfo is one entry in the model registry.
type ModelInfo struct {
	Name          string   `json:"name"`
	Provider      Provider `json:"provider"`
	Tier          string   `json:"tier"`
	ContextWindow int      `json:"context_window"`
	Deprecated    bool     `json:"deprecated"`
}
