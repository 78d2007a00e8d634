package config

import "time"

// MemoryConfig configures the sqlite store and vector memory.
type MemoryConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Embedding backend: "genai" (Gemini embeddings) or "ollama".
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`

	// Context assembly limits.
	RecentContextLimit int `yaml:"recent_context_limit"`
	SemanticLimit      int `yaml:"semantic_limit"`
}

// DefaultMemoryConfig returns the memory defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DatabasePath:       "data/aide.db",
		EmbeddingProvider:  "ollama",
		EmbeddingModel:     "embeddinggemma",
		RecentContextLimit: 10,
		SemanticLimit:      5,
	}
}

// SkillsConfig configures skill loading and the skill RPC boundary.
type SkillsConfig struct {
	// Enabled lists the skill names loaded at startup. Empty means all
	// built-ins.
	Enabled []string `yaml:"enabled"`

	// ServiceAddr is the listen address for the skill RPC server.
	ServiceAddr string `yaml:"service_addr"`
	// ServiceURL is the base URL the orchestrator's client dials. Empty
	// means in-process dispatch without HTTP.
	ServiceURL     string `yaml:"service_url"`
	RequestTimeout string `yaml:"request_timeout"`

	// DevWatcher paths: working trees watched for activity.
	WatchPaths []string `yaml:"watch_paths"`
}

// DefaultSkillsConfig returns the skill defaults.
func DefaultSkillsConfig() SkillsConfig {
	return SkillsConfig{
		ServiceAddr:    ":8750",
		RequestTimeout: "30s",
	}
}

// RequestTimeoutDuration returns the parsed skill RPC timeout.
func (s SkillsConfig) RequestTimeoutDuration() time.Duration {
	return parseDuration(s.RequestTimeout, 30*time.Second)
}

// TransportConfig configures the chat transport contract.
type TransportConfig struct {
	// MaxChunkBytes caps one outbound message chunk.
	MaxChunkBytes int `yaml:"max_chunk_bytes"`
}

// DefaultTransportConfig returns the transport defaults (Discord-sized chunks).
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{MaxChunkBytes: 1900}
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`  // debug, info, warn, error
	Format      string `yaml:"format"` // json, console
	Development bool   `yaml:"development"`
}

// DefaultLoggingConfig returns the logging defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "console"}
}
