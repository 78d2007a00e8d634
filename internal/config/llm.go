package config

import "time"

// RouterConfig configures the two-stage intent router.
type RouterConfig struct {
	Backend       string `yaml:"backend"` // gemini or ollama
	URL           string `yaml:"url"`
	PrimaryModel  string `yaml:"primary_model"`
	FallbackModel string `yaml:"fallback_model"`
	Timeout       string `yaml:"timeout"`
}

// DefaultRouterConfig returns the router defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Backend:       "ollama",
		PrimaryModel:  "llama3.2:3b",
		FallbackModel: "gemma3:4b",
		Timeout:       "30s",
	}
}

// TimeoutDuration returns the parsed router timeout.
func (r RouterConfig) TimeoutDuration() time.Duration {
	return parseDuration(r.Timeout, 30*time.Second)
}

// InferenceConfig carries broker-wide generation defaults.
type InferenceConfig struct {
	DefaultMaxTokens   int     `yaml:"default_max_tokens"`
	DefaultTemperature float64 `yaml:"default_temperature"`
}

// DefaultInferenceConfig returns the inference defaults.
func DefaultInferenceConfig() InferenceConfig {
	return InferenceConfig{
		DefaultMaxTokens:   4096,
		DefaultTemperature: 0.7,
	}
}

// ProviderConfig configures one cloud provider adapter.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// Configured reports whether the provider has credentials.
func (p ProviderConfig) Configured() bool { return p.APIKey != "" }

// TimeoutDuration returns the parsed per-provider timeout.
func (p ProviderConfig) TimeoutDuration() time.Duration {
	return parseDuration(p.Timeout, 120*time.Second)
}

// OllamaConfig configures the local provider.
type OllamaConfig struct {
	URL     string `yaml:"url"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// Configured reports whether a local endpoint is set.
func (o OllamaConfig) Configured() bool { return o.URL != "" }

// TimeoutDuration returns the parsed Ollama timeout. Local generation on
// modest hardware is slow, so the default is generous.
func (o OllamaConfig) TimeoutDuration() time.Duration {
	return parseDuration(o.Timeout, 300*time.Second)
}

// ProvidersConfig groups all provider adapters.
type ProvidersConfig struct {
	Claude ProviderConfig `yaml:"claude"`
	OpenAI ProviderConfig `yaml:"openai"`
	Gemini ProviderConfig `yaml:"gemini"`
	Ollama OllamaConfig   `yaml:"ollama"`
}

// AnyConfigured reports whether at least one provider can be constructed.
func (p ProvidersConfig) AnyConfigured() bool {
	return p.Claude.Configured() || p.OpenAI.Configured() || p.Gemini.Configured() || p.Ollama.Configured()
}

// DefaultProvidersConfig returns provider defaults. API keys come from the
// environment; only models and endpoints are defaulted here.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Claude: ProviderConfig{
			Model:   "claude-sonnet-4-20250514",
			BaseURL: "https://api.anthropic.com/v1",
			Timeout: "120s",
		},
		OpenAI: ProviderConfig{
			Model:   "gpt-4o",
			BaseURL: "https://api.openai.com/v1",
			Timeout: "120s",
		},
		Gemini: ProviderConfig{
			Model:   "gemini-2.0-flash",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Timeout: "120s",
		},
		Ollama: OllamaConfig{
			URL:     "http://localhost:11434",
			Model:   "llama3.2:3b",
			Timeout: "300s",
		},
	}
}
