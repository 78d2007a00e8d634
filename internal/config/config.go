// Package config loads and validates aide configuration from a YAML file
// with environment-variable overrides. Each concern keeps its config struct
// in its own file alongside its defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all aide configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Router    RouterConfig    `yaml:"router"`
	Inference InferenceConfig `yaml:"inference"`
	Providers ProvidersConfig `yaml:"providers"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Trust     TrustConfig     `yaml:"trust"`
	Costs     CostsConfig     `yaml:"costs"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Queue     QueueConfig     `yaml:"queue"`
	Memory    MemoryConfig    `yaml:"memory"`
	Skills    SkillsConfig    `yaml:"skills"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "aide",
		Version:   "1.0.0",
		Router:    DefaultRouterConfig(),
		Inference: DefaultInferenceConfig(),
		Providers: DefaultProvidersConfig(),
		Scheduler: DefaultSchedulerConfig(),
		Trust:     DefaultTrustConfig(),
		Costs:     DefaultCostsConfig(),
		RateLimit: DefaultRateLimitConfig(),
		Queue:     DefaultQueueConfig(),
		Memory:    DefaultMemoryConfig(),
		Skills:    DefaultSkillsConfig(),
		Transport: DefaultTransportConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

// Load reads the config file at path (if it exists), applies it over the
// defaults, then applies environment overrides. A missing file is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks startup-fatal conditions. A process with no provider at
// all refuses to start.
func (c *Config) Validate() error {
	if !c.Providers.AnyConfigured() {
		return fmt.Errorf("no providers configured: set at least one of ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY or providers.ollama.url")
	}
	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be positive, got %d", c.Scheduler.IntervalSeconds)
	}
	if c.RateLimit.WindowSeconds <= 0 || c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate_limit window and max_requests must be positive")
	}
	return nil
}

// applyEnvOverrides maps well-known environment variables onto the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Providers.Claude.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Providers.Gemini.APIKey = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Providers.Ollama.URL = v
	}
	if v := os.Getenv("AIDE_DB_PATH"); v != "" {
		c.Memory.DatabasePath = v
	}
	if v := os.Getenv("AIDE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AIDE_ROUTER_BACKEND"); v != "" {
		c.Router.Backend = v
	}
}

// parseDuration parses a duration string, returning fallback on failure.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
