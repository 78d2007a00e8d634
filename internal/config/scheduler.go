package config

import "time"

// SchedulerConfig configures the heartbeat loop and quiet hours.
type SchedulerConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	QuietStartHour    int `yaml:"quiet_start_hour"`
	QuietEndHour      int `yaml:"quiet_end_hour"`
	MaxActionsPerBeat int `yaml:"max_actions_per_beat"`
}

// DefaultSchedulerConfig returns the scheduler defaults: five-minute beats,
// quiet from 22:00 to 07:00.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		IntervalSeconds:   300,
		QuietStartHour:    22,
		QuietEndHour:      7,
		MaxActionsPerBeat: 5,
	}
}

// TrustConfig carries the promotion and demotion constants for the trust
// model, plus the minimum auto-approval level per reply category.
type TrustConfig struct {
	// PromotionThresholds is approval_rate required to reach each level,
	// keyed by target level name.
	PromotionThresholds map[string]float64 `yaml:"promotion_thresholds"`
	// MinTotals is the minimum interaction count required per target level.
	MinTotals map[string]int `yaml:"min_totals"`
	// DemotionWindow is how many recent interactions the demotion check spans.
	DemotionWindow int `yaml:"demotion_window"`
	// DemotionMaxRejections demotes one level when exceeded inside the window.
	DemotionMaxRejections int `yaml:"demotion_max_rejections"`
	// MinAutoLevels maps reply category -> minimum level name that
	// auto-approves. Categories absent from the map never auto-approve.
	MinAutoLevels map[string]string `yaml:"min_auto_levels"`
}

// DefaultTrustConfig returns the trust defaults. Spam never auto-approves.
func DefaultTrustConfig() TrustConfig {
	return TrustConfig{
		PromotionThresholds: map[string]float64{
			"building":    0.60,
			"established": 0.75,
			"trusted":     0.90,
		},
		MinTotals: map[string]int{
			"building":    5,
			"established": 20,
			"trusted":     50,
		},
		DemotionWindow:        10,
		DemotionMaxRejections: 3,
		MinAutoLevels: map[string]string{
			"question":   "established",
			"praise":     "building",
			"feedback":   "established",
			"discussion": "trusted",
		},
	}
}

// CostsConfig configures budget alerting.
type CostsConfig struct {
	BudgetAlertThresholdUSD float64 `yaml:"budget_alert_threshold_usd"`
}

// DefaultCostsConfig returns the cost defaults.
func DefaultCostsConfig() CostsConfig {
	return CostsConfig{BudgetAlertThresholdUSD: 10.0}
}

// RateLimitConfig configures the per-user sliding window.
type RateLimitConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxRequests   int `yaml:"max_requests"`
}

// DefaultRateLimitConfig returns the limiter defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{WindowSeconds: 60, MaxRequests: 10}
}

// QueueConfig configures the priority queue consumer.
type QueueConfig struct {
	MaxAttempts      int    `yaml:"max_attempts"`
	BackoffBase      string `yaml:"backoff_base"`
	BackoffCap       string `yaml:"backoff_cap"`
	PollInterval     string `yaml:"poll_interval"`
	ConsumerDisabled bool   `yaml:"consumer_disabled"`
}

// DefaultQueueConfig returns the queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxAttempts:  3,
		BackoffBase:  "5s",
		BackoffCap:   "10m",
		PollInterval: "2s",
	}
}

// BackoffBaseDuration returns the parsed retry backoff base.
func (q QueueConfig) BackoffBaseDuration() time.Duration {
	return parseDuration(q.BackoffBase, 5*time.Second)
}

// BackoffCapDuration returns the parsed backoff ceiling.
func (q QueueConfig) BackoffCapDuration() time.Duration {
	return parseDuration(q.BackoffCap, 10*time.Minute)
}

// PollIntervalDuration returns the parsed consumer poll interval.
func (q QueueConfig) PollIntervalDuration() time.Duration {
	return parseDuration(q.PollInterval, 2*time.Second)
}

// Interval returns the heartbeat period.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}
