// Package costs implements the cost tracker: one record per inference
// attempt, session counters for quick reads, sqlite-backed aggregations,
// and budget threshold alerts.
package costs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/types"
)

// ProviderCounters is the in-memory per-provider rollup for this session.
type ProviderCounters struct {
	Calls     int     `json:"calls"`
	Failures  int     `json:"failures"`
	TokensIn  int64   `json:"tokens_in"`
	TokensOut int64   `json:"tokens_out"`
	CostUSD   float64 `json:"cost_usd"`
}

// SessionSummary is a snapshot of the session counters.
type SessionSummary struct {
	Calls      int                                `json:"calls"`
	CostUSD    float64                            `json:"cost_usd"`
	ByProvider map[types.Provider]ProviderCounters `json:"by_provider"`
}

// Alert is a budget threshold crossing.
type Alert struct {
	ThresholdUSD float64
	CostUSD      float64
	Period       string
	At           time.Time
}

// AlertFunc receives budget alerts. Called at most once per threshold
// crossing per period.
type AlertFunc func(Alert)

// Tracker records inference costs. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	session   map[types.Provider]ProviderCounters
	calls     int
	totalUSD  float64
	monthUSD  float64
	monthKey  string
	crossed   map[float64]bool

	thresholds []float64
	onAlert    AlertFunc

	store *store.Store
	log   *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThresholds sets the ascending budget thresholds in USD.
func WithThresholds(usd ...float64) Option {
	return func(t *Tracker) { t.thresholds = usd }
}

// WithAlertFunc sets the alert callback.
func WithAlertFunc(fn AlertFunc) Option {
	return func(t *Tracker) { t.onAlert = fn }
}

// NewTracker creates a tracker. st may be nil, in which case records are
// session-only (tests use this).
func NewTracker(st *store.Store, opts ...Option) *Tracker {
	t := &Tracker{
		session:  make(map[types.Provider]ProviderCounters),
		crossed:  make(map[float64]bool),
		monthKey: monthKey(time.Now()),
		store:    st,
		log:      logging.Named(logging.ComponentCosts),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func monthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Record ingests one cost record: session counters, persistence, and
// budget alert evaluation. Persistence failures are logged, never
// propagated, so a broken disk cannot take down inference.
func (t *Tracker) Record(ctx context.Context, rec types.CostRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	t.mu.Lock()
	counters := t.session[rec.Provider]
	counters.Calls++
	if !rec.Success {
		counters.Failures++
	}
	counters.TokensIn += int64(rec.TokensIn)
	counters.TokensOut += int64(rec.TokensOut)
	counters.CostUSD += rec.CostUSD
	t.session[rec.Provider] = counters
	t.calls++
	t.totalUSD += rec.CostUSD

	// Month rollover resets the crossing set so each period alerts anew.
	if key := monthKey(rec.Timestamp); key != t.monthKey {
		t.monthKey = key
		t.monthUSD = 0
		t.crossed = make(map[float64]bool)
	}
	t.monthUSD += rec.CostUSD

	var fired []Alert
	for _, threshold := range t.thresholds {
		if t.monthUSD >= threshold && !t.crossed[threshold] {
			t.crossed[threshold] = true
			fired = append(fired, Alert{
				ThresholdUSD: threshold,
				CostUSD:      t.monthUSD,
				Period:       t.monthKey,
				At:           rec.Timestamp,
			})
		}
	}
	onAlert := t.onAlert
	t.mu.Unlock()

	if onAlert != nil {
		for _, alert := range fired {
			onAlert(alert)
		}
	}
	for _, alert := range fired {
		t.log.Warn("budget threshold crossed",
			zap.Float64("threshold_usd", alert.ThresholdUSD),
			zap.Float64("month_usd", alert.CostUSD),
			zap.String("period", alert.Period))
	}

	if t.store != nil {
		if err := t.store.InsertCostRecord(ctx, rec); err != nil {
			t.log.Error("failed to persist cost record", zap.Error(err))
		}
	}
}

// Session returns a snapshot of the in-memory counters.
func (t *Tracker) Session() SessionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := SessionSummary{
		Calls:      t.calls,
		CostUSD:    t.totalUSD,
		ByProvider: make(map[types.Provider]ProviderCounters, len(t.session)),
	}
	for p, c := range t.session {
		out.ByProvider[p] = c
	}
	return out
}

// TotalCost sums persisted cost over a range.
func (t *Tracker) TotalCost(ctx context.Context, from, to time.Time) (float64, error) {
	return t.store.TotalCost(ctx, from, to)
}

// CostByProvider groups persisted cost by provider over a range.
func (t *Tracker) CostByProvider(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return t.store.CostByProvider(ctx, from, to)
}

// CostByTaskType groups persisted cost by task type over a range.
func (t *Tracker) CostByTaskType(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return t.store.CostByTaskType(ctx, from, to)
}

// CostByModel groups persisted cost by model over a range.
func (t *Tracker) CostByModel(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return t.store.CostByModel(ctx, from, to)
}

// DailyBreakdown returns per-day rollups for the last N days.
func (t *Tracker) DailyBreakdown(ctx context.Context, days int) ([]store.DailyCost, error) {
	return t.store.DailyBreakdown(ctx, days)
}

// MonthlyReport sums cost for one calendar month.
func (t *Tracker) MonthlyReport(ctx context.Context, year int, month time.Month) (float64, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return t.store.TotalCost(ctx, from, from.AddDate(0, 1, 0))
}

// ProjectedMonthlyCost extrapolates the current month linearly from the
// daily average so far.
func (t *Tracker) ProjectedMonthlyCost(ctx context.Context) (float64, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	spent, err := t.store.TotalCost(ctx, monthStart, now)
	if err != nil {
		return 0, err
	}
	elapsed := now.Sub(monthStart).Hours() / 24
	if elapsed < 1 {
		elapsed = 1
	}
	daysInMonth := float64(monthStart.AddDate(0, 1, -1).Day())
	return spent / elapsed * daysInMonth, nil
}

// RateLimitStats returns per-provider rate-limit hit counts over a window.
func (t *Tracker) RateLimitStats(ctx context.Context, window time.Duration) (map[string]int, error) {
	return t.store.RateLimitCounts(ctx, time.Now().Add(-window))
}
