package costs

import (
	"context"
	"testing"
	"time"

	"aide/internal/store"
	"aide/internal/types"
)

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewTracker(st, opts...), st
}

func record(provider types.Provider, cost float64, success bool) types.CostRecord {
	return types.CostRecord{
		Timestamp: time.Now(),
		Provider:  provider,
		Model:     "m",
		TokensIn:  100,
		TokensOut: 100,
		CostUSD:   cost,
		Success:   success,
	}
}

func TestSessionCounters(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	tracker.Record(ctx, record(types.ProviderClaude, 0.10, true))
	tracker.Record(ctx, record(types.ProviderClaude, 0.05, true))
	tracker.Record(ctx, record(types.ProviderOpenAI, 0, false))

	s := tracker.Session()
	if s.Calls != 3 {
		t.Errorf("calls = %d, want 3", s.Calls)
	}
	if s.CostUSD < 0.149 || s.CostUSD > 0.151 {
		t.Errorf("cost = %f, want 0.15", s.CostUSD)
	}
	claude := s.ByProvider[types.ProviderClaude]
	if claude.Calls != 2 || claude.Failures != 0 {
		t.Errorf("claude = %+v", claude)
	}
	openai := s.ByProvider[types.ProviderOpenAI]
	if openai.Failures != 1 {
		t.Errorf("openai = %+v", openai)
	}
}

func TestBudgetAlertFiresOncePerCrossing(t *testing.T) {
	var alerts []Alert
	tracker, _ := newTestTracker(t,
		WithThresholds(1.0, 5.0),
		WithAlertFunc(func(a Alert) { alerts = append(alerts, a) }))
	ctx := context.Background()

	tracker.Record(ctx, record(types.ProviderClaude, 0.60, true))
	if len(alerts) != 0 {
		t.Fatalf("alert fired below threshold: %+v", alerts)
	}

	tracker.Record(ctx, record(types.ProviderClaude, 0.60, true))
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts after crossing 1.0, want 1", len(alerts))
	}
	if alerts[0].ThresholdUSD != 1.0 {
		t.Errorf("threshold = %f", alerts[0].ThresholdUSD)
	}

	// More spend under the next threshold must not re-alert.
	tracker.Record(ctx, record(types.ProviderClaude, 0.60, true))
	if len(alerts) != 1 {
		t.Fatalf("re-alerted without a new crossing: %d", len(alerts))
	}

	// One record can cross the second threshold.
	tracker.Record(ctx, record(types.ProviderClaude, 4.0, true))
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts after crossing 5.0, want 2", len(alerts))
	}
	if alerts[1].ThresholdUSD != 5.0 {
		t.Errorf("threshold = %f", alerts[1].ThresholdUSD)
	}
}

func TestRecordPersists(t *testing.T) {
	tracker, st := newTestTracker(t)
	ctx := context.Background()

	tracker.Record(ctx, record(types.ProviderGemini, 0.01, true))

	total, err := st.TotalCost(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total < 0.009 || total > 0.011 {
		t.Errorf("persisted total = %f, want 0.01", total)
	}
}

func TestMonthlyReportBounds(t *testing.T) {
	tracker, st := newTestTracker(t)
	ctx := context.Background()

	now := time.Now().UTC()
	inMonth := types.CostRecord{Timestamp: now, Provider: types.ProviderClaude, Model: "m", CostUSD: 1.0, Success: true}
	lastMonth := types.CostRecord{Timestamp: now.AddDate(0, -1, 0), Provider: types.ProviderClaude, Model: "m", CostUSD: 9.0, Success: true}
	for _, rec := range []types.CostRecord{inMonth, lastMonth} {
		if err := st.InsertCostRecord(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := tracker.MonthlyReport(ctx, now.Year(), now.Month())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if got < 0.99 || got > 1.01 {
		t.Errorf("month total = %f, want 1.0", got)
	}
}

func TestProjectedMonthlyCost(t *testing.T) {
	tracker, st := newTestTracker(t)
	ctx := context.Background()

	if err := st.InsertCostRecord(ctx, types.CostRecord{
		Timestamp: time.Now().UTC(), Provider: types.ProviderClaude, Model: "m",
		CostUSD: 2.0, Success: true,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	projected, err := tracker.ProjectedMonthlyCost(ctx)
	if err != nil {
		t.Fatalf("projected: %v", err)
	}
	// Linear extrapolation of a positive spend is positive and at least
	// the spend itself.
	if projected < 2.0 {
		t.Errorf("projected = %f, want >= 2.0", projected)
	}
}

func TestSeedModelRegistry(t *testing.T) {
	tracker, st := newTestTracker(t)
	ctx := context.Background()

	if err := SeedModelRegistry(ctx, st); err != nil {
		t.Fatalf("seed: %v", err)
	}
	visible, err := tracker.Models(ctx, false)
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	for _, m := range visible {
		if m.Deprecated {
			t.Errorf("deprecated model %s listed without request", m.Name)
		}
	}
	all, err := tracker.Models(ctx, true)
	if err != nil {
		t.Fatalf("models all: %v", err)
	}
	if len(all) <= len(visible) {
		t.Errorf("deprecated models missing: visible=%d all=%d", len(visible), len(all))
	}
}
