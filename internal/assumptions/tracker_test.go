package assumptions

import (
	"context"
	"testing"
	"time"

	"aide/internal/store"
	"aide/internal/types"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewTracker(st)
}

func TestInferredThenConfirmed(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, err := tr.AddInferred(ctx, "C", types.CategoryAudience, "Aged 18-24",
		[]string{"comment analysis"}, 0.6)
	if err != nil {
		t.Fatalf("add inferred: %v", err)
	}
	if a.Source != types.SourceInferred || a.Confidence != 0.6 {
		t.Fatalf("assumption = %+v", a)
	}

	before := time.Now()
	confirmed, err := tr.Confirm(ctx, a.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Source != types.SourceConfirmed || confirmed.Confidence != 1.0 {
		t.Errorf("after confirm: %+v", confirmed)
	}
	if confirmed.ConfirmedAt == nil {
		t.Error("confirmed_at not set")
	}
	if confirmed.NextValidation.Before(before.Add(confirmedInterval - time.Minute)) {
		t.Errorf("next validation %v not pushed by the confirmed interval", confirmed.NextValidation)
	}
}

func TestValidationIntervals(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now()

	confirmed, err := tr.AddConfirmed(ctx, "C", types.CategoryTone, "Casual and upbeat",
		[]string{"stated by user"})
	if err != nil {
		t.Fatalf("add confirmed: %v", err)
	}
	if confirmed.NextValidation.Before(now.Add(confirmedInterval - time.Minute)) {
		t.Errorf("confirmed next validation too soon: %v", confirmed.NextValidation)
	}

	inferred, err := tr.AddInferred(ctx, "C", types.CategoryTopic, "Retro gaming focus", nil, 0.5)
	if err != nil {
		t.Fatalf("add inferred: %v", err)
	}
	if inferred.NextValidation.Before(now.Add(defaultInterval - time.Minute)) {
		t.Errorf("inferred next validation too soon: %v", inferred.NextValidation)
	}
	if inferred.NextValidation.After(now.Add(defaultInterval + time.Minute)) {
		t.Errorf("low-confidence belief got the long interval: %v", inferred.NextValidation)
	}
}

func TestActiveDuplicateMergesInsteadOfInserting(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.AddInferred(ctx, "C", types.CategoryAudience, "Mostly mobile viewers",
		[]string{"analytics sample"}, 0.5)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := tr.AddInferred(ctx, "C", types.CategoryAudience, "Mostly mobile viewers",
		[]string{"second sample"}, 0.8)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate active statement created a second row")
	}
	if second.Confidence != 0.8 {
		t.Errorf("confidence = %v, want the higher 0.8", second.Confidence)
	}
	if len(second.Evidence) != 2 {
		t.Errorf("evidence = %v, want both samples", second.Evidence)
	}
}

func TestInvalidateRetires(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	a, err := tr.AddInferred(ctx, "C", types.CategorySchedule, "Uploads Tuesdays", nil, 0.7)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	gone, err := tr.Invalidate(ctx, a.ID, "schedule changed to Fridays")
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if gone.Source != types.SourceInvalidated || gone.Confidence != 0.0 {
		t.Errorf("after invalidate: %+v", gone)
	}
	if gone.Status != types.AssumptionRetired {
		t.Errorf("status = %s, want retired", gone.Status)
	}

	// The natural key is free again: a fresh insert gets a new id.
	fresh, err := tr.AddInferred(ctx, "C", types.CategorySchedule, "Uploads Tuesdays", nil, 0.4)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if fresh.ID == a.ID {
		t.Error("retired assumption blocked a new active row")
	}
}

func TestRefreshValidationUsesThreshold(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now()

	a, err := tr.AddInferred(ctx, "C", types.CategoryContent, "Long-form essays", nil, 0.5)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	high, err := tr.RefreshValidation(ctx, a.ID, 0.95)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if high.LastValidated == nil {
		t.Error("last_validated not set")
	}
	if high.NextValidation.Before(now.Add(confirmedInterval - time.Minute)) {
		t.Errorf("high-confidence refresh got the short interval: %v", high.NextValidation)
	}

	low, err := tr.RefreshValidation(ctx, a.ID, 0.4)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if low.NextValidation.After(now.Add(defaultInterval + time.Minute)) {
		t.Errorf("low-confidence refresh got the long interval: %v", low.NextValidation)
	}
}

func TestHighConfidenceFiltering(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if _, err := tr.AddConfirmed(ctx, "C", types.CategoryTone, "Casual", nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := tr.AddInferred(ctx, "C", types.CategoryTopic, "Speedruns", nil, 0.9); err != nil {
		t.Fatalf("add: %v", err)
	}
	weak, err := tr.AddInferred(ctx, "C", types.CategoryAudience, "Teens", nil, 0.3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := tr.MarkNeedsReview(ctx, weak.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}

	got, err := tr.HighConfidence(ctx, "C", 0.7)
	if err != nil {
		t.Fatalf("high confidence: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d assumptions, want confirmed + strong inferred", len(got))
	}
	for _, a := range got {
		if a.Confidence < 0.7 {
			t.Errorf("weak belief leaked through: %+v", a)
		}
	}
}

func TestMissingCategories(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	if _, err := tr.AddConfirmed(ctx, "C", types.CategoryAudience, "Aged 18-24", nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Inferred beliefs do not satisfy a required category.
	if _, err := tr.AddInferred(ctx, "C", types.CategoryTone, "Casual", nil, 0.9); err != nil {
		t.Fatalf("add: %v", err)
	}

	missing, err := tr.MissingCategories(ctx, "C")
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	want := map[types.AssumptionCategory]bool{
		types.CategoryTone: true, types.CategoryContent: true, types.CategorySchedule: true,
		types.CategoryTopic: true, types.CategoryCompetitor: true,
	}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v", missing)
	}
	for _, c := range missing {
		if !want[c] {
			t.Errorf("unexpected missing category %s", c)
		}
		if c == types.CategoryPerformance {
			t.Error("performance must never be required")
		}
	}
}

func TestStale(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	past := time.Now().Add(-48 * time.Hour)
	tr.now = func() time.Time { return past }
	if _, err := tr.AddInferred(ctx, "C", types.CategoryTopic, "Old belief", nil, 0.5); err != nil {
		t.Fatalf("add: %v", err)
	}
	tr.now = time.Now
	if _, err := tr.AddInferred(ctx, "C", types.CategoryTone, "Fresh belief", nil, 0.5); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Only beliefs past their next_validation come due; the 7-day default
	// interval keeps the 48h-old one fresh, so age it artificially.
	old, err := tr.Stale(ctx)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("stale = %v, want none yet", old)
	}

	tr.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	old, err = tr.Stale(ctx)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(old) != 2 {
		t.Errorf("stale count = %d, want 2 after the default interval", len(old))
	}
}
