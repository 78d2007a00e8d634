// Package assumptions maintains the versioned knowledge base of beliefs
// about a channel: confirmed facts, inferred guesses with confidence, and a
// re-validation schedule that decays stale knowledge back into review.
package assumptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/types"
)

// Validation intervals. High-confidence beliefs are re-checked on the long
// interval, everything else on the short one.
const (
	confirmedInterval   = 30 * 24 * time.Hour
	defaultInterval     = 7 * 24 * time.Hour
	confidenceThreshold = 0.9
)

// Tracker manages assumptions over the relational store.
type Tracker struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewTracker creates a tracker backed by the store.
func NewTracker(st *store.Store) *Tracker {
	return &Tracker{
		store: st,
		log:   logging.Named(logging.ComponentSkills),
		now:   time.Now,
	}
}

func validationInterval(confidence float64) time.Duration {
	if confidence >= confidenceThreshold {
		return confirmedInterval
	}
	return defaultInterval
}

// AddConfirmed records a user-confirmed belief at full confidence. An active
// duplicate for the same (channel, category, statement) is promoted in place
// instead of inserted twice.
func (t *Tracker) AddConfirmed(ctx context.Context, channel string, category types.AssumptionCategory, statement string, evidence []string) (*types.Assumption, error) {
	now := t.now()

	if existing, err := t.store.FindActiveAssumption(ctx, channel, category, statement); err != nil {
		return nil, err
	} else if existing != nil {
		existing.Evidence = append(existing.Evidence, evidence...)
		return t.transition(ctx, existing, types.SourceConfirmed, 1.0, "re-confirmed")
	}

	a := &types.Assumption{
		ID:             uuid.NewString(),
		Channel:        channel,
		Category:       category,
		Statement:      statement,
		Evidence:       evidence,
		Confidence:     1.0,
		Source:         types.SourceConfirmed,
		Status:         types.AssumptionActive,
		ConfirmedAt:    &now,
		NextValidation: now.Add(confirmedInterval),
		CreatedAt:      now,
	}
	if err := t.store.InsertAssumption(ctx, a); err != nil {
		return nil, err
	}
	t.log.Debug("assumption confirmed",
		zap.String("channel", channel),
		zap.String("category", string(category)),
		zap.String("statement", statement))
	return a, nil
}

// AddInferred records a machine-inferred belief. Inserting the same active
// statement again merges evidence and keeps the higher confidence.
func (t *Tracker) AddInferred(ctx context.Context, channel string, category types.AssumptionCategory, statement string, evidence []string, confidence float64) (*types.Assumption, error) {
	confidence = clamp01(confidence)
	now := t.now()

	if existing, err := t.store.FindActiveAssumption(ctx, channel, category, statement); err != nil {
		return nil, err
	} else if existing != nil {
		existing.Evidence = append(existing.Evidence, evidence...)
		if confidence > existing.Confidence && existing.Source != types.SourceConfirmed {
			existing.Confidence = confidence
		}
		if err := t.store.UpdateAssumption(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	a := &types.Assumption{
		ID:             uuid.NewString(),
		Channel:        channel,
		Category:       category,
		Statement:      statement,
		Evidence:       evidence,
		Confidence:     confidence,
		Source:         types.SourceInferred,
		Status:         types.AssumptionActive,
		NextValidation: now.Add(defaultInterval),
		CreatedAt:      now,
	}
	if err := t.store.InsertAssumption(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Confirm promotes an assumption to confirmed at full confidence.
func (t *Tracker) Confirm(ctx context.Context, id string) (*types.Assumption, error) {
	a, err := t.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.transition(ctx, a, types.SourceConfirmed, 1.0, "confirmed by user")
}

// Invalidate retires a belief. The reason joins the evidence trail.
func (t *Tracker) Invalidate(ctx context.Context, id, reason string) (*types.Assumption, error) {
	a, err := t.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		a.Evidence = append(a.Evidence, "invalidated: "+reason)
	}
	a.Status = types.AssumptionRetired
	return t.transition(ctx, a, types.SourceInvalidated, 0.0, reason)
}

// MarkNeedsReview flags a belief for human review without changing its
// confidence.
func (t *Tracker) MarkNeedsReview(ctx context.Context, id string) (*types.Assumption, error) {
	a, err := t.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.transition(ctx, a, types.SourceNeedsReview, a.Confidence, "flagged for review")
}

// RefreshValidation records a validation pass with a new confidence and
// pushes the next check out by the matching interval.
func (t *Tracker) RefreshValidation(ctx context.Context, id string, confidence float64) (*types.Assumption, error) {
	a, err := t.get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := t.now()
	a.Confidence = clamp01(confidence)
	a.LastValidated = &now
	a.NextValidation = now.Add(validationInterval(a.Confidence))
	if err := t.store.UpdateAssumption(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// HighConfidence returns the beliefs worth acting on: everything confirmed
// plus inferred or review-flagged beliefs at or above the threshold.
func (t *Tracker) HighConfidence(ctx context.Context, channel string, threshold float64) ([]*types.Assumption, error) {
	all, err := t.store.ChannelAssumptions(ctx, channel)
	if err != nil {
		return nil, err
	}
	var out []*types.Assumption
	for _, a := range all {
		switch a.Source {
		case types.SourceConfirmed:
			out = append(out, a)
		case types.SourceInferred, types.SourceNeedsReview:
			if a.Confidence >= threshold {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// MissingCategories lists required categories with no confirmed belief yet.
func (t *Tracker) MissingCategories(ctx context.Context, channel string) ([]types.AssumptionCategory, error) {
	all, err := t.store.ChannelAssumptions(ctx, channel)
	if err != nil {
		return nil, err
	}
	confirmed := make(map[types.AssumptionCategory]bool)
	for _, a := range all {
		if a.Source == types.SourceConfirmed {
			confirmed[a.Category] = true
		}
	}
	var missing []types.AssumptionCategory
	for _, c := range types.RequiredCategories {
		if !confirmed[c] {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

// Stale returns beliefs whose next validation is overdue.
func (t *Tracker) Stale(ctx context.Context) ([]*types.Assumption, error) {
	return t.store.StaleAssumptions(ctx, t.now())
}

// Get returns one assumption by id.
func (t *Tracker) Get(ctx context.Context, id string) (*types.Assumption, error) {
	return t.get(ctx, id)
}

func (t *Tracker) get(ctx context.Context, id string) (*types.Assumption, error) {
	a, err := t.store.GetAssumption(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("assumption %s not found", id)
	}
	return a, nil
}

// transition applies a source change with its confidence consequence and
// reschedules validation.
func (t *Tracker) transition(ctx context.Context, a *types.Assumption, source types.AssumptionSource, confidence float64, note string) (*types.Assumption, error) {
	now := t.now()
	a.Source = source
	a.Confidence = confidence
	switch source {
	case types.SourceConfirmed:
		a.ConfirmedAt = &now
		a.NextValidation = now.Add(confirmedInterval)
	case types.SourceInvalidated:
		// Retired beliefs never come due again.
	default:
		a.NextValidation = now.Add(validationInterval(confidence))
	}
	if err := t.store.UpdateAssumption(ctx, a); err != nil {
		return nil, err
	}
	t.log.Debug("assumption transition",
		zap.String("id", a.ID),
		zap.String("source", string(source)),
		zap.String("note", note))
	return a, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
