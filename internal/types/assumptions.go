package types

import "time"

// AssumptionSource is how a belief entered the knowledge base, and doubles
// as its validation state.
type AssumptionSource string

const (
	SourceConfirmed   AssumptionSource = "CONFIRMED"
	SourceInferred    AssumptionSource = "INFERRED"
	SourceNeedsReview AssumptionSource = "NEEDS_REVIEW"
	SourceInvalidated AssumptionSource = "INVALIDATED"
)

// AssumptionStatus tracks whether a belief participates in the active set.
type AssumptionStatus string

const (
	AssumptionActive  AssumptionStatus = "active"
	AssumptionRetired AssumptionStatus = "retired"
)

// AssumptionCategory is the closed set of belief categories about a channel.
type AssumptionCategory string

const (
	CategoryAudience    AssumptionCategory = "audience"
	CategoryTone        AssumptionCategory = "tone"
	CategoryContent     AssumptionCategory = "content"
	CategorySchedule    AssumptionCategory = "schedule"
	CategoryTopic       AssumptionCategory = "topic"
	CategoryCompetitor  AssumptionCategory = "competitor"
	CategoryPerformance AssumptionCategory = "performance"
)

// RequiredCategories lists the categories onboarding must cover. Performance
// beliefs are derived from analytics, never required up front.
var RequiredCategories = []AssumptionCategory{
	CategoryAudience, CategoryTone, CategoryContent,
	CategorySchedule, CategoryTopic, CategoryCompetitor,
}

// Assumption is a timestamped, evidence-bearing belief about a channel.
// Confirmed beliefs carry confidence 1.0; invalidated ones 0.0.
type Assumption struct {
	ID             string             `json:"id"`
	Channel        string             `json:"channel"`
	Category       AssumptionCategory `json:"category"`
	Statement      string             `json:"statement"`
	Evidence       []string           `json:"evidence"`
	Confidence     float64            `json:"confidence"`
	Source         AssumptionSource   `json:"source"`
	Status         AssumptionStatus   `json:"status"`
	ConfirmedAt    *time.Time         `json:"confirmed_at,omitempty"`
	LastValidated  *time.Time         `json:"last_validated,omitempty"`
	NextValidation time.Time          `json:"next_validation"`
	CreatedAt      time.Time          `json:"created_at"`
}
