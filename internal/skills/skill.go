// Package skills defines the skill contract and the registry that routes
// message intents to skills, plus the built-in skills: task manager,
// calendar, dev watcher, milestones, and YouTube channel intelligence.
package skills

import (
	"context"

	"aide/internal/types"
)

// Skill is the capability set every skill implements. Handle must be
// idempotent under request-id replay and must express recoverable failures
// through the response, never a panic.
type Skill interface {
	Metadata() types.SkillMetadata
	Initialize(ctx context.Context) error
	Handle(ctx context.Context, req types.SkillRequest) types.SkillResponse
	OnHeartbeat(ctx context.Context, userIDs []int64) []types.HeartbeatAction
	Cleanup() error
}

// PromptContributor is an optional extension: skills that carry user context
// worth injecting into the system prompt implement it.
type PromptContributor interface {
	SystemPromptFragment(ctx context.Context, userID int64) string
}

// Status is a skill's registry state.
type Status string

const (
	StatusReady Status = "ready"
	StatusError Status = "error"
)
