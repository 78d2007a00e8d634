package skills

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aide/internal/assumptions"
	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/trust"
	"aide/internal/types"
)

// Inferrer is the slice of the broker the YouTube skill needs for drafting
// replies.
type Inferrer interface {
	Infer(ctx context.Context, req types.InferenceRequest) (*types.InferenceResult, error)
}

// YouTube is the channel intelligence skill: it maintains the assumption
// knowledge base, drafts comment replies, and gates their auto-approval
// through the trust model.
type YouTube struct {
	assumptions *assumptions.Tracker
	trust       *trust.Manager
	store       *store.Store
	broker      Inferrer
	log         *zap.Logger
}

// NewYouTube creates the YouTube skill.
func NewYouTube(tracker *assumptions.Tracker, tm *trust.Manager, st *store.Store, broker Inferrer) *YouTube {
	return &YouTube{
		assumptions: tracker,
		trust:       tm,
		store:       st,
		broker:      broker,
		log:         logging.Named(logging.ComponentSkills),
	}
}

func (y *YouTube) Metadata() types.SkillMetadata {
	return types.SkillMetadata{
		Name:        "youtube",
		Version:     "1.0.0",
		Permissions: []string{"store:assumptions", "store:drafts", "broker:infer"},
		Collections: []string{"assumptions", "reply_drafts"},
		Intents: []types.MessageIntent{
			types.IntentYouTubeIntelligence,
			types.IntentYouTubeManagement,
			types.IntentYouTubeStrategy,
		},
	}
}

func (y *YouTube) Initialize(context.Context) error { return nil }
func (y *YouTube) Cleanup() error                   { return nil }

func (y *YouTube) Handle(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	switch req.Intent {
	case "onboarding_status":
		return y.onboardingStatus(ctx, req)
	case "confirm_assumption":
		return y.confirmAssumption(ctx, req)
	case "invalidate_assumption":
		return y.invalidateAssumption(ctx, req)
	case "list_assumptions":
		return y.listAssumptions(ctx, req)
	case "draft_reply":
		return y.draftReply(ctx, req)
	case "approve_draft":
		return y.resolveDraft(ctx, req, store.DraftApproved)
	case "reject_draft":
		return y.resolveDraft(ctx, req, store.DraftRejected)
	default:
		return y.listDrafts(ctx, req)
	}
}

func channelFrom(req types.SkillRequest) string {
	if channel, ok := req.Context["channel"].(string); ok && channel != "" {
		return channel
	}
	return "default"
}

func (y *YouTube) onboardingStatus(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	missing, err := y.assumptions.MissingCategories(ctx, channelFrom(req))
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	if len(missing) == 0 {
		return types.OKResponse(req.ID, "Onboarding is complete; every required category is confirmed.", nil)
	}
	names := make([]string, len(missing))
	for i, c := range missing {
		names[i] = string(c)
	}
	return types.OKResponse(req.ID,
		"Still need confirmed beliefs for: "+strings.Join(names, ", "),
		map[string]any{"missing": names})
}

func (y *YouTube) confirmAssumption(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	id, ok := req.Context["assumption_id"].(string)
	if !ok || id == "" {
		return types.ErrorResponse(req.ID, "no assumption id to confirm")
	}
	a, err := y.assumptions.Confirm(ctx, id)
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	return types.OKResponse(req.ID,
		fmt.Sprintf("Confirmed: %s", a.Statement),
		map[string]any{"assumption_id": a.ID})
}

func (y *YouTube) invalidateAssumption(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	id, ok := req.Context["assumption_id"].(string)
	if !ok || id == "" {
		return types.ErrorResponse(req.ID, "no assumption id to invalidate")
	}
	a, err := y.assumptions.Invalidate(ctx, id, req.Message)
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	return types.OKResponse(req.ID,
		fmt.Sprintf("Dropped: %s", a.Statement),
		map[string]any{"assumption_id": a.ID})
}

func (y *YouTube) listAssumptions(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	beliefs, err := y.assumptions.HighConfidence(ctx, channelFrom(req), 0.7)
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	if len(beliefs) == 0 {
		return types.OKResponse(req.ID, "I don't have confident beliefs about this channel yet.", nil)
	}
	var b strings.Builder
	for _, a := range beliefs {
		fmt.Fprintf(&b, "- [%s] %s (%.0f%%, %s)\n", a.Category, a.Statement, a.Confidence*100, a.Source)
	}
	return types.OKResponse(req.ID, b.String(), map[string]any{"count": len(beliefs)})
}

// draftReply generates a reply draft for a comment and inserts it pending or
// approved depending on the user's trust level for the comment category.
func (y *YouTube) draftReply(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	comment, _ := req.Context["comment"].(string)
	if comment == "" {
		comment = strings.TrimSpace(req.Message)
	}
	if comment == "" {
		return types.ErrorResponse(req.ID, "no comment to reply to")
	}
	category, _ := req.Context["category"].(string)
	if category == "" {
		category = "question"
	}
	channel := channelFrom(req)

	text, err := y.generateDraft(ctx, channel, category, comment)
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}

	draft := &store.ReplyDraft{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		Channel:       channel,
		Category:      category,
		SourceComment: comment,
		Draft:         text,
	}
	if err := y.store.InsertReplyDraft(ctx, draft); err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}

	status := store.DraftPending
	auto, err := y.trust.ShouldAutoApprove(ctx, req.UserID, category)
	if err != nil {
		y.log.Warn("trust check failed, keeping draft pending", zap.Error(err))
	} else if auto {
		if err := y.store.ResolveDraft(ctx, draft.ID, store.DraftApproved); err == nil {
			status = store.DraftApproved
		}
	}

	msg := fmt.Sprintf("Drafted a reply (awaiting your review): %s", text)
	if status == store.DraftApproved {
		msg = fmt.Sprintf("Reply approved automatically: %s", text)
	}
	return types.OKResponse(req.ID, msg, map[string]any{
		"draft_id": draft.ID,
		"status":   status,
	})
}

func (y *YouTube) generateDraft(ctx context.Context, channel, category, comment string) (string, error) {
	if y.broker == nil {
		return "", fmt.Errorf("inference broker not configured")
	}

	var promptContext strings.Builder
	beliefs, err := y.assumptions.HighConfidence(ctx, channel, 0.7)
	if err == nil {
		for _, a := range beliefs {
			fmt.Fprintf(&promptContext, "- %s\n", a.Statement)
		}
	}

	result, err := y.broker.Infer(ctx, types.InferenceRequest{
		TaskType: types.TaskCreativeWriting,
		SystemPrompt: "You draft short, friendly YouTube comment replies in the creator's voice. " +
			"What we know about the channel:\n" + promptContext.String(),
		Prompt:      fmt.Sprintf("Comment (%s): %s\n\nDraft a reply.", category, comment),
		MaxTokens:   256,
		Temperature: 0.8,
	})
	if err != nil {
		return "", fmt.Errorf("draft generation failed: %w", err)
	}
	return strings.TrimSpace(result.Content), nil
}

// resolveDraft closes out a pending draft and feeds the outcome into the
// trust model: approvals build autonomy, rejections erode it.
func (y *YouTube) resolveDraft(ctx context.Context, req types.SkillRequest, status string) types.SkillResponse {
	id, ok := req.Context["draft_id"].(string)
	if !ok || id == "" {
		// Fall back to the oldest pending draft.
		pending, err := y.store.PendingDrafts(ctx, req.UserID)
		if err != nil || len(pending) == 0 {
			return types.ErrorResponse(req.ID, "no pending draft to resolve")
		}
		id = pending[0].ID
	}

	draft, err := y.store.GetDraft(ctx, id)
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	if err := y.store.ResolveDraft(ctx, id, status); err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}

	switch status {
	case store.DraftApproved:
		if _, err := y.trust.RecordApproval(ctx, req.UserID, draft.Category); err != nil {
			y.log.Warn("trust update failed", zap.Error(err))
		}
		return types.OKResponse(req.ID, "Approved. I'll post it.", map[string]any{"draft_id": id})
	default:
		if _, err := y.trust.RecordRejection(ctx, req.UserID, draft.Category); err != nil {
			y.log.Warn("trust update failed", zap.Error(err))
		}
		return types.OKResponse(req.ID, "Rejected and discarded.", map[string]any{"draft_id": id})
	}
}

func (y *YouTube) listDrafts(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	pending, err := y.store.PendingDrafts(ctx, req.UserID)
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	if len(pending) == 0 {
		return types.OKResponse(req.ID, "No drafts waiting for review.", nil)
	}
	var b strings.Builder
	for i, d := range pending {
		fmt.Fprintf(&b, "%d. [%s] %q -> %q\n", i+1, d.Category, d.SourceComment, d.Draft)
	}
	return types.OKResponse(req.ID, b.String(), map[string]any{"count": len(pending)})
}

// OnHeartbeat flags stale assumptions for review and nudges about pending
// drafts.
func (y *YouTube) OnHeartbeat(ctx context.Context, userIDs []int64) []types.HeartbeatAction {
	var actions []types.HeartbeatAction

	stale, err := y.assumptions.Stale(ctx)
	if err != nil {
		y.log.Warn("stale assumption lookup failed", zap.Error(err))
	}
	for _, a := range stale {
		if _, err := y.assumptions.MarkNeedsReview(ctx, a.ID); err != nil {
			continue
		}
		if len(userIDs) > 0 {
			actions = append(actions, types.HeartbeatAction{
				SkillName:  "youtube",
				ActionType: types.ActionSendMessage,
				UserID:     userIDs[0],
				Data: map[string]any{
					"message": fmt.Sprintf("Worth re-checking: %q (%s) hasn't been validated in a while.",
						a.Statement, a.Category),
				},
				Priority: 3,
			})
		}
	}

	for _, userID := range userIDs {
		pending, err := y.store.PendingDrafts(ctx, userID)
		if err != nil || len(pending) == 0 {
			continue
		}
		actions = append(actions, types.HeartbeatAction{
			SkillName:  "youtube",
			ActionType: types.ActionSendMessage,
			UserID:     userID,
			Data: map[string]any{
				"message": fmt.Sprintf("%d reply draft(s) are waiting for your review.", len(pending)),
			},
			Priority: 4,
		})
	}
	return actions
}

// SystemPromptFragment surfaces the channel's confirmed beliefs to the
// orchestrator's prompt.
func (y *YouTube) SystemPromptFragment(ctx context.Context, _ int64) string {
	beliefs, err := y.assumptions.HighConfidence(ctx, "default", 0.9)
	if err != nil || len(beliefs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known facts about the user's YouTube channel:\n")
	for _, a := range beliefs {
		fmt.Fprintf(&b, "- %s\n", a.Statement)
	}
	return b.String()
}
