package skills

import (
	"context"
	"strings"
	"testing"

	"aide/internal/assumptions"
	"aide/internal/config"
	"aide/internal/store"
	"aide/internal/trust"
	"aide/internal/types"
)

type cannedInferrer struct {
	reply string
}

func (c *cannedInferrer) Infer(context.Context, types.InferenceRequest) (*types.InferenceResult, error) {
	return &types.InferenceResult{Content: c.reply, Provider: types.ProviderOllama}, nil
}

func newYouTubeFixture(t *testing.T) (*YouTube, *trust.Manager, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	tm := trust.NewManager(config.DefaultTrustConfig(), st)
	tracker := assumptions.NewTracker(st)
	y := NewYouTube(tracker, tm, st, &cannedInferrer{reply: "Thanks for watching!"})
	return y, tm, st
}

func draftRequest(id string) types.SkillRequest {
	return types.SkillRequest{
		ID:     id,
		UserID: 1,
		Intent: "draft_reply",
		Context: map[string]any{
			"comment":  "When is the next video?",
			"category": "question",
		},
	}
}

func TestDraftPendingForNewUser(t *testing.T) {
	y, _, _ := newYouTubeFixture(t)
	ctx := context.Background()

	resp := y.Handle(ctx, draftRequest("r1"))
	if !resp.Success {
		t.Fatalf("draft: %+v", resp)
	}
	if resp.Data["status"] != store.DraftPending {
		t.Errorf("status = %v, want pending for an untrusted user", resp.Data["status"])
	}
}

func TestDraftAutoApprovedAtEstablishedTrust(t *testing.T) {
	y, tm, _ := newYouTubeFixture(t)
	ctx := context.Background()

	// question auto-approves at established: 20 interactions at 100%.
	for i := 0; i < 20; i++ {
		if _, err := tm.RecordApproval(ctx, 1, "question"); err != nil {
			t.Fatalf("approval: %v", err)
		}
	}

	resp := y.Handle(ctx, draftRequest("r1"))
	if !resp.Success {
		t.Fatalf("draft: %+v", resp)
	}
	if resp.Data["status"] != store.DraftApproved {
		t.Errorf("status = %v, want auto-approved", resp.Data["status"])
	}
}

func TestRejectionsDropBackToPending(t *testing.T) {
	y, tm, _ := newYouTubeFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if _, err := tm.RecordApproval(ctx, 1, "question"); err != nil {
			t.Fatalf("approval: %v", err)
		}
	}

	// Reject drafts until the demotion window trips (max 3 in the last 10).
	for i := 0; i < 4; i++ {
		resp := y.Handle(ctx, draftRequest("gen"))
		if !resp.Success {
			t.Fatalf("draft: %+v", resp)
		}
		id, _ := resp.Data["draft_id"].(string)
		reject := y.Handle(ctx, types.SkillRequest{
			ID: "rej", UserID: 1, Intent: "reject_draft",
			Context: map[string]any{"draft_id": id},
		})
		// Auto-approved drafts cannot be rejected; feed the trust model
		// directly to keep the scenario moving.
		if !reject.Success {
			if _, err := tm.RecordRejection(ctx, 1, "question"); err != nil {
				t.Fatalf("rejection: %v", err)
			}
		}
	}

	state, err := tm.State(ctx, 1, "question")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Level >= types.TrustEstablished {
		t.Fatalf("level = %s, want demoted below established", state.Level)
	}

	resp := y.Handle(ctx, draftRequest("after"))
	if resp.Data["status"] != store.DraftPending {
		t.Errorf("status = %v, want pending after demotion", resp.Data["status"])
	}
}

func TestApprovalFeedsTrust(t *testing.T) {
	y, tm, _ := newYouTubeFixture(t)
	ctx := context.Background()

	resp := y.Handle(ctx, draftRequest("r1"))
	id, _ := resp.Data["draft_id"].(string)

	approve := y.Handle(ctx, types.SkillRequest{
		ID: "r2", UserID: 1, Intent: "approve_draft",
		Context: map[string]any{"draft_id": id},
	})
	if !approve.Success {
		t.Fatalf("approve: %+v", approve)
	}

	state, err := tm.State(ctx, 1, "question")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Approvals != 1 {
		t.Errorf("approvals = %d, want 1", state.Approvals)
	}
}

func TestOnboardingStatusListsMissing(t *testing.T) {
	y, _, _ := newYouTubeFixture(t)
	ctx := context.Background()

	resp := y.Handle(ctx, types.SkillRequest{ID: "r1", UserID: 1, Intent: "onboarding_status"})
	if !resp.Success {
		t.Fatalf("status: %+v", resp)
	}
	for _, category := range []string{"audience", "tone", "schedule"} {
		if !strings.Contains(resp.Message, category) {
			t.Errorf("missing categories should include %s: %q", category, resp.Message)
		}
	}
	if strings.Contains(resp.Message, "performance") {
		t.Error("performance must never be listed as required")
	}
}

func TestDraftUsesChannelBeliefs(t *testing.T) {
	y, _, _ := newYouTubeFixture(t)
	ctx := context.Background()

	if _, err := y.assumptions.AddConfirmed(ctx, "default", types.CategoryTone,
		"Casual and upbeat", nil); err != nil {
		t.Fatalf("add: %v", err)
	}

	list := y.Handle(ctx, types.SkillRequest{
		ID: "r1", UserID: 1, Intent: "list_assumptions",
	})
	if !list.Success || !strings.Contains(list.Message, "Casual and upbeat") {
		t.Errorf("list: %+v", list)
	}

	frag := y.SystemPromptFragment(ctx, 1)
	if !strings.Contains(frag, "Casual and upbeat") {
		t.Errorf("prompt fragment = %q", frag)
	}
}
