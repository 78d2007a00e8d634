package skills

import (
	"context"
	"strings"
	"testing"

	"aide/internal/types"
)

func TestMilestoneFiresOncePerThreshold(t *testing.T) {
	w := NewDevWatcher([]string{"/tmp/repo"})
	m := NewMilestones(w)
	ctx := context.Background()

	w.mu.Lock()
	w.total["/tmp/repo"] = 120
	w.mu.Unlock()

	actions := m.OnHeartbeat(ctx, []int64{1})
	if len(actions) != 1 {
		t.Fatalf("actions = %+v", actions)
	}
	msg, _ := actions[0].Data["message"].(string)
	if !strings.Contains(msg, "100") {
		t.Errorf("message = %q", msg)
	}

	// Same threshold does not re-fire.
	if again := m.OnHeartbeat(ctx, []int64{1}); len(again) != 0 {
		t.Errorf("milestone repeated: %+v", again)
	}

	// Crossing the next threshold fires again.
	w.mu.Lock()
	w.total["/tmp/repo"] = 600
	w.mu.Unlock()
	next := m.OnHeartbeat(ctx, []int64{1})
	if len(next) != 1 {
		t.Fatalf("next actions = %+v", next)
	}
	if msg, _ := next[0].Data["message"].(string); !strings.Contains(msg, "500") {
		t.Errorf("message = %q", msg)
	}
}

func TestMilestoneHandleLists(t *testing.T) {
	w := NewDevWatcher(nil)
	m := NewMilestones(w)
	ctx := context.Background()

	resp := m.Handle(ctx, types.SkillRequest{ID: "r1", UserID: 1, Intent: "list_milestones"})
	if !resp.Success || !strings.Contains(resp.Message, "No milestones") {
		t.Errorf("resp = %+v", resp)
	}
}
