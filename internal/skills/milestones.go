package skills

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"aide/internal/types"
)

// milestoneThresholds are the activity counts worth celebrating.
var milestoneThresholds = []int{100, 500, 1000, 5000}

// Milestones watches the dev-watcher's counters and proposes a
// congratulation when a repo crosses a threshold. The two skills never call
// each other directly; milestones reads a snapshot each beat.
type Milestones struct {
	watcher *DevWatcher

	mu      sync.Mutex
	reached map[string]int // repo -> highest threshold already announced
}

// NewMilestones creates the milestone skill over the dev-watcher's counters.
func NewMilestones(watcher *DevWatcher) *Milestones {
	return &Milestones{watcher: watcher, reached: make(map[string]int)}
}

func (m *Milestones) Metadata() types.SkillMetadata {
	return types.SkillMetadata{
		Name:    "milestones",
		Version: "1.0.0",
		Intents: []types.MessageIntent{types.IntentMilestoneManagement},
	}
}

func (m *Milestones) Initialize(context.Context) error { return nil }
func (m *Milestones) Cleanup() error                   { return nil }

func (m *Milestones) Handle(_ context.Context, req types.SkillRequest) types.SkillResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.reached) == 0 {
		return types.OKResponse(req.ID, "No milestones reached yet.", nil)
	}
	repos := make([]string, 0, len(m.reached))
	for repo := range m.reached {
		repos = append(repos, repo)
	}
	sort.Strings(repos)

	var b strings.Builder
	for _, repo := range repos {
		fmt.Fprintf(&b, "%s: %d changes milestone\n", filepath.Base(repo), m.reached[repo])
	}
	return types.OKResponse(req.ID, b.String(), map[string]any{"count": len(repos)})
}

// OnHeartbeat checks each repo's lifetime counter against the thresholds.
func (m *Milestones) OnHeartbeat(_ context.Context, userIDs []int64) []types.HeartbeatAction {
	if m.watcher == nil || len(userIDs) == 0 {
		return nil
	}
	totals := m.watcher.TotalChanges()

	m.mu.Lock()
	defer m.mu.Unlock()

	var actions []types.HeartbeatAction
	for repo, total := range totals {
		crossed := 0
		for _, threshold := range milestoneThresholds {
			if total >= threshold && threshold > m.reached[repo] {
				crossed = threshold
			}
		}
		if crossed == 0 {
			continue
		}
		m.reached[repo] = crossed
		actions = append(actions, types.HeartbeatAction{
			SkillName:  "milestones",
			ActionType: types.ActionSendMessage,
			UserID:     userIDs[0],
			Data: map[string]any{
				"message": fmt.Sprintf("Milestone: %s crossed %d changes.", filepath.Base(repo), crossed),
			},
			Priority: 4,
		})
	}
	return actions
}
