package skills

import (
	"strings"

	"aide/internal/types"
)

// subIntentRule maps message keywords to a skill sub-intent.
type subIntentRule struct {
	keywords  []string
	subIntent string
}

// subIntentTables is the keyword parser per top-level intent. Rules are
// checked in order; the first hit wins, so more specific phrases come first.
var subIntentTables = map[types.MessageIntent][]subIntentRule{
	types.IntentTaskManagement: {
		{[]string{"done", "complete", "finished"}, "complete_task"},
		{[]string{"add", "create", "remind me to", "new task"}, "create_task"},
		{[]string{"list", "show", "what do i", "my tasks"}, "list_tasks"},
		{[]string{"overdue", "late"}, "list_overdue"},
	},
	types.IntentCalendarQuery: {
		{[]string{"add", "schedule", "book"}, "add_event"},
		{[]string{"today", "tomorrow", "this week", "upcoming", "list", "what"}, "list_events"},
	},
	types.IntentDevWatcher: {
		{[]string{"status", "activity", "what changed"}, "activity_status"},
	},
	types.IntentMilestoneManagement: {
		{[]string{"progress", "status", "list", "show"}, "list_milestones"},
	},
	types.IntentYouTubeIntelligence: {
		{[]string{"confirm"}, "confirm_assumption"},
		{[]string{"wrong", "incorrect", "not true", "invalidate"}, "invalidate_assumption"},
		{[]string{"assumption", "know about", "believe"}, "list_assumptions"},
		{[]string{"onboard", "set up", "setup"}, "onboarding_status"},
	},
	types.IntentYouTubeManagement: {
		{[]string{"approve"}, "approve_draft"},
		{[]string{"reject"}, "reject_draft"},
		{[]string{"reply", "respond", "draft"}, "draft_reply"},
		{[]string{"pending", "review"}, "list_drafts"},
	},
}

// defaultSubIntents is the fallback when no keyword matches.
var defaultSubIntents = map[types.MessageIntent]string{
	types.IntentTaskManagement:      "list_tasks",
	types.IntentCalendarQuery:       "list_events",
	types.IntentDevWatcher:          "activity_status",
	types.IntentMilestoneManagement: "list_milestones",
	types.IntentYouTubeIntelligence: "list_assumptions",
	types.IntentYouTubeManagement:   "list_drafts",
}

// SubIntent derives the skill-specific sub-intent from the message text.
func SubIntent(intent types.MessageIntent, message string) string {
	lower := strings.ToLower(message)
	for _, rule := range subIntentTables[intent] {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.subIntent
			}
		}
	}
	return defaultSubIntents[intent]
}
