// Package types holds the shared closed sets and data-transfer types used
// across the aide core: message intents, task types, providers, inference
// requests and results, heartbeat actions, queue tasks, and trust state.
package types

import "strings"

// MessageIntent classifies what the user is asking for.
type MessageIntent string

const (
	IntentSimpleQuery         MessageIntent = "simple_query"
	IntentComplexTask         MessageIntent = "complex_task"
	IntentMemoryStore         MessageIntent = "memory_store"
	IntentMemoryRecall        MessageIntent = "memory_recall"
	IntentSystemCommand       MessageIntent = "system_command"
	IntentTaskManagement      MessageIntent = "task_management"
	IntentCalendarQuery       MessageIntent = "calendar_query"
	IntentProfileQuery        MessageIntent = "profile_query"
	IntentPersonalModel       MessageIntent = "personal_model"
	IntentEmailManagement     MessageIntent = "email_management"
	IntentDevWatcher          MessageIntent = "dev_watcher"
	IntentMilestoneManagement MessageIntent = "milestone_management"
	IntentYouTubeIntelligence MessageIntent = "youtube_intelligence"
	IntentYouTubeManagement   MessageIntent = "youtube_management"
	IntentYouTubeStrategy     MessageIntent = "youtube_strategy"
)

// AllIntents lists every member of the closed intent set.
var AllIntents = []MessageIntent{
	IntentSimpleQuery,
	IntentComplexTask,
	IntentMemoryStore,
	IntentMemoryRecall,
	IntentSystemCommand,
	IntentTaskManagement,
	IntentCalendarQuery,
	IntentProfileQuery,
	IntentPersonalModel,
	IntentEmailManagement,
	IntentDevWatcher,
	IntentMilestoneManagement,
	IntentYouTubeIntelligence,
	IntentYouTubeManagement,
	IntentYouTubeStrategy,
}

// ParseIntent resolves a string to a MessageIntent, case-insensitively.
// Returns false if the string is not a member of the closed set.
func ParseIntent(s string) (MessageIntent, bool) {
	normalized := MessageIntent(strings.ToLower(strings.TrimSpace(s)))
	for _, intent := range AllIntents {
		if intent == normalized {
			return intent, true
		}
	}
	return "", false
}

// Valid reports whether the intent is a member of the closed set.
func (m MessageIntent) Valid() bool {
	_, ok := ParseIntent(string(m))
	return ok
}

// RoutingDecision is the output of the intent router.
type RoutingDecision struct {
	Intent          MessageIntent `json:"intent"`
	Confidence      float64       `json:"confidence"`
	Reasoning       string        `json:"reasoning"`
	UseComplexModel bool          `json:"use_complex_model"`
}
