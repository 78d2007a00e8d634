package types

import "time"

// Action types produced by skill heartbeats.
const (
	ActionSendMessage      = "send_message"
	ActionUpdateMemory     = "update_memory"
	ActionScheduleFollowup = "schedule_followup"
)

// HeartbeatAction is a unit of proactive work proposed by a skill.
// Priority is an ordering hint in [1,10]: 9-10 critical, 7-8 high,
// 4-6 normal, 1-3 low.
type HeartbeatAction struct {
	SkillName  string         `json:"skill_name"`
	ActionType string         `json:"action_type"`
	UserID     int64          `json:"user_id"`
	Data       map[string]any `json:"data"`
	Priority   int            `json:"priority"`
}

// ActionResult is the executor's verdict on one action.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// EventStatus is the lifecycle state of a scheduled event.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
)

// ScheduledEvent is a one-shot action that fires once now >= TriggerTime.
type ScheduledEvent struct {
	ID          string         `json:"id"`
	UserID      int64          `json:"user_id"`
	SkillName   string         `json:"skill_name"`
	ActionType  string         `json:"action_type"`
	Data        map[string]any `json:"data"`
	TriggerTime time.Time      `json:"trigger_time"`
	Status      EventStatus    `json:"status"`
	TriggeredAt *time.Time     `json:"triggered_at,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Action converts a pending event back into the executor's input shape.
func (e *ScheduledEvent) Action() HeartbeatAction {
	return HeartbeatAction{
		SkillName:  e.SkillName,
		ActionType: e.ActionType,
		UserID:     e.UserID,
		Data:       e.Data,
		Priority:   5,
	}
}
