package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aide/internal/logging"
	"aide/internal/types"
)

// MessageSender delivers a proactive message to a user's direct channel,
// which shares the user's id. The transport layer implements it.
type MessageSender interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

// MemoryWriter persists a memory entry produced by an action.
type MemoryWriter interface {
	StoreMemory(ctx context.Context, userID int64, kind, content string) error
}

// FollowupScheduler accepts a one-shot event for a later beat. The scheduler
// implements it, which lets schedule_followup actions loop back.
type FollowupScheduler interface {
	ScheduleEvent(ev types.ScheduledEvent) string
}

// Executor runs one heartbeat action and reports the outcome. It never
// returns an error to its caller; failures are carried in the result.
type Executor struct {
	sender MessageSender
	memory MemoryWriter
	events FollowupScheduler
	log    *zap.Logger
}

// NewExecutor creates an executor. Any dependency may be nil; actions that
// need a missing one fail with a configuration error in the result.
func NewExecutor(sender MessageSender, memory MemoryWriter, events FollowupScheduler) *Executor {
	return &Executor{
		sender: sender,
		memory: memory,
		events: events,
		log:    logging.Named(logging.ComponentScheduler),
	}
}

// SetEventSink wires the followup target after construction. The scheduler
// and executor reference each other, so one side is attached late.
func (e *Executor) SetEventSink(events FollowupScheduler) {
	e.events = events
}

// Execute dispatches one action by type.
func (e *Executor) Execute(ctx context.Context, action types.HeartbeatAction) types.ActionResult {
	var result types.ActionResult
	switch action.ActionType {
	case types.ActionSendMessage:
		result = e.sendMessage(ctx, action)
	case types.ActionUpdateMemory:
		result = e.updateMemory(ctx, action)
	case types.ActionScheduleFollowup:
		result = e.scheduleFollowup(action)
	default:
		result = types.ActionResult{Error: fmt.Sprintf("unknown action type: %s", action.ActionType)}
	}

	if result.Success {
		e.log.Debug("action executed",
			zap.String("skill", action.SkillName),
			zap.String("type", action.ActionType),
			zap.Int64("user", action.UserID))
	} else {
		e.log.Warn("action failed",
			zap.String("skill", action.SkillName),
			zap.String("type", action.ActionType),
			zap.String("error", result.Error))
	}
	return result
}

func (e *Executor) sendMessage(ctx context.Context, action types.HeartbeatAction) types.ActionResult {
	if e.sender == nil {
		return types.ActionResult{Error: "transport not configured"}
	}
	text, _ := action.Data["message"].(string)
	if text == "" {
		return types.ActionResult{Error: "send_message action has no message"}
	}
	if err := e.sender.SendMessage(ctx, action.UserID, text); err != nil {
		return types.ActionResult{Error: err.Error()}
	}
	return types.ActionResult{Success: true, Message: "message sent"}
}

func (e *Executor) updateMemory(ctx context.Context, action types.HeartbeatAction) types.ActionResult {
	if e.memory == nil {
		return types.ActionResult{Error: "memory not configured"}
	}
	content, _ := action.Data["content"].(string)
	if content == "" {
		return types.ActionResult{Error: "update_memory action has no content"}
	}
	kind, _ := action.Data["kind"].(string)
	if kind == "" {
		kind = "heartbeat"
	}
	if err := e.memory.StoreMemory(ctx, action.UserID, kind, content); err != nil {
		return types.ActionResult{Error: err.Error()}
	}
	return types.ActionResult{Success: true, Message: "memory updated"}
}

func (e *Executor) scheduleFollowup(action types.HeartbeatAction) types.ActionResult {
	if e.events == nil {
		return types.ActionResult{Error: "scheduler not configured"}
	}

	trigger, err := followupTrigger(action.Data)
	if err != nil {
		return types.ActionResult{Error: err.Error()}
	}
	message, _ := action.Data["message"].(string)
	if message == "" {
		return types.ActionResult{Error: "schedule_followup action has no message"}
	}

	id := e.events.ScheduleEvent(types.ScheduledEvent{
		ID:          uuid.NewString(),
		UserID:      action.UserID,
		SkillName:   action.SkillName,
		ActionType:  types.ActionSendMessage,
		Data:        map[string]any{"message": message},
		TriggerTime: trigger,
		Status:      types.EventPending,
	})
	return types.ActionResult{Success: true, Message: "followup scheduled " + id}
}

// followupTrigger reads either an absolute trigger_time (RFC 3339) or a
// relative delay_seconds out of the action data.
func followupTrigger(data map[string]any) (time.Time, error) {
	if raw, ok := data["trigger_time"].(string); ok && raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad trigger_time: %w", err)
		}
		return t, nil
	}
	if secs, ok := data["delay_seconds"].(float64); ok && secs > 0 {
		return time.Now().Add(time.Duration(secs) * time.Second), nil
	}
	return time.Time{}, fmt.Errorf("schedule_followup needs trigger_time or delay_seconds")
}
