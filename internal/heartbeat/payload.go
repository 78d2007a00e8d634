package heartbeat

import (
	"context"
	"fmt"
	"strings"

	"aide/internal/types"
)

// TaskHeartbeatAction is the queue task type the scheduler enqueues deferred
// actions under.
const TaskHeartbeatAction = "heartbeat_action"

func actionPayload(a types.HeartbeatAction) map[string]any {
	return map[string]any{
		"skill_name":  a.SkillName,
		"action_type": a.ActionType,
		"data":        a.Data,
		"priority":    a.Priority,
	}
}

// ActionFromPayload rebuilds an action from a queue task payload. Numeric
// values arrive as float64 after the JSON round trip.
func ActionFromPayload(userID int64, payload map[string]any) types.HeartbeatAction {
	a := types.HeartbeatAction{UserID: userID}
	a.SkillName, _ = payload["skill_name"].(string)
	a.ActionType, _ = payload["action_type"].(string)
	if data, ok := payload["data"].(map[string]any); ok {
		a.Data = data
	}
	if p, ok := payload["priority"].(float64); ok {
		a.Priority = int(p)
	}
	return a
}

// QueueHandler adapts the executor to the queue's handler shape. A failed
// action becomes an error so the queue retries it with backoff.
func (e *Executor) QueueHandler() func(ctx context.Context, task *types.QueueTask) error {
	return func(ctx context.Context, task *types.QueueTask) error {
		action := ActionFromPayload(task.UserID, task.Payload)
		result := e.Execute(ctx, action)
		if !result.Success {
			return fmt.Errorf("heartbeat action %s: %s", action.ActionType, result.Error)
		}
		return nil
	}
}

func isRateLimitError(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "rate limit")
}
