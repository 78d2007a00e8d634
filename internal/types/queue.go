package types

import "time"

// TaskPriority is the queue band. Higher values dequeue first.
type TaskPriority int

const (
	PriorityScheduled TaskPriority = 0
	PriorityNormal    TaskPriority = 1
	PriorityHigh      TaskPriority = 2
	PriorityCritical  TaskPriority = 3
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityScheduled:
		return "scheduled"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskRunning  TaskStatus = "running"
	TaskDone     TaskStatus = "done"
	TaskFailed   TaskStatus = "failed"
	TaskDeferred TaskStatus = "deferred"
)

// QueueTask is one persisted unit of deferred work.
type QueueTask struct {
	ID           string         `json:"id"`
	TaskType     string         `json:"task_type"`
	UserID       int64          `json:"user_id"`
	Payload      map[string]any `json:"payload"`
	Priority     TaskPriority   `json:"priority"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
	Attempts     int            `json:"attempts"`
	MaxAttempts  int            `json:"max_attempts"`
	Status       TaskStatus     `json:"status"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
