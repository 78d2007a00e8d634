package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/types"
)

// TaskManager is the to-do skill: create, list, and complete tasks, with
// overdue nudges on the heartbeat.
type TaskManager struct {
	store *store.Store
	log   *zap.Logger
}

// NewTaskManager creates the task skill.
func NewTaskManager(st *store.Store) *TaskManager {
	return &TaskManager{store: st, log: logging.Named(logging.ComponentSkills)}
}

func (t *TaskManager) Metadata() types.SkillMetadata {
	return types.SkillMetadata{
		Name:        "task_manager",
		Version:     "1.0.0",
		Permissions: []string{"store:tasks"},
		Collections: []string{"tasks"},
		Intents:     []types.MessageIntent{types.IntentTaskManagement},
	}
}

func (t *TaskManager) Initialize(context.Context) error { return nil }
func (t *TaskManager) Cleanup() error                   { return nil }

func (t *TaskManager) Handle(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	switch req.Intent {
	case "create_task":
		return t.createTask(ctx, req)
	case "complete_task":
		return t.completeTask(ctx, req)
	case "list_overdue":
		return t.listTasks(ctx, req, true)
	default:
		return t.listTasks(ctx, req, false)
	}
}

// createTask is idempotent per open title: replaying the same create returns
// the existing task instead of inserting a duplicate.
func (t *TaskManager) createTask(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	title := extractTaskTitle(req.Message)
	if title == "" {
		return types.ErrorResponse(req.ID, "could not find a task description in the message")
	}

	if existing, err := t.store.FindTaskByTitle(ctx, req.UserID, title); err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	} else if existing != nil {
		return types.OKResponse(req.ID,
			fmt.Sprintf("%q is already on your list.", title),
			map[string]any{"task_id": existing.ID})
	}

	task := &store.Task{ID: uuid.NewString(), UserID: req.UserID, Title: title}
	if err := t.store.InsertTask(ctx, task); err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	t.log.Debug("task created", zap.Int64("user", req.UserID), zap.String("title", title))
	return types.OKResponse(req.ID,
		fmt.Sprintf("Added %q to your tasks.", title),
		map[string]any{"task_id": task.ID})
}

func (t *TaskManager) completeTask(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	open, err := t.store.OpenTasks(ctx, req.UserID)
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	lower := strings.ToLower(req.Message)
	for _, task := range open {
		if strings.Contains(lower, strings.ToLower(task.Title)) {
			changed, err := t.store.CompleteUserTask(ctx, req.UserID, task.ID)
			if err != nil {
				return types.ErrorResponse(req.ID, err.Error())
			}
			msg := fmt.Sprintf("Marked %q as done.", task.Title)
			if !changed {
				msg = fmt.Sprintf("%q was already done.", task.Title)
			}
			return types.OKResponse(req.ID, msg, map[string]any{"task_id": task.ID})
		}
	}
	return types.ErrorResponse(req.ID, "no open task matches that message")
}

func (t *TaskManager) listTasks(ctx context.Context, req types.SkillRequest, overdueOnly bool) types.SkillResponse {
	var tasks []*store.Task
	var err error
	if overdueOnly {
		tasks, err = t.store.OverdueTasks(ctx, req.UserID, time.Now())
	} else {
		tasks, err = t.store.OpenTasks(ctx, req.UserID)
	}
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	if len(tasks) == 0 {
		msg := "You have no open tasks."
		if overdueOnly {
			msg = "Nothing is overdue."
		}
		return types.OKResponse(req.ID, msg, nil)
	}

	var b strings.Builder
	for i, task := range tasks {
		fmt.Fprintf(&b, "%d. %s", i+1, task.Title)
		if task.DueAt != nil {
			fmt.Fprintf(&b, " (due %s)", task.DueAt.Format("Jan 2 15:04"))
		}
		b.WriteString("\n")
	}
	return types.OKResponse(req.ID, b.String(), map[string]any{"count": len(tasks)})
}

// OnHeartbeat proposes an overdue nudge per user with overdue tasks.
func (t *TaskManager) OnHeartbeat(ctx context.Context, userIDs []int64) []types.HeartbeatAction {
	var actions []types.HeartbeatAction
	now := time.Now()
	for _, userID := range userIDs {
		overdue, err := t.store.OverdueTasks(ctx, userID, now)
		if err != nil {
			t.log.Warn("overdue lookup failed", zap.Int64("user", userID), zap.Error(err))
			continue
		}
		if len(overdue) == 0 {
			continue
		}
		titles := make([]string, 0, len(overdue))
		for _, task := range overdue {
			titles = append(titles, task.Title)
		}
		actions = append(actions, types.HeartbeatAction{
			SkillName:  "task_manager",
			ActionType: types.ActionSendMessage,
			UserID:     userID,
			Data: map[string]any{
				"message": fmt.Sprintf("You have %d overdue task(s): %s",
					len(overdue), strings.Join(titles, ", ")),
			},
			Priority: 9,
		})
	}
	return actions
}

// extractTaskTitle strips the command phrasing off the front of the message.
func extractTaskTitle(message string) string {
	title := strings.TrimSpace(message)
	lower := strings.ToLower(title)
	for _, prefix := range []string{
		"remind me to ", "add a task to ", "add task ", "add a task ",
		"create a task to ", "create task ", "new task ", "add ", "create ",
	} {
		if strings.HasPrefix(lower, prefix) {
			title = strings.TrimSpace(title[len(prefix):])
			break
		}
	}
	return strings.Trim(title, ".!?")
}
