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

// reminderHorizon is how far ahead the heartbeat looks for events that still
// need a reminder.
const reminderHorizon = time.Hour

// Calendar is the events skill: add and list events, with reminders and a
// morning digest on the heartbeat.
type Calendar struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time

	// digestSent tracks the last date a digest went out per user.
	digestSent map[int64]string
}

// NewCalendar creates the calendar skill.
func NewCalendar(st *store.Store) *Calendar {
	return &Calendar{
		store:      st,
		log:        logging.Named(logging.ComponentSkills),
		now:        time.Now,
		digestSent: make(map[int64]string),
	}
}

func (c *Calendar) Metadata() types.SkillMetadata {
	return types.SkillMetadata{
		Name:        "calendar",
		Version:     "1.0.0",
		Permissions: []string{"store:calendar"},
		Collections: []string{"calendar_events"},
		Intents:     []types.MessageIntent{types.IntentCalendarQuery},
	}
}

func (c *Calendar) Initialize(context.Context) error { return nil }
func (c *Calendar) Cleanup() error                   { return nil }

func (c *Calendar) Handle(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	switch req.Intent {
	case "add_event":
		return c.addEvent(ctx, req)
	default:
		return c.listEvents(ctx, req)
	}
}

// addEvent expects a title in the request context; free-text datetime
// parsing stays in the orchestrator's complex-task path.
func (c *Calendar) addEvent(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	title, _ := req.Context["title"].(string)
	if title == "" {
		title = strings.TrimSpace(req.Message)
	}
	if title == "" {
		return types.ErrorResponse(req.ID, "event needs a title")
	}

	startsAt := c.now().Add(24 * time.Hour)
	if raw, ok := req.Context["starts_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			startsAt = parsed
		}
	}

	ev := &store.CalendarEvent{
		ID:       uuid.NewString(),
		UserID:   req.UserID,
		Title:    title,
		StartsAt: startsAt,
	}
	if loc, ok := req.Context["location"].(string); ok {
		ev.Location = loc
	}
	if err := c.store.InsertCalendarEvent(ctx, ev); err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	return types.OKResponse(req.ID,
		fmt.Sprintf("Added %q on %s.", title, startsAt.Format("Jan 2 15:04")),
		map[string]any{"event_id": ev.ID})
}

func (c *Calendar) listEvents(ctx context.Context, req types.SkillRequest) types.SkillResponse {
	now := c.now()
	events, err := c.store.UpcomingEvents(ctx, req.UserID, now, now.Add(7*24*time.Hour))
	if err != nil {
		return types.ErrorResponse(req.ID, err.Error())
	}
	if len(events) == 0 {
		return types.OKResponse(req.ID, "Nothing on your calendar for the next week.", nil)
	}

	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "- %s at %s", ev.Title, ev.StartsAt.Format("Mon Jan 2 15:04"))
		if ev.Location != "" {
			fmt.Fprintf(&b, " (%s)", ev.Location)
		}
		b.WriteString("\n")
	}
	return types.OKResponse(req.ID, b.String(), map[string]any{"count": len(events)})
}

// OnHeartbeat proposes imminent-event reminders (high priority) and one
// daily digest per user (normal priority).
func (c *Calendar) OnHeartbeat(ctx context.Context, userIDs []int64) []types.HeartbeatAction {
	var actions []types.HeartbeatAction
	now := c.now()

	for _, userID := range userIDs {
		due, err := c.store.UnremindedEventsBefore(ctx, userID, now.Add(reminderHorizon))
		if err != nil {
			c.log.Warn("reminder lookup failed", zap.Int64("user", userID), zap.Error(err))
			continue
		}
		for _, ev := range due {
			actions = append(actions, types.HeartbeatAction{
				SkillName:  "calendar",
				ActionType: types.ActionSendMessage,
				UserID:     userID,
				Data: map[string]any{
					"message": fmt.Sprintf("Reminder: %s at %s", ev.Title, ev.StartsAt.Format("15:04")),
				},
				Priority: 7,
			})
			if err := c.store.MarkEventReminded(ctx, ev.ID); err != nil {
				c.log.Warn("mark reminded failed", zap.String("event", ev.ID), zap.Error(err))
			}
		}

		if action, ok := c.dailyDigest(ctx, userID, now); ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// dailyDigest builds at most one digest per user per day, and only when the
// day has events.
func (c *Calendar) dailyDigest(ctx context.Context, userID int64, now time.Time) (types.HeartbeatAction, bool) {
	today := now.Format("2006-01-02")
	if c.digestSent[userID] == today {
		return types.HeartbeatAction{}, false
	}

	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
	events, err := c.store.UpcomingEvents(ctx, userID, now, dayEnd)
	if err != nil || len(events) == 0 {
		return types.HeartbeatAction{}, false
	}

	var b strings.Builder
	b.WriteString("Today: ")
	for i, ev := range events {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s at %s", ev.Title, ev.StartsAt.Format("15:04"))
	}
	c.digestSent[userID] = today
	return types.HeartbeatAction{
		SkillName:  "calendar",
		ActionType: types.ActionSendMessage,
		UserID:     userID,
		Data:       map[string]any{"message": b.String()},
		Priority:   5,
	}, true
}
