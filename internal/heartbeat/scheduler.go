// Package heartbeat implements the proactive side of the assistant: a
// fixed-interval scheduler that fires one-shot events, polls skills for
// proposed actions, applies quiet hours, and hands work to the executor or
// the persistent queue.
package heartbeat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aide/internal/config"
	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/types"
)

// ActionSource collects proposed actions from every skill for a beat. The
// skill registry and the skill RPC client both implement it.
type ActionSource interface {
	CollectActions(ctx context.Context, userIDs []int64) ([]types.HeartbeatAction, error)
}

// ActionQueue is the slice of the priority queue the scheduler uses.
type ActionQueue interface {
	Enqueue(ctx context.Context, taskType string, userID int64, payload map[string]any, priority types.TaskPriority, scheduledFor *time.Time) (string, error)
	Running() bool
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	TotalBeats   int       `json:"total_beats"`
	LastBeat     time.Time `json:"last_beat"`
	TotalActions int       `json:"total_actions"`
	Successful   int       `json:"successful"`
	RateLimited  int       `json:"rate_limited"`
	Failed       int       `json:"failed"`
	LastError    string    `json:"last_error,omitempty"`
}

// Scheduler runs the heartbeat loop. Scheduled events are held in memory;
// durable deferral goes through the priority queue.
type Scheduler struct {
	cfg      config.SchedulerConfig
	executor *Executor
	source   ActionSource
	queue    ActionQueue
	store    *store.Store
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]types.ScheduledEvent
	userIDs []int64
	stats   Stats

	loopMu  sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler creates a scheduler. source and queue may be nil; a nil
// source means no skills poll, a nil (or stopped) queue means actions
// execute inline.
func NewScheduler(cfg config.SchedulerConfig, executor *Executor, source ActionSource, queue ActionQueue, st *store.Store) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		executor: executor,
		source:   source,
		queue:    queue,
		store:    st,
		log:      logging.Named(logging.ComponentScheduler),
		now:      time.Now,
		pending:  make(map[string]types.ScheduledEvent),
	}
	executor.SetEventSink(s)
	return s
}

// SetUserIDs replaces the set of users the heartbeat polls skills for.
func (s *Scheduler) SetUserIDs(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userIDs = append([]int64(nil), ids...)
}

// ScheduleEvent adds a one-shot event to the pending set and returns its id.
func (s *Scheduler) ScheduleEvent(ev types.ScheduledEvent) string {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Status = types.EventPending
	s.mu.Lock()
	s.pending[ev.ID] = ev
	s.mu.Unlock()
	s.log.Debug("event scheduled",
		zap.String("id", ev.ID),
		zap.String("type", ev.ActionType),
		zap.Time("trigger", ev.TriggerTime))
	return ev.ID
}

// CancelEvent removes a pending event. Returns false when the id is not
// pending.
func (s *Scheduler) CancelEvent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

// PendingEvents returns a snapshot of the pending one-shot events.
func (s *Scheduler) PendingEvents() []types.ScheduledEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ScheduledEvent, 0, len(s.pending))
	for _, ev := range s.pending {
		out = append(out, ev)
	}
	return out
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start launches the beat loop. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval())
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.RunOnce(loopCtx)
			}
		}
	}()
	s.log.Info("heartbeat started", zap.Duration("interval", s.cfg.Interval()))
}

// Stop cancels the loop and waits for an in-flight beat to finish.
// Idempotent.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	if !s.running {
		s.loopMu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.loopMu.Unlock()

	s.wg.Wait()
	s.log.Info("heartbeat stopped")
}

// RunOnce executes a single beat and returns the results of every action it
// ran inline. Errors inside the beat are recorded, never propagated.
func (s *Scheduler) RunOnce(ctx context.Context) []types.ActionResult {
	now := s.now()
	s.mu.Lock()
	s.stats.TotalBeats++
	s.stats.LastBeat = now
	s.mu.Unlock()

	results := s.processScheduledEvents(ctx, now)

	// Global quiet hours silence skill polling; due events still fire.
	if inQuietInterval(now.Hour(), s.cfg.QuietStartHour, s.cfg.QuietEndHour) {
		return results
	}

	s.mu.Lock()
	users := append([]int64(nil), s.userIDs...)
	s.mu.Unlock()
	if len(users) == 0 || s.source == nil {
		return results
	}

	actions, err := s.source.CollectActions(ctx, users)
	if err != nil {
		s.log.Warn("heartbeat collection failed", zap.Error(err))
		s.mu.Lock()
		s.stats.LastError = err.Error()
		s.mu.Unlock()
	}
	if len(actions) == 0 {
		return results
	}
	s.mu.Lock()
	s.stats.TotalActions += len(actions)
	s.mu.Unlock()

	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority > actions[j].Priority
	})
	if len(actions) > s.cfg.MaxActionsPerBeat {
		actions = actions[:s.cfg.MaxActionsPerBeat]
	}

	for _, action := range actions {
		if s.deferForQuietHours(ctx, action, now) {
			continue
		}
		if s.queue != nil && s.queue.Running() {
			if _, err := s.queue.Enqueue(ctx, TaskHeartbeatAction, action.UserID,
				actionPayload(action), types.PriorityScheduled, nil); err != nil {
				s.log.Warn("enqueue failed, executing inline", zap.Error(err))
			} else {
				continue
			}
		}
		result := s.executor.Execute(ctx, action)
		s.recordResult(action, result)
		results = append(results, result)
	}
	return results
}

// deferForQuietHours converts user-visible messages inside the user's quiet
// interval into a scheduled event at the next notification time.
func (s *Scheduler) deferForQuietHours(ctx context.Context, action types.HeartbeatAction, now time.Time) bool {
	if action.ActionType != types.ActionSendMessage {
		return false
	}

	var user *store.User
	if s.store != nil {
		u, err := s.store.GetUser(ctx, action.UserID)
		if err != nil {
			s.log.Warn("user lookup failed", zap.Int64("user", action.UserID), zap.Error(err))
		} else {
			user = u
		}
	}

	start, end := quietBounds(user, s.cfg.QuietStartHour, s.cfg.QuietEndHour)
	local := now.In(userLocation(user))
	if !inQuietInterval(local.Hour(), start, end) {
		return false
	}

	trigger := nextNotificationTime(now, user, s.cfg.QuietStartHour, s.cfg.QuietEndHour)
	s.ScheduleEvent(types.ScheduledEvent{
		UserID:      action.UserID,
		SkillName:   action.SkillName,
		ActionType:  action.ActionType,
		Data:        action.Data,
		TriggerTime: trigger,
	})
	s.log.Info("action deferred for quiet hours",
		zap.Int64("user", action.UserID),
		zap.Time("trigger", trigger))
	return true
}

func (s *Scheduler) processScheduledEvents(ctx context.Context, now time.Time) []types.ActionResult {
	s.mu.Lock()
	var due []types.ScheduledEvent
	for _, ev := range s.pending {
		if !ev.TriggerTime.After(now) {
			due = append(due, ev)
		}
	}
	s.mu.Unlock()

	var results []types.ActionResult
	for _, ev := range due {
		result := s.executor.Execute(ctx, ev.Action())
		s.recordResult(ev.Action(), result)
		results = append(results, result)

		s.mu.Lock()
		delete(s.pending, ev.ID)
		s.mu.Unlock()

		if s.store != nil {
			status := "completed"
			if !result.Success {
				status = "failed"
			}
			s.store.AppendAudit(ctx, "scheduled_event", ev.SkillName, ev.ID+" "+status)
		}
	}
	return results
}

func (s *Scheduler) recordResult(action types.HeartbeatAction, result types.ActionResult) {
	s.mu.Lock()
	switch {
	case result.Success:
		s.stats.Successful++
	case isRateLimitError(result.Error):
		s.stats.RateLimited++
	default:
		s.stats.Failed++
		s.stats.LastError = result.Error
	}
	s.mu.Unlock()

	if s.store != nil && result.Success {
		s.store.AppendAudit(context.Background(), "heartbeat_action", action.SkillName,
			action.ActionType)
	}
}
