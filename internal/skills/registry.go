package skills

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aide/internal/logging"
	"aide/internal/types"
)

// Registry holds the loaded skills and routes intents to them. A skill whose
// Initialize fails is kept in error state and answers with a generic
// fallback instead of being dropped.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]Skill
	byIntent map[types.MessageIntent]string
	status   map[string]Status
	log      *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]Skill),
		byIntent: make(map[types.MessageIntent]string),
		status:   make(map[string]Status),
		log:      logging.Named(logging.ComponentSkills),
	}
}

// Register adds a skill and claims its declared intents. A skill handles
// exactly the intents its metadata declares.
func (r *Registry) Register(ctx context.Context, s Skill) {
	meta := s.Metadata()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[meta.Name] = s
	for _, intent := range meta.Intents {
		r.byIntent[intent] = meta.Name
	}

	if err := s.Initialize(ctx); err != nil {
		r.status[meta.Name] = StatusError
		r.log.Error("skill failed to initialize",
			zap.String("skill", meta.Name),
			zap.Error(err))
		return
	}
	r.status[meta.Name] = StatusReady
	r.log.Info("skill registered",
		zap.String("skill", meta.Name),
		zap.String("version", meta.Version),
		zap.Int("intents", len(meta.Intents)))
}

// Skill resolves a skill by name.
func (r *Registry) Skill(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// SkillForIntent resolves the skill claiming an intent.
func (r *Registry) SkillForIntent(intent types.MessageIntent) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byIntent[intent]
	if !ok {
		return nil, false
	}
	s, ok := r.byName[name]
	return s, ok
}

// Status returns a skill's registry state.
func (r *Registry) Status(name string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status[name]
}

// Names lists the registered skill names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// Dispatch routes a request by intent. Unclaimed intents and errored skills
// get a generic fallback response; skills never panic across this boundary.
func (r *Registry) Dispatch(ctx context.Context, intent types.MessageIntent, req types.SkillRequest) types.SkillResponse {
	s, ok := r.SkillForIntent(intent)
	if !ok {
		return types.ErrorResponse(req.ID, fmt.Sprintf("no skill handles intent %s", intent))
	}
	name := s.Metadata().Name
	if r.Status(name) == StatusError {
		return types.ErrorResponse(req.ID, fmt.Sprintf("skill %s is unavailable", name))
	}
	return r.safeHandle(ctx, s, req)
}

func (r *Registry) safeHandle(ctx context.Context, s Skill, req types.SkillRequest) (resp types.SkillResponse) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("skill panicked",
				zap.String("skill", s.Metadata().Name),
				zap.Any("panic", rec))
			resp = types.ErrorResponse(req.ID, "internal skill error")
		}
	}()
	return s.Handle(ctx, req)
}

// CollectActions polls every ready skill for proposed heartbeat actions.
// Implements the scheduler's action source.
func (r *Registry) CollectActions(ctx context.Context, userIDs []int64) ([]types.HeartbeatAction, error) {
	r.mu.RLock()
	var ready []Skill
	for name, s := range r.byName {
		if r.status[name] == StatusReady {
			ready = append(ready, s)
		}
	}
	r.mu.RUnlock()

	var all []types.HeartbeatAction
	for _, s := range ready {
		all = append(all, s.OnHeartbeat(ctx, userIDs)...)
	}
	return all, nil
}

// PromptFragments gathers system prompt additions from contributing skills.
func (r *Registry) PromptFragments(ctx context.Context, userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, s := range r.byName {
		if r.status[name] != StatusReady {
			continue
		}
		if pc, ok := s.(PromptContributor); ok {
			if frag := pc.SystemPromptFragment(ctx, userID); frag != "" {
				out = append(out, frag)
			}
		}
	}
	return out
}

// Cleanup shuts every skill down. Errors are logged, not returned; shutdown
// proceeds through the full set.
func (r *Registry) Cleanup() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, s := range r.byName {
		if err := s.Cleanup(); err != nil {
			r.log.Warn("skill cleanup failed", zap.String("skill", name), zap.Error(err))
		}
	}
}
