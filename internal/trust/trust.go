// Package trust implements the escalating autonomy model: per (user,
// category) approval history drives a trust level that decides which action
// categories auto-approve and which queue for review.
package trust

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"aide/internal/config"
	"aide/internal/logging"
	"aide/internal/store"
	"aide/internal/types"
)

const (
	outcomeApproval  = "approval"
	outcomeRejection = "rejection"
	outcomeEdit      = "edit"
)

// Manager evaluates and persists trust state. An in-memory cache avoids a
// read per decision; it is invalidated on every write.
type Manager struct {
	mu    sync.Mutex
	cache map[string]*store.TrustRow

	cfg   config.TrustConfig
	store *store.Store
	log   *zap.Logger
}

// NewManager creates a trust manager backed by the store.
func NewManager(cfg config.TrustConfig, st *store.Store) *Manager {
	return &Manager{
		cache: make(map[string]*store.TrustRow),
		cfg:   cfg,
		store: st,
		log:   logging.Named(logging.ComponentTrust),
	}
}

func cacheKey(userID int64, category string) string {
	return fmt.Sprintf("%d/%s", userID, category)
}

func (m *Manager) row(ctx context.Context, userID int64, category string) (*store.TrustRow, error) {
	key := cacheKey(userID, category)
	if row, ok := m.cache[key]; ok {
		return row, nil
	}
	row, err := m.store.GetTrustRow(ctx, userID, category)
	if err != nil {
		return nil, err
	}
	m.cache[key] = row
	return row, nil
}

func (m *Manager) save(ctx context.Context, row *store.TrustRow) error {
	if err := m.store.SaveTrustRow(ctx, row); err != nil {
		delete(m.cache, cacheKey(row.UserID, row.Category))
		return err
	}
	m.cache[cacheKey(row.UserID, row.Category)] = row
	return nil
}

// State returns the current trust state for a key.
func (m *Manager) State(ctx context.Context, userID int64, category string) (types.TrustState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.row(ctx, userID, category)
	if err != nil {
		return types.TrustState{}, err
	}
	return row.State, nil
}

// RecordApproval counts one approved action and recomputes the level.
func (m *Manager) RecordApproval(ctx context.Context, userID int64, category string) (types.TrustState, error) {
	return m.recordOutcome(ctx, userID, category, outcomeApproval)
}

// RecordRejection counts one rejected action, recomputes the level, and
// demotes when the recent window holds too many rejections.
func (m *Manager) RecordRejection(ctx context.Context, userID int64, category string) (types.TrustState, error) {
	return m.recordOutcome(ctx, userID, category, outcomeRejection)
}

// RecordEdit counts an approved-with-edits action.
func (m *Manager) RecordEdit(ctx context.Context, userID int64, category string) (types.TrustState, error) {
	return m.recordOutcome(ctx, userID, category, outcomeEdit)
}

func (m *Manager) recordOutcome(ctx context.Context, userID int64, category, outcome string) (types.TrustState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.row(ctx, userID, category)
	if err != nil {
		return types.TrustState{}, err
	}

	before := row.State.Level
	switch outcome {
	case outcomeApproval:
		row.State.Approvals++
	case outcomeRejection:
		row.State.Rejections++
	case outcomeEdit:
		row.State.Edits++
		row.State.Approvals++
	}
	row.State.TotalInteractions++

	row.RecentOutcomes = append(row.RecentOutcomes, outcome)
	if len(row.RecentOutcomes) > m.cfg.DemotionWindow {
		row.RecentOutcomes = row.RecentOutcomes[len(row.RecentOutcomes)-m.cfg.DemotionWindow:]
	}

	// Recomputation only ever promotes; the sole path down is the
	// rejection-window demotion below.
	if computed := m.computeLevel(row.State); computed > row.State.Level {
		row.State.Level = computed
	}
	if outcome == outcomeRejection && m.recentRejections(row) > m.cfg.DemotionMaxRejections {
		if row.State.Level > types.TrustNew {
			row.State.Level--
		}
	}

	if err := m.save(ctx, row); err != nil {
		return types.TrustState{}, err
	}
	if row.State.Level != before {
		m.log.Info("trust level changed",
			zap.Int64("user", userID),
			zap.String("category", category),
			zap.String("from", before.String()),
			zap.String("to", row.State.Level.String()))
		m.store.AppendAudit(ctx, "trust_transition",
			fmt.Sprintf("%d/%s", userID, category),
			fmt.Sprintf("%s -> %s", before, row.State.Level))
	}
	return row.State, nil
}

func (m *Manager) recentRejections(row *store.TrustRow) int {
	n := 0
	for _, o := range row.RecentOutcomes {
		if o == outcomeRejection {
			n++
		}
	}
	return n
}

// computeLevel returns the highest level whose approval-rate and volume
// thresholds the state satisfies. Levels are checked top down so the state
// lands on the best it has earned.
func (m *Manager) computeLevel(s types.TrustState) types.TrustLevel {
	rate := s.ApprovalRate()
	for _, candidate := range []types.TrustLevel{types.TrustTrusted, types.TrustEstablished, types.TrustBuilding} {
		name := candidate.String()
		if s.TotalInteractions >= m.cfg.MinTotals[name] && rate >= m.cfg.PromotionThresholds[name] {
			return candidate
		}
	}
	return types.TrustNew
}

// ShouldAutoApprove reports whether the current level clears the
// category's configured minimum. Categories absent from the config never
// auto-approve.
func (m *Manager) ShouldAutoApprove(ctx context.Context, userID int64, category string) (bool, error) {
	minName, ok := m.cfg.MinAutoLevels[category]
	if !ok {
		return false, nil
	}
	state, err := m.State(ctx, userID, category)
	if err != nil {
		return false, err
	}
	return state.Level >= types.ParseTrustLevel(minName), nil
}

// AutoCategories lists the categories the user's current levels
// auto-approve; ReviewCategories is the complement over the configured set.
func (m *Manager) AutoCategories(ctx context.Context, userID int64) ([]string, error) {
	var out []string
	for category := range m.cfg.MinAutoLevels {
		ok, err := m.ShouldAutoApprove(ctx, userID, category)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, category)
		}
	}
	return out, nil
}

// ReviewCategories lists the configured categories that still need manual
// review for this user.
func (m *Manager) ReviewCategories(ctx context.Context, userID int64) ([]string, error) {
	var out []string
	for category := range m.cfg.MinAutoLevels {
		ok, err := m.ShouldAutoApprove(ctx, userID, category)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, category)
		}
	}
	return out, nil
}
