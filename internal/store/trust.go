package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aide/internal/types"
)

// TrustRow is the persisted trust state plus the rolling outcome window
// used for demotion decisions.
type TrustRow struct {
	UserID         int64
	Category       string
	State          types.TrustState
	RecentOutcomes []string
}

// GetTrustRow loads trust state for one (user, category) key. A missing row
// returns a zeroed state at the most conservative level.
func (s *Store) GetTrustRow(ctx context.Context, userID int64, category string) (*TrustRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT level, approvals, rejections, edits, total_interactions, recent_outcomes
		FROM trust_state WHERE user_id = ? AND category = ?`, userID, category)

	out := &TrustRow{UserID: userID, Category: category}
	var level, outcomes string
	err := row.Scan(&level, &out.State.Approvals, &out.State.Rejections,
		&out.State.Edits, &out.State.TotalInteractions, &outcomes)
	if errors.Is(err, sql.ErrNoRows) {
		out.State.Level = types.TrustNew
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trust state: %w", err)
	}
	out.State.Level = types.ParseTrustLevel(level)
	if outcomes != "" {
		if err := json.Unmarshal([]byte(outcomes), &out.RecentOutcomes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
		}
	}
	return out, nil
}

// SaveTrustRow upserts trust state for one key.
func (s *Store) SaveTrustRow(ctx context.Context, row *TrustRow) error {
	outcomes, err := json.Marshal(row.RecentOutcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trust_state
			(user_id, category, level, approvals, rejections, edits, total_interactions, recent_outcomes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, category) DO UPDATE SET
			level = excluded.level,
			approvals = excluded.approvals,
			rejections = excluded.rejections,
			edits = excluded.edits,
			total_interactions = excluded.total_interactions,
			recent_outcomes = excluded.recent_outcomes,
			updated_at = CURRENT_TIMESTAMP`,
		row.UserID, row.Category, row.State.Level.String(),
		row.State.Approvals, row.State.Rejections, row.State.Edits,
		row.State.TotalInteractions, string(outcomes))
	if err != nil {
		return fmt.Errorf("failed to save trust state: %w", err)
	}
	return nil
}
