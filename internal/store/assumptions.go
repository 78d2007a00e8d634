package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aide/internal/types"
)

const assumptionColumns = `id, channel, category, statement, source, status,
	confidence, evidence, confirmed_at, last_validated, next_validation, created_at`

func scanAssumption(row interface{ Scan(...any) error }) (*types.Assumption, error) {
	var a types.Assumption
	var category, source, status, evidence string
	var confirmedAt, lastValidated, nextValidation sql.NullTime
	if err := row.Scan(&a.ID, &a.Channel, &category, &a.Statement, &source, &status,
		&a.Confidence, &evidence, &confirmedAt, &lastValidated, &nextValidation, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Category = types.AssumptionCategory(category)
	a.Source = types.AssumptionSource(source)
	a.Status = types.AssumptionStatus(status)
	if confirmedAt.Valid {
		t := confirmedAt.Time
		a.ConfirmedAt = &t
	}
	if lastValidated.Valid {
		t := lastValidated.Time
		a.LastValidated = &t
	}
	if nextValidation.Valid {
		a.NextValidation = nextValidation.Time
	}
	if evidence != "" {
		if err := json.Unmarshal([]byte(evidence), &a.Evidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
		}
	}
	return &a, nil
}

// InsertAssumption persists a new assumption.
func (s *Store) InsertAssumption(ctx context.Context, a *types.Assumption) error {
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assumptions
			(id, channel, category, statement, source, status, confidence,
			 evidence, confirmed_at, last_validated, next_validation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Channel, string(a.Category), a.Statement, string(a.Source),
		string(a.Status), a.Confidence, string(evidence),
		nullableTime(a.ConfirmedAt), nullableTime(a.LastValidated), a.NextValidation.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert assumption: %w", err)
	}
	return nil
}

// UpdateAssumption rewrites the mutable fields of an assumption.
func (s *Store) UpdateAssumption(ctx context.Context, a *types.Assumption) error {
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal evidence: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE assumptions
		SET source = ?, status = ?, confidence = ?, evidence = ?,
		    confirmed_at = ?, last_validated = ?, next_validation = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(a.Source), string(a.Status), a.Confidence, string(evidence),
		nullableTime(a.ConfirmedAt), nullableTime(a.LastValidated),
		a.NextValidation.UTC(), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update assumption: %w", err)
	}
	return nil
}

// GetAssumption fetches one assumption by id.
func (s *Store) GetAssumption(ctx context.Context, id string) (*types.Assumption, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assumptionColumns+` FROM assumptions WHERE id = ?`, id)
	a, err := scanAssumption(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assumption %s not found", id)
		}
		return nil, fmt.Errorf("failed to get assumption: %w", err)
	}
	return a, nil
}

// FindActiveAssumption looks up an active assumption by its natural key.
func (s *Store) FindActiveAssumption(ctx context.Context, channel string, category types.AssumptionCategory, statement string) (*types.Assumption, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+assumptionColumns+` FROM assumptions
		WHERE channel = ? AND category = ? AND statement = ? AND status = 'active'`,
		channel, string(category), statement)
	a, err := scanAssumption(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find assumption: %w", err)
	}
	return a, nil
}

func (s *Store) queryAssumptions(ctx context.Context, where string, args ...any) ([]*types.Assumption, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assumptionColumns+` FROM assumptions WHERE `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assumptions: %w", err)
	}
	defer rows.Close()

	var out []*types.Assumption
	for rows.Next() {
		a, err := scanAssumption(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ChannelAssumptions lists active assumptions for a channel.
func (s *Store) ChannelAssumptions(ctx context.Context, channel string) ([]*types.Assumption, error) {
	return s.queryAssumptions(ctx, `channel = ? AND status = 'active'`, channel)
}

// StaleAssumptions lists active assumptions due for re-validation.
func (s *Store) StaleAssumptions(ctx context.Context, now time.Time) ([]*types.Assumption, error) {
	return s.queryAssumptions(ctx, `status = 'active' AND next_validation < ?`, now.UTC())
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
