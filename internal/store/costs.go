package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aide/internal/types"
)

// InsertCostRecord appends one cost record.
func (s *Store) InsertCostRecord(ctx context.Context, rec types.CostRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_records
			(timestamp, provider, model, tokens_in, tokens_out, cost_usd,
			 cost_estimated, task_type, latency_ms, rate_limit_hit, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, string(rec.Provider), rec.Model, rec.TokensIn, rec.TokensOut,
		rec.CostUSD, rec.CostEstimated, string(rec.TaskType), rec.LatencyMS,
		rec.RateLimitHit, rec.Success, rec.Error)
	if err != nil {
		return fmt.Errorf("failed to insert cost record: %w", err)
	}
	return nil
}

// TotalCost sums cost over [from, to).
func (s *Store) TotalCost(ctx context.Context, from, to time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(cost_usd) FROM cost_records WHERE timestamp >= ? AND timestamp < ?`,
		from, to).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cost: %w", err)
	}
	return total.Float64, nil
}

// CostByDimension groups cost over a range by the given column. Only the
// fixed set of grouping columns is accepted.
func (s *Store) costByColumn(ctx context.Context, column string, from, to time.Time) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, SUM(cost_usd) FROM cost_records
		 WHERE timestamp >= ? AND timestamp < ? GROUP BY %s`, column, column),
		from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to group cost by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var key string
		var cost float64
		if err := rows.Scan(&key, &cost); err != nil {
			return nil, err
		}
		out[key] = cost
	}
	return out, rows.Err()
}

func (s *Store) CostByProvider(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return s.costByColumn(ctx, "provider", from, to)
}

func (s *Store) CostByTaskType(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return s.costByColumn(ctx, "task_type", from, to)
}

func (s *Store) CostByModel(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	return s.costByColumn(ctx, "model", from, to)
}

// DailyCost is one day's rollup.
type DailyCost struct {
	Day     string
	Calls   int
	Tokens  int64
	CostUSD float64
}

// DailyBreakdown returns per-day rollups for the last N days, oldest first.
func (s *Store) DailyBreakdown(ctx context.Context, days int) ([]DailyCost, error) {
	since := time.Now().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(timestamp), COUNT(*), SUM(tokens_in + tokens_out), SUM(cost_usd)
		FROM cost_records WHERE timestamp >= ?
		GROUP BY date(timestamp) ORDER BY date(timestamp)`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily breakdown: %w", err)
	}
	defer rows.Close()

	var out []DailyCost
	for rows.Next() {
		var d DailyCost
		var tokens sql.NullInt64
		var cost sql.NullFloat64
		if err := rows.Scan(&d.Day, &d.Calls, &tokens, &cost); err != nil {
			return nil, err
		}
		d.Tokens = tokens.Int64
		d.CostUSD = cost.Float64
		out = append(out, d)
	}
	return out, rows.Err()
}

// RateLimitCounts returns per-provider rate-limit hit counts since the
// given time.
func (s *Store) RateLimitCounts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, COUNT(*) FROM cost_records
		WHERE rate_limit_hit = 1 AND timestamp >= ? GROUP BY provider`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate limit counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var provider string
		var n int
		if err := rows.Scan(&provider, &n); err != nil {
			return nil, err
		}
		out[provider] = n
	}
	return out, rows.Err()
}

// UpsertModel registers or updates a model in the registry.
func (s *Store) UpsertModel(ctx context.Context, m types.ModelInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_registry (model, provider, tier, context_window, deprecated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model) DO UPDATE SET
			provider = excluded.provider,
			tier = excluded.tier,
			context_window = excluded.context_window,
			deprecated = excluded.deprecated`,
		m.Name, string(m.Provider), m.Tier, m.ContextWindow, m.Deprecated)
	if err != nil {
		return fmt.Errorf("failed to upsert model: %w", err)
	}
	return nil
}

// ListModels returns registered models. Deprecated models are hidden
// unless includeDeprecated is set.
func (s *Store) ListModels(ctx context.Context, includeDeprecated bool) ([]types.ModelInfo, error) {
	query := `SELECT model, provider, tier, context_window, deprecated FROM model_registry`
	if !includeDeprecated {
		query += ` WHERE deprecated = 0`
	}
	query += ` ORDER BY provider, model`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var out []types.ModelInfo
	for rows.Next() {
		var m types.ModelInfo
		var provider string
		if err := rows.Scan(&m.Name, &provider, &m.Tier, &m.ContextWindow, &m.Deprecated); err != nil {
			return nil, err
		}
		m.Provider = types.Provider(provider)
		out = append(out, m)
	}
	return out, rows.Err()
}
