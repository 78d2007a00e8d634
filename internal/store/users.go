package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// User is one registered user profile.
type User struct {
	ID          int64
	DisplayName string
	Timezone    string
	// QuietStart/QuietEnd are hours [0,24) in the user's timezone; nil
	// means the global default applies.
	QuietStart *int
	QuietEnd   *int
	CreatedAt  time.Time
}

// UpsertUser creates or updates a user profile.
func (s *Store) UpsertUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, timezone, quiet_start, quiet_end)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			timezone = excluded.timezone,
			quiet_start = excluded.quiet_start,
			quiet_end = excluded.quiet_end`,
		u.ID, u.DisplayName, u.Timezone, u.QuietStart, u.QuietEnd)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetUser fetches one user, or nil when unknown.
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, timezone, quiet_start, quiet_end, created_at
		FROM users WHERE id = ?`, id)

	var u User
	var quietStart, quietEnd sql.NullInt64
	err := row.Scan(&u.ID, &u.DisplayName, &u.Timezone, &quietStart, &quietEnd, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if quietStart.Valid {
		v := int(quietStart.Int64)
		u.QuietStart = &v
	}
	if quietEnd.Valid {
		v := int(quietEnd.Int64)
		u.QuietEnd = &v
	}
	return &u, nil
}

// ListUserIDs returns all registered user ids.
func (s *Store) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SetSetting writes a namespaced dynamic setting.
func (s *Store) SetSetting(ctx context.Context, namespace, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (namespace, key, value) VALUES (?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		namespace, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// GetSetting reads a setting, returning fallback when absent.
func (s *Store) GetSetting(ctx context.Context, namespace, key, fallback string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE namespace = ? AND key = ?`,
		namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// GetSettingInt reads an integer setting with a fallback.
func (s *Store) GetSettingInt(ctx context.Context, namespace, key string, fallback int) (int, error) {
	raw, err := s.GetSetting(ctx, namespace, key, strconv.Itoa(fallback))
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, nil
	}
	return n, nil
}

// GetSettingFloat reads a float setting with a fallback.
func (s *Store) GetSettingFloat(ctx context.Context, namespace, key string, fallback float64) (float64, error) {
	raw, err := s.GetSetting(ctx, namespace, key, strconv.FormatFloat(fallback, 'f', -1, 64))
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback, nil
	}
	return f, nil
}

// AppendAudit appends one audit row. Audit failures are logged, never fatal.
func (s *Store) AppendAudit(ctx context.Context, kind, actor, detail string) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (kind, actor, detail) VALUES (?, ?, ?)`,
		kind, actor, detail); err != nil {
		s.log.Warn("audit append failed: " + err.Error())
	}
}
