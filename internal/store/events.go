package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CalendarEvent is one event managed by the calendar skill.
type CalendarEvent struct {
	ID        string
	UserID    int64
	Title     string
	StartsAt  time.Time
	EndsAt    *time.Time
	Location  string
	Reminded  bool
	CreatedAt time.Time
}

// InsertCalendarEvent persists a new event.
func (s *Store) InsertCalendarEvent(ctx context.Context, e *CalendarEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_events (id, user_id, title, starts_at, ends_at, location)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title, e.StartsAt.UTC(), nullableTime(e.EndsAt), e.Location)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *Store) queryCalendarEvents(ctx context.Context, where string, args ...any) ([]*CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, starts_at, ends_at, location, reminded, created_at
		FROM calendar_events WHERE `+where+` ORDER BY starts_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*CalendarEvent
	for rows.Next() {
		var e CalendarEvent
		var endsAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.UserID, &e.Title, &e.StartsAt, &endsAt,
			&e.Location, &e.Reminded, &e.CreatedAt); err != nil {
			return nil, err
		}
		if endsAt.Valid {
			v := endsAt.Time
			e.EndsAt = &v
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// UpcomingEvents lists a user's events in [from, to).
func (s *Store) UpcomingEvents(ctx context.Context, userID int64, from, to time.Time) ([]*CalendarEvent, error) {
	return s.queryCalendarEvents(ctx, `user_id = ? AND starts_at >= ? AND starts_at < ?`,
		userID, from.UTC(), to.UTC())
}

// UnremindedEventsBefore lists events starting before the horizon that have
// not yet triggered a reminder.
func (s *Store) UnremindedEventsBefore(ctx context.Context, userID int64, horizon time.Time) ([]*CalendarEvent, error) {
	return s.queryCalendarEvents(ctx,
		`user_id = ? AND reminded = 0 AND starts_at <= ? AND starts_at >= ?`,
		userID, horizon.UTC(), time.Now().UTC())
}

// MarkEventReminded records that a reminder went out, so repeated beats do
// not re-remind.
func (s *Store) MarkEventReminded(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calendar_events SET reminded = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark event reminded: %w", err)
	}
	return nil
}
