package store

import (
	"context"
	"fmt"
	"time"
)

// Draft statuses.
const (
	DraftPending  = "pending"
	DraftApproved = "approved"
	DraftRejected = "rejected"
	DraftSent     = "sent"
)

// ReplyDraft is a proposed comment reply awaiting review or auto-approval.
type ReplyDraft struct {
	ID            string
	UserID        int64
	Channel       string
	Category      string
	SourceComment string
	Draft         string
	Status        string
	CreatedAt     time.Time
}

// InsertReplyDraft persists a new draft in pending state.
func (s *Store) InsertReplyDraft(ctx context.Context, d *ReplyDraft) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reply_drafts (id, user_id, channel, category, source_comment, draft, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Channel, d.Category, d.SourceComment, d.Draft, DraftPending)
	if err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	return nil
}

// ResolveDraft moves a pending draft to a terminal status.
func (s *Store) ResolveDraft(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reply_drafts SET status = ?, resolved_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`, status, id, DraftPending)
	if err != nil {
		return fmt.Errorf("failed to resolve draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("draft %s not pending", id)
	}
	return nil
}

// PendingDrafts lists a user's drafts awaiting review.
func (s *Store) PendingDrafts(ctx context.Context, userID int64) ([]*ReplyDraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel, category, source_comment, draft, status, created_at
		FROM reply_drafts WHERE user_id = ? AND status = ? ORDER BY created_at`,
		userID, DraftPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()

	var out []*ReplyDraft
	for rows.Next() {
		var d ReplyDraft
		if err := rows.Scan(&d.ID, &d.UserID, &d.Channel, &d.Category,
			&d.SourceComment, &d.Draft, &d.Status, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// GetDraft fetches one draft by id.
func (s *Store) GetDraft(ctx context.Context, id string) (*ReplyDraft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, channel, category, source_comment, draft, status, created_at
		FROM reply_drafts WHERE id = ?`, id)
	var d ReplyDraft
	if err := row.Scan(&d.ID, &d.UserID, &d.Channel, &d.Category,
		&d.SourceComment, &d.Draft, &d.Status, &d.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &d, nil
}
