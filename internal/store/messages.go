package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// StoredMessage is one conversation turn with its optional embedding.
// ChannelID 0 is the direct conversation with the assistant.
type StoredMessage struct {
	ID        int64
	UserID    int64
	ChannelID int64
	Role      string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// Memory is one extracted long-term fact.
type Memory struct {
	ID        string
	UserID    int64
	Content   string
	Kind      string
	Embedding []float32
	CreatedAt time.Time
}

// encodeEmbedding packs a vector as little-endian float32, the layout
// sqlite-vec expects for BLOB columns.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := new(bytes.Buffer)
	for _, v := range vec {
		binary.Write(buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}

func decodeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}

// InsertMessage appends one conversation turn.
func (s *Store) InsertMessage(ctx context.Context, m *StoredMessage) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, channel_id, role, content, embedding) VALUES (?, ?, ?, ?, ?)`,
		m.UserID, m.ChannelID, m.Role, m.Content, encodeEmbedding(m.Embedding))
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	return res.LastInsertId()
}

// RecentMessages returns the last n turns for a user in one channel, oldest
// first.
func (s *Store) RecentMessages(ctx context.Context, userID, channelID int64, n int) ([]*StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel_id, role, content, created_at FROM (
			SELECT id, user_id, channel_id, role, content, created_at
			FROM messages WHERE user_id = ? AND channel_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id`, userID, channelID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	var out []*StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.ChannelID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// EmbeddedMessages streams all messages for a user that carry an embedding.
func (s *Store) EmbeddedMessages(ctx context.Context, userID int64) ([]*StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, embedding, created_at
		FROM messages WHERE user_id = ? AND embedding IS NOT NULL`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedded messages: %w", err)
	}
	defer rows.Close()

	var out []*StoredMessage
	for rows.Next() {
		var m StoredMessage
		var blob []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &blob, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Embedding = decodeEmbedding(blob)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// InsertMemory persists one extracted fact.
func (s *Store) InsertMemory(ctx context.Context, m *Memory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, content, kind, embedding) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Content, m.Kind, encodeEmbedding(m.Embedding))
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// GetMemory fetches one memory, or nil when unknown.
func (s *Store) GetMemory(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, content, kind, embedding, created_at
		FROM memories WHERE id = ?`, id)
	var m Memory
	var blob []byte
	if err := row.Scan(&m.ID, &m.UserID, &m.Content, &m.Kind, &blob, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	m.Embedding = decodeEmbedding(blob)
	return &m, nil
}

// DeleteMemory removes a memory. Reports whether a row was deleted.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete memory: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MemoriesByKind lists a user's memories, optionally filtered by kind.
func (s *Store) MemoriesByKind(ctx context.Context, userID int64, kind string) ([]*Memory, error) {
	query := `SELECT id, user_id, content, kind, embedding, created_at
		FROM memories WHERE user_id = ?`
	args := []any{userID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		var m Memory
		var blob []byte
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Kind, &blob, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Embedding = decodeEmbedding(blob)
		out = append(out, &m)
	}
	return out, rows.Err()
}
