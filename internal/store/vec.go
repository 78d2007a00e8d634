package store

import (
	"context"
	"fmt"
)

// detectVecExtension probes for sqlite-vec by creating a throwaway vec0
// virtual table. When the extension is absent, vector search falls back to
// brute-force cosine over stored embeddings.
func (s *Store) detectVecExtension() {
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err != nil {
		s.vectorExt = false
		return
	}
	_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
	s.vectorExt = true
}

// NearestMessages ranks a user's embedded messages by cosine distance to the
// query vector using sqlite-vec. Callers must check HasVectorExt first.
func (s *Store) NearestMessages(ctx context.Context, userID int64, query []float32, limit int) ([]*StoredMessage, error) {
	if !s.vectorExt {
		return nil, fmt.Errorf("sqlite-vec extension not available")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, embedding, created_at
		FROM messages
		WHERE user_id = ? AND embedding IS NOT NULL
		ORDER BY vec_distance_cosine(embedding, ?) LIMIT ?`,
		userID, encodeEmbedding(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest messages: %w", err)
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

// NearestMemories ranks a user's memories by cosine distance to the query
// vector using sqlite-vec. Callers must check HasVectorExt first.
func (s *Store) NearestMemories(ctx context.Context, userID int64, query []float32, limit int) ([]*Memory, error) {
	if !s.vectorExt {
		return nil, fmt.Errorf("sqlite-vec extension not available")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, kind, embedding, created_at
		FROM memories
		WHERE user_id = ? AND embedding IS NOT NULL
		ORDER BY vec_distance_cosine(embedding, ?) LIMIT ?`,
		userID, encodeEmbedding(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest memories: %w", err)
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
