// Package memory implements the assistant's long-term memory: conversation
// history plus extracted facts, both embedded for semantic search. Lookup
// uses sqlite-vec when the extension is present and brute-force cosine
// otherwise.
package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aide/internal/config"
	"aide/internal/embedding"
	"aide/internal/logging"
	"aide/internal/store"
)

// Manager coordinates the store and the embedding engine. A nil engine
// disables semantic search; everything else keeps working.
type Manager struct {
	store  *store.Store
	engine embedding.Engine
	cfg    config.MemoryConfig
	log    *zap.Logger
}

// NewManager creates a memory manager.
func NewManager(cfg config.MemoryConfig, st *store.Store, engine embedding.Engine) *Manager {
	return &Manager{
		store:  st,
		engine: engine,
		cfg:    cfg,
		log:    logging.Named(logging.ComponentMemory),
	}
}

// embed returns a vector for the text, or nil when no engine is wired or the
// call fails. Embedding failures degrade search, never writes.
func (m *Manager) embed(ctx context.Context, text string) []float32 {
	if m.engine == nil {
		return nil
	}
	vec, err := m.engine.Embed(ctx, text)
	if err != nil {
		m.log.Warn("embedding failed, storing without vector", zap.Error(err))
		return nil
	}
	return vec
}

// StoreMessage appends one conversation turn with its embedding. Channel 0
// is the direct conversation.
func (m *Manager) StoreMessage(ctx context.Context, userID, channelID int64, role, content string) (int64, error) {
	return m.store.InsertMessage(ctx, &store.StoredMessage{
		UserID:    userID,
		ChannelID: channelID,
		Role:      role,
		Content:   content,
		Embedding: m.embed(ctx, content),
	})
}

// StoreMemory persists one extracted fact and returns its id.
func (m *Manager) StoreMemory(ctx context.Context, userID int64, kind, content string) error {
	return m.store.InsertMemory(ctx, &store.Memory{
		ID:        uuid.NewString(),
		UserID:    userID,
		Content:   content,
		Kind:      kind,
		Embedding: m.embed(ctx, content),
	})
}

// RecentContext returns the last turns of one channel's conversation, oldest
// first. A zero limit uses the configured default.
func (m *Manager) RecentContext(ctx context.Context, userID, channelID int64, limit int) ([]*store.StoredMessage, error) {
	if limit <= 0 {
		limit = m.cfg.RecentContextLimit
	}
	return m.store.RecentMessages(ctx, userID, channelID, limit)
}

// ScoredMemory is a semantic search hit.
type ScoredMemory struct {
	Memory     *store.Memory
	Similarity float64
}

// SearchMemories finds the facts most similar to the query.
func (m *Manager) SearchMemories(ctx context.Context, userID int64, query string, limit int) ([]ScoredMemory, error) {
	if limit <= 0 {
		limit = m.cfg.SemanticLimit
	}
	if m.engine == nil {
		return nil, nil
	}
	vec, err := m.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if m.store.HasVectorExt() {
		hits, err := m.store.NearestMemories(ctx, userID, vec, limit)
		if err != nil {
			return nil, err
		}
		out := make([]ScoredMemory, 0, len(hits))
		for _, h := range hits {
			sim, _ := embedding.CosineSimilarity(vec, h.Embedding)
			out = append(out, ScoredMemory{Memory: h, Similarity: sim})
		}
		return out, nil
	}

	all, err := m.store.MemoriesByKind(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	var candidates []*store.Memory
	corpus := make([][]float32, 0, len(all))
	for _, mem := range all {
		if len(mem.Embedding) > 0 {
			candidates = append(candidates, mem)
			corpus = append(corpus, mem.Embedding)
		}
	}
	var out []ScoredMemory
	for _, match := range embedding.TopK(vec, corpus, limit) {
		out = append(out, ScoredMemory{Memory: candidates[match.Index], Similarity: match.Similarity})
	}
	return out, nil
}

// SearchConversations finds past conversation turns similar to the query.
func (m *Manager) SearchConversations(ctx context.Context, userID int64, query string, limit int) ([]*store.StoredMessage, error) {
	if limit <= 0 {
		limit = m.cfg.SemanticLimit
	}
	if m.engine == nil {
		return nil, nil
	}
	vec, err := m.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if m.store.HasVectorExt() {
		return m.store.NearestMessages(ctx, userID, vec, limit)
	}

	all, err := m.store.EmbeddedMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	corpus := make([][]float32, len(all))
	for i, msg := range all {
		corpus[i] = msg.Embedding
	}
	var out []*store.StoredMessage
	for _, match := range embedding.TopK(vec, corpus, limit) {
		out = append(out, all[match.Index])
	}
	return out, nil
}

// Memories lists a user's facts, optionally filtered by kind.
func (m *Manager) Memories(ctx context.Context, userID int64, kind string) ([]*store.Memory, error) {
	return m.store.MemoriesByKind(ctx, userID, kind)
}

// Get fetches one memory by id, or nil when unknown.
func (m *Manager) Get(ctx context.Context, id string) (*store.Memory, error) {
	return m.store.GetMemory(ctx, id)
}

// Delete removes a memory. Reports whether it existed.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	return m.store.DeleteMemory(ctx, id)
}
