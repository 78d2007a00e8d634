package memory

import (
	"context"
	"errors"
	"testing"

	"aide/internal/config"
	"aide/internal/store"
)

// stubEngine maps known texts to fixed vectors so similarity is predictable.
type stubEngine struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEngine) Dimensions() int { return 3 }
func (s *stubEngine) Name() string    { return "stub" }

func newTestManager(t *testing.T, engine *stubEngine) *Manager {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	cfg := config.DefaultMemoryConfig()
	return NewManager(cfg, st, engine)
}

func TestRecentContextOrder(t *testing.T) {
	m := newTestManager(t, &stubEngine{})
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		if _, err := m.StoreMessage(ctx, 1, 0, "user", text); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	got, err := m.RecentContext(ctx, 1, 0, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Content != "second" || got[1].Content != "third" {
		t.Errorf("order = [%s %s], want oldest first", got[0].Content, got[1].Content)
	}
}

func TestRecentContextScopedToChannel(t *testing.T) {
	m := newTestManager(t, &stubEngine{})
	ctx := context.Background()

	if _, err := m.StoreMessage(ctx, 1, 0, "user", "direct chat"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if _, err := m.StoreMessage(ctx, 1, 42, "user", "group chat"); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := m.RecentContext(ctx, 1, 42, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].Content != "group chat" {
		t.Errorf("channel 42 history = %+v, want only its own turn", got)
	}

	got, err = m.RecentContext(ctx, 1, 0, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].Content != "direct chat" {
		t.Errorf("channel 0 history = %+v, want only the direct turn", got)
	}
}

func TestSearchMemoriesBruteForce(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"likes hiking":          {1, 0, 0},
		"prefers dark mode":     {0, 1, 0},
		"what outdoor hobbies?": {0.9, 0.1, 0},
	}}
	m := newTestManager(t, engine)
	ctx := context.Background()

	if err := m.StoreMemory(ctx, 1, "preference", "likes hiking"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := m.StoreMemory(ctx, 1, "preference", "prefers dark mode"); err != nil {
		t.Fatalf("store: %v", err)
	}

	hits, err := m.SearchMemories(ctx, 1, "what outdoor hobbies?", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].Memory.Content != "likes hiking" {
		t.Errorf("top hit = %q", hits[0].Memory.Content)
	}
	if hits[0].Similarity <= 0.5 {
		t.Errorf("similarity = %v, want high", hits[0].Similarity)
	}
}

func TestSearchConversations(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"deployed the new build": {1, 0, 0},
		"lunch was great":        {0, 1, 0},
		"release status?":        {0.8, 0, 0},
	}}
	m := newTestManager(t, engine)
	ctx := context.Background()

	for _, text := range []string{"deployed the new build", "lunch was great"} {
		if _, err := m.StoreMessage(ctx, 1, 0, "user", text); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	hits, err := m.SearchConversations(ctx, 1, "release status?", 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Content != "deployed the new build" {
		t.Errorf("hits = %+v", hits)
	}
}

func TestEmbeddingFailureStillStores(t *testing.T) {
	engine := &stubEngine{err: errors.New("embedding service down")}
	m := newTestManager(t, engine)
	ctx := context.Background()

	if _, err := m.StoreMessage(ctx, 1, 0, "user", "hello"); err != nil {
		t.Fatalf("store should succeed without embedding: %v", err)
	}
	got, err := m.RecentContext(ctx, 1, 0, 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("recent = %v, err %v", got, err)
	}
}

func TestNilEngineDisablesSearch(t *testing.T) {
	m := newTestManager(t, nil)
	// The typed-nil interface trap: build the manager with an explicit nil.
	m.engine = nil
	ctx := context.Background()

	if err := m.StoreMemory(ctx, 1, "fact", "no vectors here"); err != nil {
		t.Fatalf("store: %v", err)
	}
	hits, err := m.SearchMemories(ctx, 1, "anything", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want nil without an engine", hits)
	}
}

func TestMemoryLifecycle(t *testing.T) {
	m := newTestManager(t, &stubEngine{})
	ctx := context.Background()

	if err := m.StoreMemory(ctx, 1, "preference", "keep replies short"); err != nil {
		t.Fatalf("store: %v", err)
	}
	all, err := m.Memories(ctx, 1, "preference")
	if err != nil || len(all) != 1 {
		t.Fatalf("memories = %v, err %v", all, err)
	}

	got, err := m.Get(ctx, all[0].ID)
	if err != nil || got == nil {
		t.Fatalf("get = %v, err %v", got, err)
	}

	deleted, err := m.Delete(ctx, all[0].ID)
	if err != nil || !deleted {
		t.Fatalf("delete = %v, err %v", deleted, err)
	}
	deleted, err = m.Delete(ctx, all[0].ID)
	if err != nil || deleted {
		t.Errorf("double delete = %v, err %v", deleted, err)
	}
}
