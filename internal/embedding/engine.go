// Package embedding generates vector embeddings for semantic memory.
// Backends: Ollama (local, default) and Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"

	"aide/internal/config"
)

// Engine generates vector embeddings for text.
type Engine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// NewEngine creates the engine named by the memory config.
func NewEngine(cfg config.MemoryConfig, geminiKey, ollamaURL string) (Engine, error) {
	switch cfg.EmbeddingProvider {
	case "ollama", "":
		return NewOllamaEngine(ollamaURL, cfg.EmbeddingModel), nil
	case "genai":
		return NewGenAIEngine(geminiKey, cfg.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.EmbeddingProvider)
	}
}

// CosineSimilarity returns the cosine of the angle between two vectors, in
// [-1, 1]. Zero-magnitude vectors compare as 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Match is one similarity search hit.
type Match struct {
	Index      int
	Similarity float64
}

// TopK ranks the corpus by cosine similarity to the query and returns the
// best k matches. Vectors with mismatched dimensions are skipped.
func TopK(query []float32, corpus [][]float32, k int) []Match {
	if k <= 0 {
		k = 10
	}
	matches := make([]Match, 0, len(corpus))
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Index: i, Similarity: sim})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
