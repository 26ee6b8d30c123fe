// Package embedding generates vector embeddings for the schema retriever
// (spec.md §4.4) and the Embedding entity (spec.md §3). It supports two
// backends behind one interface: Google GenAI (cloud) and a generic HTTP
// backend that speaks the external /embed contract from spec.md §6.
package embedding

import (
	"context"
	"fmt"
	"math"

	"nlsql/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one round trip
	// where the backend supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed dimensionality of this engine's vectors.
	Dimensions() int

	// Name identifies the engine for logging and the embedding_model_tag
	// persisted alongside each Embedding row.
	Name() string
}

// Config selects and configures an embedding backend.
type Config struct {
	// Provider is "genai" or "http".
	Provider string

	// GenAI configuration.
	GenAIAPIKey string
	GenAIModel  string
	TaskType    string

	// Generic HTTP backend configuration (spec.md §6 /embed contract).
	HTTPURL string
}

// NewEngine constructs an Engine from configuration.
func NewEngine(cfg Config) (Engine, error) {
	log := logging.For(logging.CategoryEmbedding)
	log.Infow("creating embedding engine", "provider", cfg.Provider)

	switch cfg.Provider {
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	case "http":
		return NewHTTPEngine(cfg.HTTPURL)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'genai' or 'http')", cfg.Provider)
	}
}

// CosineSimilarity computes the cosine similarity between two equal-length
// vectors, in [-1, 1]. Used throughout schema retrieval for table/column
// scoring (spec.md §4.4).
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
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

