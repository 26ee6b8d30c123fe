package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"nlsql/internal/logging"
)

// httpDimensions is the dimensionality assumed for the generic HTTP
// backend. Deployments that front a non-Gemini embedding service should
// keep their model pinned to a fixed-dimension output, per spec.md §3.
const httpDimensions = 1536

// HTTPEngine calls the external embedding service's /embed contract from
// spec.md §6: POST {texts: []string} -> {vectors: [][]float64}.
type HTTPEngine struct {
	url    string
	client *http.Client
}

// NewHTTPEngine creates an embedding engine against a generic HTTP backend.
func NewHTTPEngine(url string) (*HTTPEngine, error) {
	if url == "" {
		return nil, fmt.Errorf("embedding http_url is required")
	}
	return &HTTPEngine{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Vectors [][]float64 `json:"vectors"`
}

// Embed generates an embedding for a single text.
func (e *HTTPEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *HTTPEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	log := logging.For(logging.CategoryEmbedding)

	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed service returned status %d: %s", resp.StatusCode, string(b))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	vectors := make([][]float32, len(out.Vectors))
	for i, v := range out.Vectors {
		vectors[i] = make([]float32, len(v))
		for j, f := range v {
			vectors[i][j] = float32(f)
		}
	}
	log.Debugw("http embed completed", "count", len(vectors), "latency", latency)
	return vectors, nil
}

// Dimensions returns the fixed embedding dimensionality.
func (e *HTTPEngine) Dimensions() int { return httpDimensions }

// Name identifies the engine for the embedding_model_tag field.
func (e *HTTPEngine) Name() string { return fmt.Sprintf("http:%s", e.url) }
