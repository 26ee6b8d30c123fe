package embedding

import (
	"context"
	"fmt"
	"time"

	"nlsql/internal/logging"

	"google.golang.org/genai"
)

// maxBatchSize is the largest batch the GenAI embedContent API accepts in
// one call; larger requests are chunked and issued sequentially.
const maxBatchSize = 100

// genaiDimensions is the output dimensionality requested from
// gemini-embedding-001. Fixed at build time per spec.md §3 (Embedding
// entity: "fixed-dimension numeric vector").
const genaiDimensions = 3072

func int32Ptr(i int32) *int32 { return &i }

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAIEngine creates a GenAI-backed embedding engine.
func NewGenAIEngine(apiKey, model, taskType string) (*GenAIEngine, error) {
	log := logging.For(logging.CategoryEmbedding)

	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = "SEMANTIC_SIMILARITY"
	}

	start := time.Now()
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	log.Infow("genai embedding engine created", "model", model, "task_type", taskType, "latency", time.Since(start))

	return &GenAIEngine{client: client, model: model, taskType: taskType}, nil
}

// Embed generates an embedding for a single text.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunking requests
// larger than maxBatchSize and concatenating the results.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= maxBatchSize {
		return e.embedChunk(ctx, texts)
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d failed: %w", start, end, err)
		}
		all = append(all, chunk...)
	}
	return all, nil
}

func (e *GenAIEngine) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	log := logging.For(logging.CategoryEmbedding)

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	start := time.Now()
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: int32Ptr(genaiDimensions),
	})
	latency := time.Since(start)
	if err != nil {
		log.Errorw("genai embed failed", "latency", latency, "error", err)
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		embeddings[i] = emb.Values
	}
	log.Debugw("genai embed completed", "count", len(embeddings), "latency", latency)
	return embeddings, nil
}

// Dimensions returns the fixed embedding dimensionality.
func (e *GenAIEngine) Dimensions() int { return genaiDimensions }

// Name identifies the engine for the embedding_model_tag field.
func (e *GenAIEngine) Name() string { return fmt.Sprintf("genai:%s", e.model) }
