// Package knowledge persists confirmed automation episodes and retrieves
// them by semantic similarity of their abstract prompts.
package knowledge

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"

	"github.com/deskpilot/deskpilot-cli/internal/config"
)

// OllamaEmbedder computes embeddings through an Ollama server. The
// embedding endpoint may differ from the completion endpoint.
type OllamaEmbedder struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

// NewOllamaEmbedder builds the embedder from LLM configuration.
func NewOllamaEmbedder(cfg config.LLMConfig, logger *zap.Logger) (*OllamaEmbedder, error) {
	endpoint := cfg.EmbeddingEndpoint
	if endpoint == "" {
		endpoint = cfg.Endpoint
	}
	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("llm.embedding_model is required")
	}

	return &OllamaEmbedder{
		client: api.NewClient(baseURL, &http.Client{Timeout: cfg.APITimeout}),
		model:  cfg.EmbeddingModel,
		logger: logger.Named("embedder"),
	}, nil
}

// Embed returns the vector for one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("embedding model %q returned no vector", e.model)
	}
	return resp.Embeddings[0], nil
}

// cosineSimilarity ranks retrieval candidates. Zero-length or mismatched
// vectors score zero rather than erroring; they simply never win.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
