package ollama

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

var _ domain.Embedder = (*Embedder)(nil)

// Embedder produces query embeddings through Ollama's /api/embed.
type Embedder struct {
	embedder *embeddings.EmbedderImpl
	http     *http.Client
	base     string
	model    string
	provider string
	logger   *zap.Logger
}

// NewEmbedder creates an embedder bound to cfg.Model.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	client := cfg.httpClient()
	llm, err := newLLM(cfg, client)
	if err != nil {
		return nil, err
	}
	emb, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &Embedder{
		embedder: emb,
		http:     client,
		base:     cfg.baseURL(),
		model:    cfg.Model,
		provider: cfg.provider(),
		logger:   cfg.logger(),
	}, nil
}

// Embed implements domain.Embedder. Ollama reports no token usage for embeddings.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		metrics.EmbeddingFailed(e.provider, e.model, "api_error")
		if ctx.Err() != nil {
			return domain.EmbeddingResult{}, ctx.Err()
		}
		return domain.EmbeddingResult{}, fmt.Errorf("ollama embed: %v: %w", err, domain.ErrEmbeddingProviderError)
	}
	if len(vec) == 0 {
		metrics.EmbeddingFailed(e.provider, e.model, "empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingSucceeded(e.provider, e.model, time.Since(start), 0, 0)
	e.logger.Debug("Ollama embedding finished", zap.String("model", e.model), zap.Int("dims", len(vec)))
	return domain.EmbeddingResult{Embedding: vec}, nil
}

// HealthCheck verifies that the daemon is reachable.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return ping(ctx, e.http, e.base)
}
