package domain

import (
	"context"
	"fmt"
	"strings"
)

// Embedder turns a query into a vector. Implementations are provider clients and the
// decorators stacked on them (cache, metrics, instruction).
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult is a query vector plus the tokens the provider billed for it.
// Cache hits carry zero usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Dims returns the vector length.
func (r EmbeddingResult) Dims() int { return len(r.Embedding) }

// QueryPlaceholder marks where the query goes inside an instruction template.
const QueryPlaceholder = "{query}"

// InstructionEmbedder rewrites the query with a model-specific instruction before embedding,
// e.g. "query: " for e5 models or "Represent this question for retrieval: {query}".
// Without a placeholder the instruction is used as a prefix.
type InstructionEmbedder struct {
	inner       Embedder
	instruction string
}

// NewInstructionEmbedder wraps inner with the given instruction.
func NewInstructionEmbedder(inner Embedder, instruction string) *InstructionEmbedder {
	return &InstructionEmbedder{inner: inner, instruction: instruction}
}

// Apply returns the text that is actually sent to the provider.
func (e *InstructionEmbedder) Apply(query string) string {
	if strings.Contains(e.instruction, QueryPlaceholder) {
		return strings.ReplaceAll(e.instruction, QueryPlaceholder, query)
	}
	return e.instruction + query
}

// Embed embeds the instructed query. An empty vector is reported as a provider error.
func (e *InstructionEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := e.inner.Embed(ctx, e.Apply(text))
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: %w", err)
	}
	if res.Dims() == 0 {
		return EmbeddingResult{}, fmt.Errorf("instruction embed: empty vector: %w", ErrEmbeddingProviderError)
	}
	return res, nil
}

// HealthCheck proxies to the inner embedder when it supports it.
func (e *InstructionEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // proxied as-is
	}
	return nil
}
