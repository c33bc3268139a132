package domain

import (
	"context"
	"sync/atomic"
)

type tokenUsageKey struct{}

// TokenUsage collects backend token usage for a single query.
// The orchestrator puts a pointer into the context; embedders and generators add to it
// from any goroutine; the orchestrator reads it into the response stats.
type TokenUsage struct {
	embedding  atomic.Int64
	prompt     atomic.Int64
	completion atomic.Int64
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *TokenUsage) {
	u := &TokenUsage{}
	return context.WithValue(ctx, tokenUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *TokenUsage {
	u, _ := ctx.Value(tokenUsageKey{}).(*TokenUsage)
	return u
}

// AddEmbedding records embedding tokens. Safe on a nil receiver.
func (u *TokenUsage) AddEmbedding(n int) {
	if u != nil && n > 0 {
		u.embedding.Add(int64(n))
	}
}

// AddGeneration records prompt and completion tokens. Safe on a nil receiver.
func (u *TokenUsage) AddGeneration(prompt, completion int) {
	if u == nil {
		return
	}
	if prompt > 0 {
		u.prompt.Add(int64(prompt))
	}
	if completion > 0 {
		u.completion.Add(int64(completion))
	}
}

// EmbeddingTokens returns the embedding token total.
func (u *TokenUsage) EmbeddingTokens() int {
	if u == nil {
		return 0
	}
	return int(u.embedding.Load())
}

// PromptTokens returns the generation prompt token total.
func (u *TokenUsage) PromptTokens() int {
	if u == nil {
		return 0
	}
	return int(u.prompt.Load())
}

// CompletionTokens returns the generation completion token total.
func (u *TokenUsage) CompletionTokens() int {
	if u == nil {
		return 0
	}
	return int(u.completion.Load())
}
