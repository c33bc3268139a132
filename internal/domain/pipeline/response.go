package pipeline

import (
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// CacheStatus describes how the similarity cache answered.
type CacheStatus string

// Cache statuses.
const (
	CacheMiss        CacheStatus = "miss"
	CacheExactHit    CacheStatus = "exact_hit"
	CacheSemanticHit CacheStatus = "semantic_hit"
	// CacheBypass marks runs where the cache was disabled or unavailable.
	CacheBypass CacheStatus = "bypass"
)

// IsHit reports whether the answer came from the cache.
func (s CacheStatus) IsHit() bool { return s == CacheExactHit || s == CacheSemanticHit }

// Timing is the per-stage latency breakdown of one run.
type Timing struct {
	CacheLookup time.Duration
	Retrieval   time.Duration
	Rerank      time.Duration
	Generation  time.Duration
	Total       time.Duration
}

// Response is the result of a completed run.
type Response struct {
	QueryID       string
	Answer        string
	Sources       []result.Fused
	Timing        Timing
	CacheStatus   CacheStatus
	Model         string
	ContextLength int
	// NoContext is set when retrieval returned nothing and generation was skipped.
	NoContext bool
	// Token usage of this run. Zero on cache hits.
	EmbeddingTokens  int
	PromptTokens     int
	CompletionTokens int
	CreatedAt        time.Time
}
