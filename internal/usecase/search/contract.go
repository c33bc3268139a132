package search

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// LexicalSearcher answers keyword queries from the in-memory BM25 index.
type LexicalSearcher interface {
	Search(ctx context.Context, workspace, query string, k int) ([]result.Ranked, error)
}

// VectorRepository runs nearest-neighbour queries against the vector backend.
type VectorRepository interface {
	SearchKNN(ctx context.Context, workspace string, vector []float32, k int, rawScores bool) ([]result.Ranked, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
