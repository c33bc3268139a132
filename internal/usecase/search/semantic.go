package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// Distance metrics of the vector index.
const (
	DistanceCosine = "cosine"
	DistanceIP     = "ip"
	DistanceL2     = "l2"
)

// Semantic embeds queries and fetches nearest neighbours.
type Semantic struct {
	embed    Embedder
	repo     VectorRepository
	distance string
}

// NewSemantic creates the semantic adapter. distance is the vector index metric.
func NewSemantic(embed Embedder, repo VectorRepository, distance string) *Semantic {
	if distance == "" {
		distance = DistanceCosine
	}
	return &Semantic{embed: embed, repo: repo, distance: distance}
}

// Embed vectorizes the query. Provider failures and empty vectors are RetrievalUnavailable.
func (s *Semantic) Embed(ctx context.Context, query string) ([]float32, error) {
	res, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrievalUnavailable, err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("%w: embed query: empty vector", domain.ErrRetrievalUnavailable)
	}
	domain.UsageFromContext(ctx).AddEmbedding(res.TotalTokens)
	return res.Embedding, nil
}

// Search embeds query and returns the k nearest documents.
func (s *Semantic) Search(ctx context.Context, workspace, query string, k int) ([]result.Ranked, error) {
	vec, err := s.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.SearchVector(ctx, workspace, vec, k)
}

// SearchVector returns the k nearest documents to an already computed embedding.
// Cosine and IP distances come back from the store as 1 - d clamped to [0,1];
// L2 distances are unbounded and mapped to 1/(1+d) here.
func (s *Semantic) SearchVector(ctx context.Context, workspace string, vec []float32, k int) ([]result.Ranked, error) {
	if k <= 0 {
		return nil, nil
	}
	raw := s.distance == DistanceL2

	hits, err := s.repo.SearchKNN(ctx, workspace, vec, k, raw)
	if err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) || ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: vector search: %w", domain.ErrRetrievalUnavailable, err)
	}
	if !raw {
		return hits, nil
	}

	out := make([]result.Ranked, len(hits))
	for i := range hits {
		d := max(0, hits[i].Score())
		out[i] = result.NewRanked(hits[i].Document(), 1/(1+d), hits[i].Rank(), result.Semantic)
	}
	return out, nil
}
