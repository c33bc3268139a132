// Package search runs nearest-neighbour queries against the vector backend.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/repository/corpus"
)

var knnFields = []string{db.FieldContent, db.FieldMetadata}

// store is the consumer interface for vector search (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo implements usecase/search.VectorRepository.
type Repo struct {
	store  store
	layout db.Layout
}

// New creates a vector search repository.
func New(s store, layout db.Layout) *Repo {
	return &Repo{store: s, layout: layout}
}

// SearchKNN returns up to k nearest documents in backend order, ranked from 1.
// With rawScores the score is the backend distance; otherwise 1 - distance.
func (r *Repo) SearchKNN(
	ctx context.Context, workspace string, vector []float32, k int, rawScores bool,
) ([]result.Ranked, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.layout.IndexName(workspace),
		Vector:       vector,
		K:            k,
		ReturnFields: knnFields,
		RawScores:    rawScores,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, domain.NewCollectionNotFound(workspace)
		}
		return nil, fmt.Errorf("search knn %s: %w", workspace, err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	prefix := r.layout.DocKeyPrefix(workspace)
	out := make([]result.Ranked, 0, len(sr.Entries))
	for i, e := range sr.Entries {
		out = append(out, result.NewRanked(corpus.FromEntry(e, prefix), e.Score, i+1, result.Semantic))
	}
	return out, nil
}
