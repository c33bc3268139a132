package pipeline

import (
	"context"
	"sort"

	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// Reranker reorders fused candidates and keeps the ones that feed the context.
type Reranker interface {
	Rerank(ctx context.Context, fused []result.Fused, req *pipeline.Request) ([]result.Fused, error)
}

// ScoreReranker keeps the fusion order and truncates to k.
type ScoreReranker struct{}

// Rerank stable-sorts by RRF score and truncates to req.K().
func (ScoreReranker) Rerank(_ context.Context, fused []result.Fused, req *pipeline.Request) ([]result.Fused, error) {
	out := make([]result.Fused, len(fused))
	copy(out, fused)
	sort.SliceStable(out, func(i, j int) bool { return out[i].RRFScore() > out[j].RRFScore() })
	if k := req.K(); len(out) > k {
		out = out[:k]
	}
	return out, nil
}
