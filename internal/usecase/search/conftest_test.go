package search

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

type mockLexical struct {
	searchFn func(ctx context.Context, workspace, query string, k int) ([]result.Ranked, error)
	lastK    int
}

func (m *mockLexical) Search(ctx context.Context, workspace, query string, k int) ([]result.Ranked, error) {
	m.lastK = k
	if m.searchFn != nil {
		return m.searchFn(ctx, workspace, query, k)
	}
	return nil, nil
}

type mockVectorRepo struct {
	searchKNNFn func(ctx context.Context, workspace string, vector []float32, k int, raw bool) ([]result.Ranked, error)
	lastVector  []float32
	lastRaw     bool
}

func (m *mockVectorRepo) SearchKNN(
	ctx context.Context, workspace string, vector []float32, k int, raw bool,
) ([]result.Ranked, error) {
	m.lastVector, m.lastRaw = vector, raw
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, workspace, vector, k, raw)
	}
	return nil, nil
}

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

func ranked(method result.Method, ids ...string) []result.Ranked {
	out := make([]result.Ranked, len(ids))
	for i, id := range ids {
		out[i] = result.NewRanked(document.Reconstruct(id, "text-"+id, nil), float64(len(ids)-i), i+1, method)
	}
	return out
}

func fusedIDs(fs []result.Fused) []string {
	ids := make([]string, len(fs))
	for i := range fs {
		ids[i] = fs[i].ID()
	}
	return ids
}
