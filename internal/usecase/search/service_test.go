package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/mode"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

func newRequest(t *testing.T, p request.Params) *request.Request {
	t.Helper()
	if p.Workspace == "" {
		p.Workspace = "docs"
	}
	req, err := request.New(p, request.Defaults{})
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return &req
}

func newService(lex *mockLexical, repo *mockVectorRepo, emb *mockEmbedder, distance string) *Service {
	return New(lex, NewSemantic(emb, repo, distance), 0, nil)
}

func TestSearch_BM25(t *testing.T) {
	lex := &mockLexical{searchFn: func(_ context.Context, ws, q string, k int) ([]result.Ranked, error) {
		if ws != "docs" || q != "quick fox" {
			t.Errorf("unexpected args %q %q", ws, q)
		}
		return ranked(result.Lexical, "d1", "d3")[:k], nil
	}}
	emb := &mockEmbedder{}
	svc := newService(lex, &mockVectorRepo{}, emb, DistanceCosine)

	out, err := svc.Search(context.Background(), newRequest(t, request.Params{
		Query: "quick fox", K: 2, Method: mode.BM25,
	}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.Method != mode.BM25 || out.Count() != 2 {
		t.Fatalf("got method %q count %d", out.Method, out.Count())
	}
	if out.Ranked[0].ID() != "d1" || out.Ranked[1].ID() != "d3" {
		t.Errorf("order = %s, %s", out.Ranked[0].ID(), out.Ranked[1].ID())
	}
	if lex.lastK != 2 {
		t.Errorf("lexical k = %d, want 2", lex.lastK)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times for bm25", emb.calls)
	}
}

func TestSearch_MinScoreFiltersRanked(t *testing.T) {
	lex := &mockLexical{searchFn: func(context.Context, string, string, int) ([]result.Ranked, error) {
		return ranked(result.Lexical, "a", "b", "c"), nil // scores 3, 2, 1
	}}
	svc := newService(lex, &mockVectorRepo{}, &mockEmbedder{}, "")

	out, err := svc.Search(context.Background(), newRequest(t, request.Params{
		Query: "x", Method: mode.BM25, MinScore: 2,
	}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.Count() != 2 || out.Ranked[1].ID() != "b" {
		t.Errorf("filtered = %d results", out.Count())
	}
}

func TestSearch_SemanticL2Scores(t *testing.T) {
	repo := &mockVectorRepo{searchKNNFn: func(context.Context, string, []float32, int, bool) ([]result.Ranked, error) {
		return []result.Ranked{
			result.NewRanked(ranked(result.Semantic, "a")[0].Document(), 0, 1, result.Semantic),
			result.NewRanked(ranked(result.Semantic, "b")[0].Document(), 3, 2, result.Semantic),
		}, nil
	}}
	emb := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 0}, TotalTokens: 4}}
	svc := newService(&mockLexical{}, repo, emb, DistanceL2)

	ctx, usage := domain.NewContextWithUsage(context.Background())
	out, err := svc.Search(ctx, newRequest(t, request.Params{Query: "q", Method: mode.Semantic}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !repo.lastRaw {
		t.Error("l2 search must request raw distances")
	}
	if got := out.Ranked[0].Score(); got != 1 {
		t.Errorf("score(d=0) = %f, want 1", got)
	}
	if got := out.Ranked[1].Score(); got != 0.25 {
		t.Errorf("score(d=3) = %f, want 0.25", got)
	}
	if usage.EmbeddingTokens() != 4 {
		t.Errorf("embedding tokens = %d, want 4", usage.EmbeddingTokens())
	}
}

func TestSearch_SemanticCosinePassesThrough(t *testing.T) {
	repo := &mockVectorRepo{searchKNNFn: func(context.Context, string, []float32, int, bool) ([]result.Ranked, error) {
		return []result.Ranked{result.NewRanked(ranked(result.Semantic, "a")[0].Document(), 0.8, 1, result.Semantic)}, nil
	}}
	emb := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	svc := newService(&mockLexical{}, repo, emb, DistanceCosine)

	out, err := svc.Search(context.Background(), newRequest(t, request.Params{Query: "q", Method: mode.Semantic}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if repo.lastRaw {
		t.Error("cosine search must not request raw distances")
	}
	if out.Ranked[0].Score() != 0.8 {
		t.Errorf("score = %f", out.Ranked[0].Score())
	}
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	emb := &mockEmbedder{err: errors.New("provider down")}
	svc := newService(&mockLexical{}, &mockVectorRepo{}, emb, "")

	_, err := svc.Search(context.Background(), newRequest(t, request.Params{Query: "q", Method: mode.Semantic}))
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("err = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestSearch_EmptyEmbedding(t *testing.T) {
	svc := newService(&mockLexical{}, &mockVectorRepo{}, &mockEmbedder{}, "")

	_, err := svc.Search(context.Background(), newRequest(t, request.Params{Query: "q", Method: mode.Semantic}))
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("err = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestSearch_Hybrid(t *testing.T) {
	lex := &mockLexical{searchFn: func(context.Context, string, string, int) ([]result.Ranked, error) {
		return ranked(result.Lexical, "c", "a", "d"), nil
	}}
	repo := &mockVectorRepo{searchKNNFn: func(context.Context, string, []float32, int, bool) ([]result.Ranked, error) {
		return ranked(result.Semantic, "a", "b", "c"), nil
	}}
	emb := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	svc := newService(lex, repo, emb, "")

	out, err := svc.Search(context.Background(), newRequest(t, request.Params{Query: "q", K: 3}))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if out.Method != mode.Hybrid {
		t.Fatalf("method = %q", out.Method)
	}
	got := fusedIDs(out.Fused)
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
			break
		}
	}
	if lex.lastK != 6 {
		t.Errorf("candidates = %d, want 6", lex.lastK)
	}
}

func TestSearch_HybridFailure(t *testing.T) {
	lex := &mockLexical{searchFn: func(context.Context, string, string, int) ([]result.Ranked, error) {
		return ranked(result.Lexical, "a"), nil
	}}
	repo := &mockVectorRepo{searchKNNFn: func(context.Context, string, []float32, int, bool) ([]result.Ranked, error) {
		return nil, errors.New("connection refused")
	}}
	emb := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	svc := newService(lex, repo, emb, "")

	_, err := svc.Search(context.Background(), newRequest(t, request.Params{Query: "q"}))
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("err = %v, want ErrRetrievalUnavailable", err)
	}
}

func TestRetrieve_FailureCancelsSibling(t *testing.T) {
	lexErr := make(chan error, 1)
	lex := &mockLexical{searchFn: func(ctx context.Context, _, _ string, _ int) ([]result.Ranked, error) {
		select {
		case <-ctx.Done():
			lexErr <- ctx.Err()
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			lexErr <- nil
			return ranked(result.Lexical, "a"), nil
		}
	}}
	repo := &mockVectorRepo{searchKNNFn: func(context.Context, string, []float32, int, bool) ([]result.Ranked, error) {
		return nil, errors.New("connection refused")
	}}
	svc := newService(lex, repo, &mockEmbedder{}, "")

	ctx := context.Background()
	_, err := svc.Retrieve(ctx, HybridQuery{
		Workspace: "docs", Query: "q", Vector: []float32{1}, Candidates: 5,
		SemanticWeight: 0.5, LexicalWeight: 0.5,
	})
	if !errors.Is(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("err = %v, want ErrRetrievalUnavailable", err)
	}
	if got := <-lexErr; !errors.Is(got, context.Canceled) {
		t.Errorf("lexical ctx err = %v, want context.Canceled", got)
	}
	if ctx.Err() != nil {
		t.Error("caller context must stay live")
	}
}

func TestSearch_CollectionNotFoundPassesThrough(t *testing.T) {
	lex := &mockLexical{searchFn: func(_ context.Context, ws, _ string, _ int) ([]result.Ranked, error) {
		return nil, domain.NewCollectionNotFound(ws)
	}}
	repo := &mockVectorRepo{searchKNNFn: func(_ context.Context, ws string, _ []float32, _ int, _ bool) ([]result.Ranked, error) {
		return nil, domain.NewCollectionNotFound(ws)
	}}
	emb := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	svc := newService(lex, repo, emb, "")

	for _, m := range []mode.Mode{mode.BM25, mode.Semantic, mode.Hybrid} {
		_, err := svc.Search(context.Background(), newRequest(t, request.Params{Query: "q", Method: m}))
		if !errors.Is(err, domain.ErrCollectionNotFound) {
			t.Errorf("%s: err = %v, want ErrCollectionNotFound", m, err)
		}
		if errors.Is(err, domain.ErrRetrievalUnavailable) {
			t.Errorf("%s: not-found must not be reported as unavailable", m)
		}
	}
}

func TestHybrid_ReusesVector(t *testing.T) {
	repo := &mockVectorRepo{}
	emb := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{9}}}
	svc := newService(&mockLexical{}, repo, emb, "")

	vec := []float32{0.1, 0.2}
	_, err := svc.Hybrid(context.Background(), HybridQuery{
		Workspace: "docs", Query: "q", Vector: vec, Candidates: 5,
		SemanticWeight: 0.5, LexicalWeight: 0.5,
	})
	if err != nil {
		t.Fatalf("Hybrid: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times with a precomputed vector", emb.calls)
	}
	if len(repo.lastVector) != 2 || repo.lastVector[0] != 0.1 {
		t.Errorf("vector = %v", repo.lastVector)
	}
}

func TestCandidates(t *testing.T) {
	svc := New(nil, nil, 50, nil)
	cases := map[int]int{1: 2, 10: 20, 25: 50, 40: 50, 60: 60, 100: 100}
	for k, want := range cases {
		if got := svc.Candidates(k); got != want {
			t.Errorf("Candidates(%d) = %d, want %d", k, got, want)
		}
	}
}
