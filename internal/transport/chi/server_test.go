package chi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/domain/search/mode"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/lexical"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	searchuc "github.com/kailas-cloud/ragdex/internal/usecase/search"
)

func TestSearch_Hybrid(t *testing.T) {
	env := newTestEnv(t)
	env.search.searchFn = func(_ context.Context, req *request.Request) (*searchuc.Outcome, error) {
		return &searchuc.Outcome{
			Method: mode.Hybrid,
			Fused: []result.Fused{
				result.NewFused(testDoc("a", "alpha"), 0.0163, contribution(3.2, 1), contribution(0.9, 2)),
				result.NewFused(testDoc("b", "beta"), 0.0081, contribution(2.1, 2), nil),
			},
			Took: 12 * time.Millisecond,
		}, nil
	}

	rr := env.do(t, http.MethodPost, "/search", SearchRequest{Query: "alpha beta", K: 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[SearchResponse](t, rr)

	if resp.Method != mode.Hybrid || resp.Count != 2 || resp.Query != "alpha beta" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if resp.TookMs != 12 {
		t.Errorf("took_ms = %v, expected 12", resp.TookMs)
	}

	first := resp.Results[0]
	if first.ID != "a" || first.RRFScore == nil || *first.RRFScore != 0.0163 || first.Score != 0.0163 {
		t.Errorf("unexpected first result: %+v", first)
	}
	if first.SemanticRank == nil || *first.SemanticRank != 2 || first.LexicalRank == nil || *first.LexicalRank != 1 {
		t.Errorf("contributions not rendered: %+v", first)
	}
	if v, _ := first.Metadata.Get("title"); v != "A" {
		t.Errorf("metadata not rendered: %v", first.Metadata)
	}
	if resp.Results[1].SemanticScore != nil {
		t.Errorf("lexical-only result must omit semantic fields: %+v", resp.Results[1])
	}

	if env.search.last.Workspace() != "docs" {
		t.Errorf("default workspace not applied: %q", env.search.last.Workspace())
	}
}

func TestSearch_SingleMethod(t *testing.T) {
	env := newTestEnv(t)
	env.search.searchFn = func(_ context.Context, req *request.Request) (*searchuc.Outcome, error) {
		return &searchuc.Outcome{
			Method: mode.BM25,
			Ranked: []result.Ranked{
				result.NewRanked(testDoc("x", "xx"), 2.5, 1, result.Lexical),
				result.NewRanked(testDoc("y", "yy"), 1.5, 2, result.Lexical),
			},
		}, nil
	}

	rr := env.do(t, http.MethodPost, "/search", SearchRequest{Query: "x", Method: " Lexical", K: 2})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[SearchResponse](t, rr)
	if resp.Method != mode.BM25 || resp.Count != 2 {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	for i, item := range resp.Results {
		if item.Method != "lexical" || item.LexicalRank == nil || *item.LexicalRank != i+1 {
			t.Errorf("result %d: %+v", i, item)
		}
		if item.RRFScore != nil {
			t.Errorf("single-method result must omit rrf_score")
		}
	}
	if env.search.last.Method() != mode.BM25 {
		t.Errorf("method = %q", env.search.last.Method())
	}
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"empty query", SearchRequest{Query: "  "}},
		{"negative k", SearchRequest{Query: "q", K: -1}},
		{"k too large", SearchRequest{Query: "q", K: 101}},
		{"unknown method", SearchRequest{Query: "q", Method: "fuzzy"}},
		{"negative rrf_k", SearchRequest{Query: "q", RRFK: -5}},
		{"three weights", SearchRequest{Query: "q", Weights: []float64{0.3, 0.3, 0.4}}},
		{"negative weight", SearchRequest{Query: "q", Weights: []float64{-1, 1}}},
		{"negative min_score", SearchRequest{Query: "q", MinScore: -0.1}},
		{"query too long", SearchRequest{Query: strings.Repeat("a", 10001)}},
		{"malformed json", `{"query":`},
		{"workspace with separator", SearchRequest{Query: "q", Workspace: "a:entry:b"}},
		{"workspace with glob", SearchRequest{Query: "q", Workspace: "docs*"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(t, http.MethodPost, "/search", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rr.Code, rr.Body.String())
			}
			resp := decodeBody[ErrorResponse](t, rr)
			if resp.Code != CodeInvalidRequest {
				t.Errorf("code = %q", resp.Code)
			}
			if env.search.calls != 0 {
				t.Error("search must not run for invalid input")
			}
		})
	}
}

func TestSearchQuery(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet,
		"/search?q=quick+fox&k=3&method=lexical&rrf_k=20&weights=0.7,0.3&min_score=0.25&workspace=geo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	req := env.search.last
	if req.Query() != "quick fox" || req.K() != 3 || req.Method() != mode.BM25 || req.Workspace() != "geo" {
		t.Errorf("unexpected request: %q k=%d method=%q ws=%q", req.Query(), req.K(), req.Method(), req.Workspace())
	}
	if req.RRFK() != 20 || req.SemanticWeight() != 0.7 || req.LexicalWeight() != 0.3 || req.MinScore() != 0.25 {
		t.Errorf("unexpected tuning: rrf_k=%d weights=%v/%v min=%v",
			req.RRFK(), req.SemanticWeight(), req.LexicalWeight(), req.MinScore())
	}

	env.do(t, http.MethodGet, "/search?query=alpha", nil)
	if env.search.last.Query() != "alpha" || env.search.last.Method() != mode.Hybrid {
		t.Errorf("query alias: %q %q", env.search.last.Query(), env.search.last.Method())
	}
}

func TestSearchQuery_Validation(t *testing.T) {
	for _, path := range []string{
		"/search",
		"/search?q=x&k=ten",
		"/search?q=x&rrf_k=1.5",
		"/search?q=x&min_score=high",
		"/search?q=x&weights=0.5,abc",
		"/search?q=x&weights=1",
		"/search?q=x&workspace=a:b",
	} {
		t.Run(path, func(t *testing.T) {
			env := newTestEnv(t)
			rr := env.do(t, http.MethodGet, path, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rr.Code, rr.Body.String())
			}
			if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeInvalidRequest {
				t.Errorf("code = %q", resp.Code)
			}
			if env.search.calls != 0 {
				t.Error("search must not run for invalid input")
			}
		})
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      ErrorCode
		workspace string
	}{
		{"retrieval", fmt.Errorf("semantic: %w", domain.ErrRetrievalUnavailable), http.StatusServiceUnavailable, CodeRetrievalUnavailable, ""},
		{"not found", domain.NewCollectionNotFound("missing"), http.StatusNotFound, CodeCollectionNotFound, "missing"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, CodeInternal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.search.searchFn = func(context.Context, *request.Request) (*searchuc.Outcome, error) {
				return nil, tt.err
			}
			rr := env.do(t, http.MethodPost, "/search", SearchRequest{Query: "q"})
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			resp := decodeBody[ErrorResponse](t, rr)
			if resp.Code != tt.code || resp.Workspace != tt.workspace {
				t.Errorf("body = %+v", resp)
			}
			if strings.Contains(resp.Message, "boom") {
				t.Error("internal error details must not leak")
			}
		})
	}
}

func sampleResponse() *pipeline.Response {
	return &pipeline.Response{
		QueryID: "q-1",
		Answer:  "Paris.",
		Sources: []result.Fused{
			result.NewFused(testDoc("a", "alpha"), 0.0163, contribution(3.2, 1), contribution(0.9, 2)),
		},
		Timing: pipeline.Timing{
			Retrieval:  30 * time.Millisecond,
			Generation: 200 * time.Millisecond,
			Total:      240 * time.Millisecond,
		},
		CacheStatus:   pipeline.CacheMiss,
		Model:         "phi3:mini",
		ContextLength: 120,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestQuery_Buffered(t *testing.T) {
	env := newTestEnv(t)
	env.answer.executeFn = func(context.Context, pipeline.Params) (*pipeline.Response, error) {
		return sampleResponse(), nil
	}

	rr := env.do(t, http.MethodPost, "/query",
		`{"question":"capital of France?","workspace":"geo","k":3,"temperature":0,"max_tokens":64,"model":"llama3"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[QueryResponse](t, rr)

	if resp.Response != "Paris." || len(resp.Sources) != 1 || resp.Sources[0].ID != "a" {
		t.Errorf("unexpected body: %+v", resp)
	}
	md := resp.Metadata
	if md.Cached || md.CacheStatus != "miss" || md.RetrievalMethod != "hybrid" {
		t.Errorf("unexpected cache metadata: %+v", md)
	}
	if md.RetrievalTimeMs != 30 || md.GenerationTimeMs != 200 || md.TotalTimeMs != 240 {
		t.Errorf("unexpected timings: %+v", md)
	}
	if md.Model != "phi3:mini" || md.ContextLength != 120 || md.SourceCount != 1 || md.QueryID != "q-1" {
		t.Errorf("unexpected metadata: %+v", md)
	}
	if !resp.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("timestamp = %v", resp.Timestamp)
	}

	p := env.answer.last
	if p.Question != "capital of France?" || p.Workspace != "geo" || p.K != 3 || p.MaxTokens != 64 || p.Model != "llama3" {
		t.Errorf("params not forwarded: %+v", p)
	}
	if p.Temperature == nil || *p.Temperature != 0 {
		t.Errorf("explicit zero temperature must be forwarded, got %v", p.Temperature)
	}
}

func TestQuery_CachedAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.answer.executeFn = func(context.Context, pipeline.Params) (*pipeline.Response, error) {
		resp := sampleResponse()
		resp.CacheStatus = pipeline.CacheSemanticHit
		return resp, nil
	}

	rr := env.do(t, http.MethodPost, "/query", QueryRequest{Question: "q"})
	resp := decodeBody[QueryResponse](t, rr)
	if !resp.Metadata.Cached || resp.Metadata.CacheStatus != "semantic_hit" {
		t.Errorf("unexpected metadata: %+v", resp.Metadata)
	}
}

func TestQuery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
		stage  string
	}{
		{
			"invalid",
			domain.InvalidRequestf("question is required"),
			http.StatusBadRequest, CodeInvalidRequest, "",
		},
		{
			"retrieval",
			domain.NewStageError(domain.StageRetrieving, fmt.Errorf("bm25: %w", domain.ErrRetrievalUnavailable)),
			http.StatusServiceUnavailable, CodeRetrievalUnavailable, domain.StageRetrieving,
		},
		{
			"generation",
			domain.NewStageError(domain.StageGenerating, fmt.Errorf("chat: %w", domain.ErrGenerationUnavailable)),
			http.StatusBadGateway, CodeGenerationUnavailable, domain.StageGenerating,
		},
		{
			"workspace",
			domain.NewStageError(domain.StageRetrieving, domain.NewCollectionNotFound("nope")),
			http.StatusNotFound, CodeCollectionNotFound, domain.StageRetrieving,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.answer.executeFn = func(context.Context, pipeline.Params) (*pipeline.Response, error) {
				return nil, tt.err
			}
			rr := env.do(t, http.MethodPost, "/query", QueryRequest{Question: "q"})
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.status, rr.Body.String())
			}
			resp := decodeBody[ErrorResponse](t, rr)
			if resp.Code != tt.code || resp.Stage != tt.stage {
				t.Errorf("body = %+v", resp)
			}
		})
	}
}

func TestQuery_QueueFull(t *testing.T) {
	env := newTestEnv(t)
	env.server.queue = NewQueue(1, -1)
	release, err := env.server.queue.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	rr := env.do(t, http.MethodPost, "/query", QueryRequest{Question: "q"})
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "5" {
		t.Errorf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeQueueFull {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestQuery_ReleasesSlot(t *testing.T) {
	env := newTestEnv(t)
	env.server.queue = NewQueue(1, -1)

	for i := range 3 {
		rr := env.do(t, http.MethodPost, "/query", QueryRequest{Question: "q"})
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rr.Code)
		}
	}
	if st := env.server.queue.Stats(); st.InFlight != 0 || st.Waiting != 0 {
		t.Errorf("queue not drained: %+v", st)
	}
}

func TestReload(t *testing.T) {
	env := newTestEnv(t)
	env.index.reloadFn = func(context.Context, string) (*lexical.Index, error) {
		docs := []document.Document{testDoc("a", "one"), testDoc("b", "two"), testDoc("c", "three")}
		return lexical.Build(docs, lexical.DefaultParams()), nil
	}

	rr := env.do(t, http.MethodPost, "/reload", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[ReloadResponse](t, rr)
	if resp.Workspace != "docs" || resp.Status != "ready" || resp.DocumentCount != 3 {
		t.Errorf("unexpected body: %+v", resp)
	}

	env.do(t, http.MethodPost, "/reload", ReloadRequest{Workspace: "other"})
	if env.index.reloadedW != "other" {
		t.Errorf("reloaded %q, expected other", env.index.reloadedW)
	}
}

func TestReload_UnknownWorkspace(t *testing.T) {
	env := newTestEnv(t)
	env.index.reloadFn = func(_ context.Context, ws string) (*lexical.Index, error) {
		return nil, domain.NewCollectionNotFound(ws)
	}

	rr := env.do(t, http.MethodPost, "/reload", ReloadRequest{Workspace: "ghost"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Workspace != "ghost" {
		t.Errorf("workspace = %q", resp.Workspace)
	}
}

func TestReload_InvalidWorkspace(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/reload", ReloadRequest{Workspace: "a:entry:b"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if env.index.reloadedW != "" {
		t.Errorf("reload ran for %q", env.index.reloadedW)
	}
}

func TestInvalidateCache(t *testing.T) {
	env := newTestEnv(t)
	var gotQuestion, gotWorkspace string
	env.cache.invalidateFn = func(_ context.Context, ws, q string) (int, error) {
		gotWorkspace, gotQuestion = ws, q
		return 1, nil
	}
	env.cache.invalidateWsFn = func(_ context.Context, ws string) (int, error) {
		gotWorkspace, gotQuestion = ws, ""
		return 7, nil
	}

	rr := env.do(t, http.MethodPost, "/cache/invalidate", InvalidateRequest{Question: "What is BM25?"})
	resp := decodeBody[InvalidateResponse](t, rr)
	if resp.Deleted != 1 || gotQuestion != "What is BM25?" || gotWorkspace != "docs" {
		t.Errorf("single invalidation: resp=%+v q=%q ws=%q", resp, gotQuestion, gotWorkspace)
	}

	rr = env.do(t, http.MethodPost, "/cache/invalidate", InvalidateRequest{Workspace: "geo"})
	resp = decodeBody[InvalidateResponse](t, rr)
	if resp.Deleted != 7 || resp.Workspace != "geo" || gotWorkspace != "geo" {
		t.Errorf("workspace invalidation: resp=%+v ws=%q", resp, gotWorkspace)
	}
}

func TestInvalidateCache_BackendDown(t *testing.T) {
	env := newTestEnv(t)
	env.cache.invalidateWsFn = func(context.Context, string) (int, error) {
		return 0, fmt.Errorf("%w: connection refused", domain.ErrCacheUnavailable)
	}

	rr := env.do(t, http.MethodPost, "/cache/invalidate", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeCacheUnavailable {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestInvalidateCache_Disabled(t *testing.T) {
	env := newTestEnv(t)
	env.server.cache = nil

	rr := env.do(t, http.MethodPost, "/cache/invalidate", InvalidateRequest{Workspace: "geo"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decodeBody[InvalidateResponse](t, rr); resp.Deleted != 0 {
		t.Errorf("deleted = %d", resp.Deleted)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.index.stats = []lexical.Stats{
		{Workspace: "docs", State: "ready", Documents: 3},
		{Workspace: "geo", State: "unbuilt"},
	}
	env.cache.statsFn = func(_ context.Context, ws string) (int, error) {
		if ws == "geo" {
			return 0, domain.ErrCacheUnavailable
		}
		return 4, nil
	}

	rr := env.do(t, http.MethodGet, "/stats", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decodeBody[StatsResponse](t, rr)
	if len(resp.Lexical) != 2 || resp.Lexical[0].Documents != 3 {
		t.Errorf("lexical stats: %+v", resp.Lexical)
	}
	if !resp.Cache.Enabled || resp.Cache.Entries["docs"] != 4 {
		t.Errorf("cache stats: %+v", resp.Cache)
	}
	if _, ok := resp.Cache.Entries["geo"]; ok {
		t.Error("failed workspace must be skipped")
	}
	if resp.Queue.MaxConcurrent != 2 || resp.Queue.MaxQueueDepth != 2 {
		t.Errorf("queue stats: %+v", resp.Queue)
	}
}

func TestCollection(t *testing.T) {
	env := newTestEnv(t)
	env.collections.countFn = func(_ context.Context, ws string) (int, error) {
		if ws != "docs" {
			t.Errorf("counted %q", ws)
		}
		return 12_000, nil
	}
	env.index.stats = []lexical.Stats{
		{Workspace: "geo", State: "ready", Documents: 5},
		{Workspace: "docs", State: "ready", Documents: 11_990},
	}
	env.cache.statsFn = func(context.Context, string) (int, error) { return 7, nil }

	rr := env.do(t, http.MethodGet, "/collection", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[CollectionResponse](t, rr)
	if resp.Name != "docs" || resp.DocumentCount != 12_000 {
		t.Errorf("unexpected body: %+v", resp)
	}
	if resp.Lexical == nil || resp.Lexical.Documents != 11_990 {
		t.Errorf("lexical = %+v", resp.Lexical)
	}
	if resp.CacheEntries == nil || *resp.CacheEntries != 7 {
		t.Errorf("cache entries = %v", resp.CacheEntries)
	}
}

func TestCollection_NotLoadedAndCacheDown(t *testing.T) {
	env := newTestEnv(t)
	env.collections.countFn = func(context.Context, string) (int, error) { return 3, nil }
	env.cache.statsFn = func(context.Context, string) (int, error) { return 0, domain.ErrCacheUnavailable }

	rr := env.do(t, http.MethodGet, "/collection?workspace=geo", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[CollectionResponse](t, rr)
	if resp.Name != "geo" || resp.Lexical != nil || resp.CacheEntries != nil {
		t.Errorf("unexpected body: %+v", resp)
	}
}

func TestCollection_Errors(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		err   error
		code  int
		ecode ErrorCode
	}{
		{"unknown", "/collection?workspace=ghost", domain.NewCollectionNotFound("ghost"), http.StatusNotFound, CodeCollectionNotFound},
		{"backend down", "/collection", fmt.Errorf("%w: count docs: refused", domain.ErrRetrievalUnavailable),
			http.StatusServiceUnavailable, CodeRetrievalUnavailable},
		{"invalid name", "/collection?workspace=a*", nil, http.StatusBadRequest, CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.collections.countFn = func(context.Context, string) (int, error) { return 0, tt.err }

			rr := env.do(t, http.MethodGet, tt.path, nil)
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			if resp := decodeBody[ErrorResponse](t, rr); resp.Code != tt.ecode {
				t.Errorf("code = %q", resp.Code)
			}
		})
	}
}

func TestWorkspaces(t *testing.T) {
	env := newTestEnv(t)
	env.collections.workspacesFn = func(context.Context) ([]string, error) {
		return []string{"docs", "geo"}, nil
	}
	env.index.stats = []lexical.Stats{{Workspace: "docs", State: "ready", Documents: 3}}

	rr := env.do(t, http.MethodGet, "/workspaces", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[WorkspacesResponse](t, rr)
	if resp.Count != 2 || len(resp.Workspaces) != 2 {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if w := resp.Workspaces[0]; w.Name != "docs" || w.LexicalState != "ready" || w.Documents != 3 {
		t.Errorf("docs = %+v", w)
	}
	if w := resp.Workspaces[1]; w.Name != "geo" || w.LexicalState != "unbuilt" {
		t.Errorf("geo = %+v", w)
	}
}

func TestWorkspaces_BackendDown(t *testing.T) {
	env := newTestEnv(t)
	env.collections.workspacesFn = func(context.Context) ([]string, error) {
		return nil, fmt.Errorf("%w: list workspaces: refused", domain.ErrRetrievalUnavailable)
	}

	rr := env.do(t, http.MethodGet, "/workspaces", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		code   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			env := newTestEnv(t)
			env.health.report = healthuc.Report{
				Status: tt.status,
				Checks: map[string]healthuc.CheckResult{"vector": healthuc.CheckOK, "cache": healthuc.CheckError},
			}
			rr := env.do(t, http.MethodGet, "/health", nil)
			if rr.Code != tt.code {
				t.Fatalf("status = %d, want %d", rr.Code, tt.code)
			}
			resp := decodeBody[HealthResponse](t, rr)
			if resp.Status != string(tt.status) || resp.Checks["cache"] != "error" || resp.Version == "" {
				t.Errorf("body = %+v", resp)
			}
		})
	}
}

func TestRouter_AuthAndExemptions(t *testing.T) {
	env := newTestEnv(t)
	env.server.apiKeys = []string{"secret"}

	rr := env.do(t, http.MethodPost, "/search", SearchRequest{Query: "q"})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("search without token: %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("health must be exempt: %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	mrr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(mrr, req)
	if mrr.Code != http.StatusOK || !strings.Contains(mrr.Body.String(), "ragdex_http_requests_total") {
		t.Errorf("metrics: %d", mrr.Code)
	}
}

func TestRouter_RequestIDAndNotFound(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if resp := decodeBody[ErrorResponse](t, rr); resp.Code != CodeInternal {
		t.Errorf("code = %q", resp.Code)
	}
}
