package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/domain/search/mode"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/lexical"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/version"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
)

const maxBodyBytes = 1 << 20

// Deps are the use cases behind the HTTP API. Cache may be nil when caching is disabled.
type Deps struct {
	Search      Searcher
	Answer      Answerer
	Index       Indexer
	Cache       CacheAdmin
	Collections CollectionReader
	Health      HealthChecker
	Queue       *Queue
	APIKeys     []string
}

// Server serves the ragdex HTTP API.
type Server struct {
	search         Searcher
	answer         Answerer
	index          Indexer
	cache          CacheAdmin
	collections    CollectionReader
	health         HealthChecker
	queue          *Queue
	apiKeys        []string
	searchDefaults request.Defaults
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates an HTTP API server. defaults fill omitted /search fields; its
// Workspace is also the fallback for /reload, /cache/invalidate, /collection and /stats.
func NewServer(deps Deps, defaults request.Defaults, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	queue := deps.Queue
	if queue == nil {
		queue = NewQueue(DefaultMaxConcurrent, DefaultMaxQueueDepth)
	}
	return &Server{
		search:         deps.Search,
		answer:         deps.Answer,
		index:          deps.Index,
		cache:          deps.Cache,
		collections:    deps.Collections,
		health:         deps.Health,
		queue:          queue,
		apiKeys:        deps.APIKeys,
		searchDefaults: defaults,
		logger:         logger,
		errorHandlers:  defaultErrorHandlers(),
	}
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(APIKeyMiddleware(s.apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/stats", s.Stats)
	r.Get("/search", s.SearchQuery)
	r.Post("/search", s.Search)
	r.Get("/collection", s.Collection)
	r.Get("/workspaces", s.Workspaces)
	r.With(s.queueMiddleware).Post("/query", s.Query)
	r.Post("/reload", s.Reload)
	r.Post("/cache/invalidate", s.InvalidateCache)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeInvalidRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
	})
	return r
}

// Search handles POST /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.runSearch(w, r, body)
}

// SearchQuery handles GET /search. Parameters mirror the POST body, with q as an alias
// of query and weights given as "semantic,lexical".
func (s *Server) SearchQuery(w http.ResponseWriter, r *http.Request) {
	body, err := searchFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	s.runSearch(w, r, body)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, body SearchRequest) {
	req, err := request.New(request.Params{
		Query:     body.Query,
		Workspace: body.Workspace,
		K:         body.K,
		Method:    mode.Normalize(body.Method),
		RRFK:      body.RRFK,
		Weights:   body.Weights,
		MinScore:  body.MinScore,
	}, s.searchDefaults)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	out, err := s.search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	var items []ResultItem
	if out.Method == mode.Hybrid {
		items = fusedItems(out.Fused)
	} else {
		items = make([]ResultItem, len(out.Ranked))
		for i := range out.Ranked {
			items[i] = rankedToItem(&out.Ranked[i])
		}
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Query:   req.Query(),
		Method:  out.Method,
		Count:   len(items),
		TookMs:  millis(out.Took),
		Results: items,
	})
}

// Query handles POST /query, buffered or as a server-sent event stream.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var body QueryRequest
	if !s.decode(w, r, &body) {
		return
	}

	params := pipeline.Params{
		Question:    body.Question,
		Workspace:   body.Workspace,
		K:           body.K,
		Stream:      body.Stream,
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
		MinScore:    body.MinScore,
		Model:       body.Model,
	}
	if body.Stream {
		s.streamQuery(w, r, params)
		return
	}

	resp, err := s.answer.Execute(r.Context(), params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Response:  resp.Answer,
		Sources:   fusedItems(resp.Sources),
		Metadata:  queryMetadata(resp),
		Timestamp: resp.CreatedAt,
	})
}

// Reload handles POST /reload. Concurrent reloads of one workspace share a single build.
func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	var body ReloadRequest
	if !s.decodeOptional(w, r, &body) {
		return
	}
	workspace, ok := s.workspace(w, body.Workspace)
	if !ok {
		return
	}

	start := time.Now()
	idx, err := s.index.Reload(r.Context(), workspace)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ReloadResponse{
		Workspace:     workspace,
		Status:        "ready",
		DocumentCount: idx.Len(),
		TookMs:        millis(time.Since(start)),
	})
}

// InvalidateCache handles POST /cache/invalidate.
func (s *Server) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var body InvalidateRequest
	if !s.decodeOptional(w, r, &body) {
		return
	}
	workspace, ok := s.workspace(w, body.Workspace)
	if !ok {
		return
	}
	if s.cache == nil {
		writeJSON(w, http.StatusOK, InvalidateResponse{Workspace: workspace, Question: body.Question})
		return
	}

	var (
		deleted int
		err     error
	)
	if strings.TrimSpace(body.Question) != "" {
		deleted, err = s.cache.Invalidate(r.Context(), workspace, body.Question)
	} else {
		deleted, err = s.cache.InvalidateWorkspace(r.Context(), workspace)
	}
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	s.requestLogger(r).Info("cache invalidated",
		zap.String("workspace", workspace),
		zap.Bool("single", body.Question != ""),
		zap.Int("deleted", deleted),
	)
	writeJSON(w, http.StatusOK, InvalidateResponse{Workspace: workspace, Question: body.Question, Deleted: deleted})
}

// Collection handles GET /collection.
func (s *Server) Collection(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.workspace(w, r.URL.Query().Get("workspace"))
	if !ok {
		return
	}

	n, err := s.collections.Count(r.Context(), workspace)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := CollectionResponse{Name: workspace, DocumentCount: n}
	for _, st := range s.index.Stats() {
		if st.Workspace == workspace {
			resp.Lexical = &st
			break
		}
	}
	if s.cache != nil {
		entries, err := s.cache.Stats(r.Context(), workspace)
		if err != nil {
			s.requestLogger(r).Warn("cache stats failed", zap.String("workspace", workspace), zap.Error(err))
		} else {
			resp.CacheEntries = &entries
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Workspaces handles GET /workspaces.
func (s *Server) Workspaces(w http.ResponseWriter, r *http.Request) {
	names, err := s.collections.Workspaces(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	loaded := make(map[string]lexical.Stats)
	for _, st := range s.index.Stats() {
		loaded[st.Workspace] = st
	}
	items := make([]WorkspaceItem, 0, len(names))
	for _, name := range names {
		item := WorkspaceItem{Name: name, LexicalState: lexical.Unbuilt.String()}
		if st, ok := loaded[name]; ok {
			item.LexicalState, item.Documents = st.State, st.Documents
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, WorkspacesResponse{Workspaces: items, Count: len(items)})
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	lexStats := s.index.Stats()
	resp := StatsResponse{
		Lexical: lexStats,
		Cache:   CacheStats{Enabled: s.cache != nil},
		Queue:   s.queue.Stats(),
	}

	if s.cache != nil {
		workspaces := make([]string, 0, len(lexStats)+1)
		if s.searchDefaults.Workspace != "" {
			workspaces = append(workspaces, s.searchDefaults.Workspace)
		}
		for _, st := range lexStats {
			workspaces = append(workspaces, st.Workspace)
		}

		resp.Cache.Entries = make(map[string]int, len(workspaces))
		for _, ws := range workspaces {
			if _, seen := resp.Cache.Entries[ws]; seen {
				continue
			}
			n, err := s.cache.Stats(r.Context(), ws)
			if err != nil {
				s.requestLogger(r).Warn("cache stats failed", zap.String("workspace", ws), zap.Error(err))
				continue
			}
			resp.Cache.Entries[ws] = n
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Version: version.Version,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptional accepts an empty body as the zero value.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) workspace(w http.ResponseWriter, requested string) (string, bool) {
	ws := strings.TrimSpace(requested)
	if ws == "" {
		ws = s.searchDefaults.Workspace
	}
	if err := domain.ValidateWorkspace(ws); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return "", false
	}
	return ws, true
}

func searchFromQuery(v url.Values) (SearchRequest, error) {
	body := SearchRequest{
		Query:     v.Get("q"),
		Method:    v.Get("method"),
		Workspace: v.Get("workspace"),
	}
	if body.Query == "" {
		body.Query = v.Get("query")
	}

	var err error
	if body.K, err = intParam(v, "k"); err != nil {
		return body, err
	}
	if body.RRFK, err = intParam(v, "rrf_k"); err != nil {
		return body, err
	}
	if raw := v.Get("min_score"); raw != "" {
		if body.MinScore, err = strconv.ParseFloat(raw, 64); err != nil {
			return body, fmt.Errorf("invalid min_score %q", raw)
		}
	}
	if raw := v.Get("weights"); raw != "" {
		for part := range strings.SplitSeq(raw, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return body, fmt.Errorf("invalid weights %q", raw)
			}
			body.Weights = append(body.Weights, f)
		}
	}
	return body, nil
}

func intParam(v url.Values, name string) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return logpkg.FromContextOr(r.Context(), s.logger)
}
