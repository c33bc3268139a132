package chi

import (
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/domain/search/mode"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/lexical"
)

// ErrorCode is the machine-readable error kind in error bodies and stream events.
type ErrorCode string

// Error codes.
const (
	CodeInvalidRequest        ErrorCode = "invalid_request"
	CodeUnauthorized          ErrorCode = "unauthorized"
	CodeCollectionNotFound    ErrorCode = "collection_not_found"
	CodeRetrievalUnavailable  ErrorCode = "retrieval_unavailable"
	CodeGenerationUnavailable ErrorCode = "generation_unavailable"
	CodeEmbeddingProvider     ErrorCode = "embedding_provider_error"
	CodeCacheUnavailable      ErrorCode = "cache_unavailable"
	CodeQueueFull             ErrorCode = "queue_full"
	CodeCanceled              ErrorCode = "canceled"
	CodeInternal              ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Stage     string    `json:"stage,omitempty"`
	Workspace string    `json:"workspace,omitempty"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query     string    `json:"query"`
	K         int       `json:"k"`
	Method    string    `json:"method"`
	RRFK      int       `json:"rrf_k"`
	Weights   []float64 `json:"weights"`
	MinScore  float64   `json:"min_score"`
	Workspace string    `json:"workspace"`
}

// ResultItem is one hit in /search results and /query sources.
type ResultItem struct {
	ID            string            `json:"id"`
	Text          string            `json:"text"`
	Metadata      document.Metadata `json:"metadata"`
	Score         float64           `json:"score"`
	Method        string            `json:"method"`
	RRFScore      *float64          `json:"rrf_score,omitempty"`
	SemanticScore *float64          `json:"semantic_score,omitempty"`
	SemanticRank  *int              `json:"semantic_rank,omitempty"`
	LexicalScore  *float64          `json:"lexical_score,omitempty"`
	LexicalRank   *int              `json:"lexical_rank,omitempty"`
}

// SearchResponse is the body of a successful /search.
type SearchResponse struct {
	Query   string       `json:"query"`
	Method  mode.Mode    `json:"method"`
	Count   int          `json:"count"`
	TookMs  float64      `json:"took_ms"`
	Results []ResultItem `json:"results"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question    string   `json:"question"`
	Workspace   string   `json:"workspace"`
	K           int      `json:"k"`
	Stream      bool     `json:"stream"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	MinScore    float64  `json:"min_score"`
	Model       string   `json:"model"`
}

// QueryMetadata describes how an answer was produced.
type QueryMetadata struct {
	Cached           bool    `json:"cached"`
	CacheStatus      string  `json:"cache_status"`
	RetrievalMethod  string  `json:"retrieval_method"`
	RetrievalTimeMs  float64 `json:"retrieval_time_ms"`
	RerankTimeMs     float64 `json:"rerank_time_ms"`
	GenerationTimeMs float64 `json:"generation_time_ms"`
	TotalTimeMs      float64 `json:"total_time_ms"`
	Model            string  `json:"model"`
	ContextLength    int     `json:"context_length"`
	SourceCount      int     `json:"source_count"`
	QueryID          string  `json:"query_id"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
}

// QueryResponse is the body of a buffered /query.
type QueryResponse struct {
	Response  string        `json:"response"`
	Sources   []ResultItem  `json:"sources"`
	Metadata  QueryMetadata `json:"metadata"`
	Timestamp time.Time     `json:"timestamp"`
}

// StreamEvent is one `data:` line of a streamed /query.
type StreamEvent struct {
	Type        string         `json:"type"`
	Token       string         `json:"token,omitempty"`
	TokensSoFar int            `json:"tokens_so_far,omitempty"`
	ElapsedMs   float64        `json:"elapsed_ms,omitempty"`
	Done        bool           `json:"done"`
	Stats       *QueryMetadata `json:"stats,omitempty"`
	Sources     []ResultItem   `json:"sources,omitempty"`
	Model       string         `json:"model,omitempty"`
	Cached      *bool          `json:"cached,omitempty"`
	QueryID     string         `json:"query_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Code        ErrorCode      `json:"code,omitempty"`
	Stage       string         `json:"stage,omitempty"`
}

// ReloadRequest is the body of POST /reload.
type ReloadRequest struct {
	Workspace string `json:"workspace"`
}

// ReloadResponse reports a finished index rebuild.
type ReloadResponse struct {
	Workspace     string  `json:"workspace"`
	Status        string  `json:"status"`
	DocumentCount int     `json:"document_count"`
	TookMs        float64 `json:"took_ms"`
}

// InvalidateRequest is the body of POST /cache/invalidate. Without a question the
// whole workspace is dropped.
type InvalidateRequest struct {
	Workspace string `json:"workspace"`
	Question  string `json:"question"`
}

// InvalidateResponse reports how many cache entries were removed.
type InvalidateResponse struct {
	Workspace string `json:"workspace"`
	Question  string `json:"question,omitempty"`
	Deleted   int    `json:"deleted"`
}

// CollectionResponse is the body of GET /collection.
type CollectionResponse struct {
	Name          string         `json:"name"`
	DocumentCount int            `json:"document_count"`
	Lexical       *lexical.Stats `json:"lexical,omitempty"`
	CacheEntries  *int           `json:"cache_entries,omitempty"`
}

// WorkspaceItem is one entry of GET /workspaces.
type WorkspaceItem struct {
	Name         string `json:"name"`
	LexicalState string `json:"lexical_state"`
	Documents    int    `json:"documents,omitempty"`
}

// WorkspacesResponse is the body of GET /workspaces.
type WorkspacesResponse struct {
	Workspaces []WorkspaceItem `json:"workspaces"`
	Count      int             `json:"count"`
}

// CacheStats lists answer-cache entry counts per workspace.
type CacheStats struct {
	Enabled bool           `json:"enabled"`
	Entries map[string]int `json:"entries,omitempty"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Lexical []lexical.Stats `json:"lexical"`
	Cache   CacheStats      `json:"cache"`
	Queue   QueueStats      `json:"queue"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func rankedToItem(r *result.Ranked) ResultItem {
	doc := r.Document()
	score, rank := r.Score(), r.Rank()
	item := ResultItem{
		ID:       doc.ID(),
		Text:     doc.Text(),
		Metadata: doc.Metadata(),
		Score:    score,
		Method:   string(r.Method()),
	}
	switch r.Method() {
	case result.Lexical:
		item.LexicalScore, item.LexicalRank = &score, &rank
	case result.Semantic:
		item.SemanticScore, item.SemanticRank = &score, &rank
	}
	return item
}

func fusedToItem(f *result.Fused) ResultItem {
	doc := f.Document()
	rrf := f.RRFScore()
	item := ResultItem{
		ID:       doc.ID(),
		Text:     doc.Text(),
		Metadata: doc.Metadata(),
		Score:    rrf,
		Method:   string(mode.Hybrid),
		RRFScore: &rrf,
	}
	if c := f.Semantic(); c != nil {
		item.SemanticScore, item.SemanticRank = &c.Score, &c.Rank
	}
	if c := f.Lexical(); c != nil {
		item.LexicalScore, item.LexicalRank = &c.Score, &c.Rank
	}
	return item
}

func fusedItems(in []result.Fused) []ResultItem {
	items := make([]ResultItem, len(in))
	for i := range in {
		items[i] = fusedToItem(&in[i])
	}
	return items
}

func queryMetadata(resp *pipeline.Response) QueryMetadata {
	return QueryMetadata{
		Cached:           resp.CacheStatus.IsHit(),
		CacheStatus:      string(resp.CacheStatus),
		RetrievalMethod:  string(mode.Hybrid),
		RetrievalTimeMs:  millis(resp.Timing.Retrieval),
		RerankTimeMs:     millis(resp.Timing.Rerank),
		GenerationTimeMs: millis(resp.Timing.Generation),
		TotalTimeMs:      millis(resp.Timing.Total),
		Model:            resp.Model,
		ContextLength:    resp.ContextLength,
		SourceCount:      len(resp.Sources),
		QueryID:          resp.QueryID,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	}
}
