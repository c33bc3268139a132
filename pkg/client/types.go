package client

import "time"

// Retrieval methods accepted by Search.
const (
	MethodHybrid   = "hybrid"
	MethodSemantic = "semantic"
	MethodLexical  = "bm25"
)

// SearchRequest is a retrieval-only query. Zero fields take the server defaults.
type SearchRequest struct {
	Query     string    `json:"query"`
	Workspace string    `json:"workspace,omitempty"`
	K         int       `json:"k,omitempty"`
	Method    string    `json:"method,omitempty"`
	RRFK      int       `json:"rrf_k,omitempty"`
	Weights   []float64 `json:"weights,omitempty"` // [semantic, lexical]
	MinScore  float64   `json:"min_score,omitempty"`
}

// Result is one retrieved document. Per-method scores are set only for the methods that
// found it.
type Result struct {
	ID            string         `json:"id"`
	Text          string         `json:"text"`
	Metadata      map[string]any `json:"metadata"`
	Score         float64        `json:"score"`
	Method        string         `json:"method"`
	RRFScore      *float64       `json:"rrf_score,omitempty"`
	SemanticScore *float64       `json:"semantic_score,omitempty"`
	SemanticRank  *int           `json:"semantic_rank,omitempty"`
	LexicalScore  *float64       `json:"lexical_score,omitempty"`
	LexicalRank   *int           `json:"lexical_rank,omitempty"`
}

// SearchResponse lists results in rank order.
type SearchResponse struct {
	Query   string   `json:"query"`
	Method  string   `json:"method"`
	Count   int      `json:"count"`
	TookMs  float64  `json:"took_ms"`
	Results []Result `json:"results"`
}

// QueryRequest asks a question. Zero fields take the server defaults.
type QueryRequest struct {
	Question    string   `json:"question"`
	Workspace   string   `json:"workspace,omitempty"`
	K           int      `json:"k,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	MinScore    float64  `json:"min_score,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// QueryStats describes how an answer was produced.
type QueryStats struct {
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

// QueryResponse is a buffered answer.
type QueryResponse struct {
	Response  string     `json:"response"`
	Sources   []Result   `json:"sources"`
	Metadata  QueryStats `json:"metadata"`
	Timestamp time.Time  `json:"timestamp"`
}

// Stream event types.
const (
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// StreamEvent is one event of a streamed answer.
type StreamEvent struct {
	Type        string      `json:"type"`
	Token       string      `json:"token,omitempty"`
	TokensSoFar int         `json:"tokens_so_far,omitempty"`
	ElapsedMs   float64     `json:"elapsed_ms,omitempty"`
	Done        bool        `json:"done"`
	Stats       *QueryStats `json:"stats,omitempty"`
	Sources     []Result    `json:"sources,omitempty"`
	Model       string      `json:"model,omitempty"`
	Cached      *bool       `json:"cached,omitempty"`
	QueryID     string      `json:"query_id,omitempty"`
	Error       string      `json:"error,omitempty"`
	Code        string      `json:"code,omitempty"`
	Stage       string      `json:"stage,omitempty"`
}

// ReloadResponse reports a finished lexical index rebuild.
type ReloadResponse struct {
	Workspace     string  `json:"workspace"`
	Status        string  `json:"status"`
	DocumentCount int     `json:"document_count"`
	TookMs        float64 `json:"took_ms"`
}

// InvalidateResponse reports how many cached answers were dropped.
type InvalidateResponse struct {
	Workspace string `json:"workspace"`
	Question  string `json:"question,omitempty"`
	Deleted   int    `json:"deleted"`
}

// IndexStats describes one lexical index.
type IndexStats struct {
	Workspace string    `json:"workspace"`
	State     string    `json:"state"`
	Documents int       `json:"documents"`
	AvgLength float64   `json:"avg_length"`
	BuiltAt   time.Time `json:"built_at,omitzero"`
}

// Stats is a snapshot of server state.
type Stats struct {
	Lexical []IndexStats `json:"lexical"`
	Cache   struct {
		Enabled bool           `json:"enabled"`
		Entries map[string]int `json:"entries,omitempty"`
	} `json:"cache"`
	Queue struct {
		InFlight      int64 `json:"in_flight"`
		Waiting       int64 `json:"waiting"`
		MaxConcurrent int64 `json:"max_concurrent"`
		MaxQueueDepth int64 `json:"max_queue_depth"`
	} `json:"queue"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status  string            `json:"status"` // "ok", "degraded", "error"
	Checks  map[string]string `json:"checks"` // component → "ok"/"error"
	Version string            `json:"version"`
}
