package request

import (
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/mode"
)

// Search request limits.
const (
	MaxQueryLength = 10000
	DefaultK       = 10
	MaxK           = 100
	DefaultRRFK    = 60
)

// Defaults are the configured fallbacks for omitted fields.
type Defaults struct {
	Workspace      string
	RRFK           int
	SemanticWeight float64
	LexicalWeight  float64
}

// Params is the raw /search input. Weights are [semantic, lexical].
type Params struct {
	Query     string
	Workspace string
	K         int
	Method    mode.Mode
	RRFK      int
	Weights   []float64
	MinScore  float64
}

// Request is a validated hybrid search request.
type Request struct {
	query          string
	workspace      string
	k              int
	method         mode.Mode
	rrfK           int
	semanticWeight float64
	lexicalWeight  float64
	minScore       float64
}

// New validates p against the limits and fills omitted fields from d.
func New(p Params, d Defaults) (Request, error) {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return Request{}, domain.InvalidRequestf("query is required")
	}
	if len(query) > MaxQueryLength {
		return Request{}, domain.InvalidRequestf("query too long (max %d chars)", MaxQueryLength)
	}

	k := p.K
	switch {
	case k < 0:
		return Request{}, domain.InvalidRequestf("k must be >= 0, got %d", k)
	case k == 0:
		k = DefaultK
	case k > MaxK:
		return Request{}, domain.InvalidRequestf("k must be <= %d, got %d", MaxK, k)
	}

	method := p.Method
	if method == "" {
		method = mode.Hybrid
	}
	if !method.IsValid() {
		return Request{}, domain.InvalidRequestf("unknown method %q", method)
	}

	rrfK := p.RRFK
	switch {
	case rrfK < 0:
		return Request{}, domain.InvalidRequestf("rrf_k must be >= 0, got %d", rrfK)
	case rrfK == 0:
		rrfK = d.RRFK
		if rrfK <= 0 {
			rrfK = DefaultRRFK
		}
	}

	semW, lexW := d.SemanticWeight, d.LexicalWeight
	if semW == 0 && lexW == 0 {
		semW, lexW = 0.5, 0.5
	}
	if p.Weights != nil {
		if len(p.Weights) != 2 {
			return Request{}, domain.InvalidRequestf("weights must have exactly 2 values [semantic, lexical]")
		}
		semW, lexW = p.Weights[0], p.Weights[1]
	}
	if semW < 0 || lexW < 0 {
		return Request{}, domain.InvalidRequestf("weights must be >= 0")
	}

	if p.MinScore < 0 {
		return Request{}, domain.InvalidRequestf("min_score must be >= 0")
	}

	workspace := strings.TrimSpace(p.Workspace)
	if workspace == "" {
		workspace = d.Workspace
	}
	if err := domain.ValidateWorkspace(workspace); err != nil {
		return Request{}, err
	}

	return Request{
		query:          query,
		workspace:      workspace,
		k:              k,
		method:         method,
		rrfK:           rrfK,
		semanticWeight: semW,
		lexicalWeight:  lexW,
		minScore:       p.MinScore,
	}, nil
}

// Query returns the trimmed query text.
func (r *Request) Query() string { return r.query }

// Workspace returns the target corpus.
func (r *Request) Workspace() string { return r.workspace }

// K returns the number of results to return.
func (r *Request) K() int { return r.k }

// Method returns the retrieval method.
func (r *Request) Method() mode.Mode { return r.method }

// RRFK returns the fusion constant.
func (r *Request) RRFK() int { return r.rrfK }

// SemanticWeight returns the semantic list weight.
func (r *Request) SemanticWeight() float64 { return r.semanticWeight }

// LexicalWeight returns the lexical list weight.
func (r *Request) LexicalWeight() float64 { return r.lexicalWeight }

// MinScore returns the score floor applied to the final list.
func (r *Request) MinScore() float64 { return r.minScore }
