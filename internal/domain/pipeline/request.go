package pipeline

import (
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Query parameter limits and defaults.
const (
	MaxQuestionLength  = 10000
	DefaultK           = 5
	MaxK               = 20
	DefaultTemperature = 0.7
	MaxTemperature     = 2.0
	DefaultMaxTokens   = 1024
	MaxMaxTokens       = 8192
)

// Params is the raw, unvalidated input of a query.
// Temperature is a pointer because 0 is a meaningful value.
type Params struct {
	Question    string
	Workspace   string
	K           int
	Stream      bool
	Temperature *float64
	MaxTokens   int
	MinScore    float64
	Model       string
}

// Request is a validated query. Immutable for the lifetime of one pipeline run.
type Request struct {
	question    string
	workspace   string
	k           int
	stream      bool
	temperature float64
	maxTokens   int
	minScore    float64
	model       string
}

// NewRequest validates p and fills defaults. Errors wrap domain.ErrInvalidRequest.
// An empty workspace falls back to defaultWorkspace.
func NewRequest(p Params, defaultWorkspace string) (Request, error) {
	question := strings.TrimSpace(p.Question)
	if question == "" {
		return Request{}, domain.InvalidRequestf("question is required")
	}
	if len(question) > MaxQuestionLength {
		return Request{}, domain.InvalidRequestf("question too long (max %d chars)", MaxQuestionLength)
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

	temperature := DefaultTemperature
	if p.Temperature != nil {
		temperature = *p.Temperature
		if temperature < 0 || temperature > MaxTemperature {
			return Request{}, domain.InvalidRequestf("temperature must be between 0 and %g", MaxTemperature)
		}
	}

	maxTokens := p.MaxTokens
	switch {
	case maxTokens < 0 || maxTokens > MaxMaxTokens:
		return Request{}, domain.InvalidRequestf("max_tokens must be between 1 and %d", MaxMaxTokens)
	case maxTokens == 0:
		maxTokens = DefaultMaxTokens
	}

	if p.MinScore < 0 {
		return Request{}, domain.InvalidRequestf("min_score must be >= 0")
	}

	workspace := strings.TrimSpace(p.Workspace)
	if workspace == "" {
		workspace = defaultWorkspace
	}
	if err := domain.ValidateWorkspace(workspace); err != nil {
		return Request{}, err
	}

	return Request{
		question:    question,
		workspace:   workspace,
		k:           k,
		stream:      p.Stream,
		temperature: temperature,
		maxTokens:   maxTokens,
		minScore:    p.MinScore,
		model:       strings.TrimSpace(p.Model),
	}, nil
}

// Question returns the trimmed question text.
func (r *Request) Question() string { return r.question }

// Workspace returns the corpus the question is asked against.
func (r *Request) Workspace() string { return r.workspace }

// K returns how many sources feed the context.
func (r *Request) K() int { return r.k }

// Stream reports whether the caller wants incremental tokens.
func (r *Request) Stream() bool { return r.stream }

// Temperature returns the sampling temperature.
func (r *Request) Temperature() float64 { return r.temperature }

// MaxTokens returns the completion token limit.
func (r *Request) MaxTokens() int { return r.maxTokens }

// MinScore returns the RRF score floor.
func (r *Request) MinScore() float64 { return r.minScore }

// ModelOverride returns the requested model, or "" for the configured default.
func (r *Request) ModelOverride() string { return r.model }
