package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Sentinel errors matched by *APIError. Use errors.Is() to check.
var (
	ErrInvalidRequest         = domain.ErrInvalidRequest
	ErrCollectionNotFound     = domain.ErrCollectionNotFound
	ErrRetrievalUnavailable   = domain.ErrRetrievalUnavailable
	ErrGenerationUnavailable  = domain.ErrGenerationUnavailable
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrCacheUnavailable       = domain.ErrCacheUnavailable
	ErrUnauthorized           = errors.New("unauthorized")
	ErrQueueFull              = errors.New("queue full")
)

var codeSentinels = map[string]error{
	"invalid_request":          ErrInvalidRequest,
	"unauthorized":             ErrUnauthorized,
	"collection_not_found":     ErrCollectionNotFound,
	"retrieval_unavailable":    ErrRetrievalUnavailable,
	"generation_unavailable":   ErrGenerationUnavailable,
	"embedding_provider_error": ErrEmbeddingProviderError,
	"cache_unavailable":        ErrCacheUnavailable,
	"queue_full":               ErrQueueFull,
}

// APIError is a failure reported by the server, either as a non-2xx response or as a
// terminal stream error event (StatusCode 200).
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Stage      string
	Workspace  string
	RetryAfter time.Duration // set on 429
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("ragdex: %s (%d)", e.Message, e.StatusCode)
	if e.Code != "" {
		msg = fmt.Sprintf("ragdex: %s: %s (%d)", e.Code, e.Message, e.StatusCode)
	}
	if e.Stage != "" {
		msg += " at " + e.Stage
	}
	return msg
}

// Unwrap returns the sentinel matching the error code, if any.
func (e *APIError) Unwrap() error {
	return codeSentinels[e.Code]
}
