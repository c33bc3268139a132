package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRetrievalUnavailable signals that the lexical or vector backend could not be searched.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable signals that the generation backend failed or returned garbage.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrCacheUnavailable signals a cache backend failure. Never escapes the cache layer.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrCollectionNotFound signals a missing workspace / corpus.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrInvalidRequest signals malformed request parameters.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// Pipeline stage names used in StageError.
const (
	StageCacheLookup     = "cache_lookup"
	StageRetrieving      = "retrieving"
	StageFusing          = "fusing"
	StageReranking       = "reranking"
	StageContextBuilding = "context_building"
	StageGenerating      = "generating"
	StageCacheWrite      = "cache_write"
)

// StageError attaches the pipeline stage to a fatal failure.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the stage name. Returns nil for a nil err.
func NewStageError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or "" if there is none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// CollectionNotFoundError carries the offending workspace name.
type CollectionNotFoundError struct {
	Workspace string
}

func (e *CollectionNotFoundError) Error() string {
	return fmt.Sprintf("%s: %q", ErrCollectionNotFound.Error(), e.Workspace)
}

func (e *CollectionNotFoundError) Unwrap() error { return ErrCollectionNotFound }

// NewCollectionNotFound creates a collection-not-found error for the workspace.
func NewCollectionNotFound(workspace string) error {
	return &CollectionNotFoundError{Workspace: workspace}
}

// InvalidRequestf formats a validation failure wrapping ErrInvalidRequest.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
