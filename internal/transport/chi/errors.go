package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// errQueueFull is returned by the admission queue when no slot and no waiting place is left.
var errQueueFull = errors.New("too many queued requests")

const retryAfterSeconds = "5"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		invalidRequestHandler,
		collectionNotFoundHandler,
		queueFullHandler,
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, CodeRetrievalUnavailable),
		sentinelHandler(domain.ErrGenerationUnavailable, http.StatusBadGateway, CodeGenerationUnavailable),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrCacheUnavailable, http.StatusServiceUnavailable, CodeCacheUnavailable),
	}
}

// errorCode classifies err for stream error events, where no status line can be sent.
func errorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, domain.ErrCollectionNotFound):
		return CodeCollectionNotFound
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		return CodeRetrievalUnavailable
	case errors.Is(err, domain.ErrGenerationUnavailable):
		return CodeGenerationUnavailable
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return CodeEmbeddingProvider
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeInternal
	}
}

// safeDomainMessage returns a client-facing message without exposing internals.
// Validation and not-found messages are composed by the domain and safe to echo.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) {
		return err.Error()
	}
	var nf *domain.CollectionNotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	sentinels := []error{
		domain.ErrCollectionNotFound,
		domain.ErrRetrievalUnavailable,
		domain.ErrGenerationUnavailable,
		domain.ErrEmbeddingProviderError,
		domain.ErrCacheUnavailable,
		errQueueFull,
		context.DeadlineExceeded,
		context.Canceled,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeJSON(w, status, ErrorResponse{
			Code:    code,
			Message: safeDomainMessage(err),
			Stage:   domain.StageOf(err),
		})
		return true
	}
}

func invalidRequestHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrInvalidRequest) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	return true
}

// collectionNotFoundHandler adds the offending workspace to the body.
func collectionNotFoundHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrCollectionNotFound) {
		return false
	}
	resp := ErrorResponse{
		Code:    CodeCollectionNotFound,
		Message: safeDomainMessage(err),
		Stage:   domain.StageOf(err),
	}
	var nf *domain.CollectionNotFoundError
	if errors.As(err, &nf) {
		resp.Workspace = nf.Workspace
	}
	writeJSON(w, http.StatusNotFound, resp)
	return true
}

func queueFullHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, errQueueFull) {
		return false
	}
	w.Header().Set("Retry-After", retryAfterSeconds)
	writeError(w, http.StatusTooManyRequests, CodeQueueFull, errQueueFull.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.requestLogger(r)
	for _, h := range s.errorHandlers {
		if h(w, err) {
			logger.Warn("domain error", zap.Error(err), zap.String("stage", domain.StageOf(err)))
			return
		}
	}
	if r.Context().Err() != nil {
		logger.Info("request canceled", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, CodeCanceled, "request canceled")
		return
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
