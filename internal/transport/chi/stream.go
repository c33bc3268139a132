package chi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	pipelineuc "github.com/kailas-cloud/ragdex/internal/usecase/pipeline"
)

// streamQuery answers /query as text/event-stream, one `data: {json}` frame per event.
// Validation errors are still plain JSON responses; once the stream starts every failure
// becomes a terminal error event.
func (s *Server) streamQuery(w http.ResponseWriter, r *http.Request, params pipeline.Params) {
	events, err := s.answer.Stream(r.Context(), params)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := s.requestLogger(r)
	for ev := range events {
		if err := writeEvent(w, rc, streamEvent(ev)); err != nil {
			// Client is gone; the request context cancels the producer.
			logger.Debug("stream write failed", zap.Error(err))
			for range events {
			}
			return
		}
		if ev.Type == pipelineuc.EventError {
			logger.Warn("stream failed", zap.Error(ev.Err), zap.String("stage", domain.StageOf(ev.Err)))
		}
	}
}

func streamEvent(ev pipelineuc.Event) StreamEvent {
	switch ev.Type {
	case pipelineuc.EventToken:
		return StreamEvent{
			Type:        string(ev.Type),
			Token:       ev.Token,
			TokensSoFar: ev.TokensSoFar,
			ElapsedMs:   millis(ev.Elapsed),
		}
	case pipelineuc.EventDone:
		resp := ev.Response
		stats := queryMetadata(resp)
		cached := resp.CacheStatus.IsHit()
		return StreamEvent{
			Type:    string(ev.Type),
			Done:    true,
			Stats:   &stats,
			Sources: fusedItems(resp.Sources),
			Model:   resp.Model,
			Cached:  &cached,
			QueryID: resp.QueryID,
		}
	default:
		return StreamEvent{
			Type:  string(pipelineuc.EventError),
			Done:  true,
			Error: safeDomainMessage(ev.Err),
			Code:  errorCode(ev.Err),
			Stage: domain.StageOf(ev.Err),
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := rc.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}
