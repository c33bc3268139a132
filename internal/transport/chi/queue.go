package chi

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Admission defaults.
const (
	DefaultMaxConcurrent = 3
	DefaultMaxQueueDepth = 10
)

// QueueStats is a point-in-time view of the admission queue.
type QueueStats struct {
	InFlight      int64 `json:"in_flight"`
	Waiting       int64 `json:"waiting"`
	MaxConcurrent int64 `json:"max_concurrent"`
	MaxQueueDepth int64 `json:"max_queue_depth"`
}

// Queue admits at most maxConcurrent requests at a time and lets up to maxQueueDepth
// more wait for a slot. Anything beyond that is rejected immediately.
type Queue struct {
	sem           *semaphore.Weighted
	maxConcurrent int64
	maxQueueDepth int64
	inFlight      atomic.Int64
	waiting       atomic.Int64
}

// NewQueue creates an admission queue. Non-positive limits fall back to the defaults;
// a zero queue depth is allowed only through a negative value (reject when busy).
func NewQueue(maxConcurrent, maxQueueDepth int) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	switch {
	case maxQueueDepth == 0:
		maxQueueDepth = DefaultMaxQueueDepth
	case maxQueueDepth < 0:
		maxQueueDepth = 0
	}
	return &Queue{
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent: int64(maxConcurrent),
		maxQueueDepth: int64(maxQueueDepth),
	}
}

// Acquire takes an execution slot, waiting if the queue has room.
// The returned release func must be called exactly once.
func (q *Queue) Acquire(ctx context.Context) (func(), error) {
	if !q.sem.TryAcquire(1) {
		if q.waiting.Add(1) > q.maxQueueDepth {
			q.waiting.Add(-1)
			metrics.QueueRejectedTotal.Inc()
			return nil, errQueueFull
		}
		metrics.QueueWaiting.Inc()
		err := q.sem.Acquire(ctx, 1)
		q.waiting.Add(-1)
		metrics.QueueWaiting.Dec()
		if err != nil {
			return nil, fmt.Errorf("wait for slot: %w", err)
		}
	}

	q.inFlight.Add(1)
	metrics.QueueInFlight.Inc()

	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		q.inFlight.Add(-1)
		metrics.QueueInFlight.Dec()
		q.sem.Release(1)
	}, nil
}

// Stats reports current occupancy.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		InFlight:      q.inFlight.Load(),
		Waiting:       q.waiting.Load(),
		MaxConcurrent: q.maxConcurrent,
		MaxQueueDepth: q.maxQueueDepth,
	}
}

// queueMiddleware holds a slot for the whole request, streamed responses included.
func (s *Server) queueMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		release, err := s.queue.Acquire(r.Context())
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		defer release()
		next.ServeHTTP(w, r)
	})
}
