// Package embedding holds the logging decorator for the query embedding chain.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
)

const defaultSlowAfter = 2 * time.Second

// Options names the backend in log lines and sets the slow-call threshold.
type Options struct {
	Provider  string
	Model     string
	SlowAfter time.Duration // default 2s
}

// InstrumentedEmbedder logs every embedding call on the request logger when one is in the
// context. Provider metrics are recorded by the transport adapters.
type InstrumentedEmbedder struct {
	inner  domain.Embedder
	opts   Options
	logger *zap.Logger
}

// NewInstrumentedEmbedder wraps inner.
func NewInstrumentedEmbedder(inner domain.Embedder, opts Options, logger *zap.Logger) *InstrumentedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SlowAfter <= 0 {
		opts.SlowAfter = defaultSlowAfter
	}
	return &InstrumentedEmbedder{inner: inner, opts: opts, logger: logger}
}

// Embed delegates to the inner embedder. Cancellation is logged at debug level, other
// failures at error level, and calls slower than SlowAfter at warn level.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	res, err := p.inner.Embed(ctx, text)
	took := time.Since(start)

	log := logpkg.FromContextOr(ctx, p.logger).With(
		zap.String("provider", p.opts.Provider),
		zap.String("model", p.opts.Model),
		zap.Duration("took", took),
	)

	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		log.Debug("Query embedding abandoned", zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	case err != nil:
		log.Error("Query embedding failed", zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	case took > p.opts.SlowAfter:
		log.Warn("Slow query embedding", zap.Int("dims", res.Dims()), zap.Int("total_tokens", res.TotalTokens))
	default:
		log.Debug("Query embedded", zap.Int("dims", res.Dims()), zap.Int("total_tokens", res.TotalTokens))
	}
	return res, nil
}

// HealthCheck proxies to the inner embedder when it supports it.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // proxied as-is
	}
	return nil
}
