package lexical

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// State is the build lifecycle of a workspace index.
type State int32

// Index states.
const (
	Unbuilt State = iota
	Building
	Ready
)

func (s State) String() string {
	switch s {
	case Unbuilt:
		return "unbuilt"
	case Building:
		return "building"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Loader reads the full corpus of a workspace.
type Loader interface {
	Load(ctx context.Context, workspace string) ([]document.Document, error)
}

const defaultBuildTimeout = 60 * time.Second

// Handle owns the active index of one workspace and swaps it atomically on rebuild.
type Handle struct {
	workspace    string
	loader       Loader
	params       Params
	buildTimeout time.Duration
	logger       *zap.Logger

	snap    atomic.Pointer[Index]
	state   atomic.Int32
	builtAt atomic.Int64
	group   singleflight.Group
}

func newHandle(workspace string, loader Loader, opts Options, logger *zap.Logger) *Handle {
	timeout := opts.BuildTimeout
	if timeout <= 0 {
		timeout = defaultBuildTimeout
	}
	return &Handle{
		workspace:    workspace,
		loader:       loader,
		params:       opts.Params,
		buildTimeout: timeout,
		logger:       logger.With(zap.String("workspace", workspace)),
	}
}

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Snapshot returns the active index, or nil before the first successful build.
func (h *Handle) Snapshot() *Index { return h.snap.Load() }

// BuiltAt returns the time of the last successful build.
func (h *Handle) BuiltAt() time.Time {
	ns := h.builtAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// EnsureReady returns the active index, building it on first use.
func (h *Handle) EnsureReady(ctx context.Context) (*Index, error) {
	if idx := h.snap.Load(); idx != nil {
		return idx, nil
	}
	return h.build(ctx)
}

// Reload rebuilds the index from the loader. Concurrent calls share one build.
func (h *Handle) Reload(ctx context.Context) (*Index, error) {
	return h.build(ctx)
}

// Search runs a BM25 query against the active index.
func (h *Handle) Search(ctx context.Context, query string, k int) ([]result.Ranked, error) {
	idx, err := h.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Search(query, k), nil
}

func (h *Handle) build(ctx context.Context) (*Index, error) {
	ch := h.group.DoChan("build", func() (any, error) {
		// detached: a caller that goes away must not abort a build others wait on
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.buildTimeout)
		defer cancel()
		return h.rebuild(bctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Index), nil
	}
}

func (h *Handle) rebuild(ctx context.Context) (*Index, error) {
	h.state.Store(int32(Building))
	start := time.Now()

	docs, err := h.loader.Load(ctx, h.workspace)
	if err != nil {
		if h.snap.Load() != nil {
			h.state.Store(int32(Ready))
		} else {
			h.state.Store(int32(Unbuilt))
		}
		metrics.LexicalRebuildsTotal.WithLabelValues(h.workspace, "error").Inc()
		h.logger.Warn("lexical index build failed", zap.Error(err))

		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load corpus %q: %w", domain.ErrRetrievalUnavailable, h.workspace, err)
	}

	idx := Build(docs, h.params)
	h.snap.Store(idx)
	h.builtAt.Store(time.Now().UnixNano())
	h.state.Store(int32(Ready))

	took := time.Since(start)
	metrics.LexicalRebuildsTotal.WithLabelValues(h.workspace, "ok").Inc()
	metrics.LexicalRebuildDuration.WithLabelValues(h.workspace).Observe(took.Seconds())
	metrics.LexicalDocuments.WithLabelValues(h.workspace).Set(float64(idx.Len()))
	h.logger.Info("lexical index built",
		zap.Int("documents", idx.Len()),
		zap.Float64("avg_length", idx.AvgLen()),
		zap.Duration("took", took),
	)
	return idx, nil
}
