package lexical

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Options configures every handle a Registry creates.
type Options struct {
	Params       Params
	BuildTimeout time.Duration
}

// Stats describes one workspace index.
type Stats struct {
	Workspace string    `json:"workspace"`
	State     string    `json:"state"`
	Documents int       `json:"documents"`
	AvgLength float64   `json:"avg_length"`
	BuiltAt   time.Time `json:"built_at,omitzero"`
}

// Registry lazily creates one Handle per workspace.
type Registry struct {
	loader Loader
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry(loader Loader, opts Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		loader:  loader,
		opts:    opts,
		logger:  logger.Named("lexical"),
		handles: make(map[string]*Handle),
	}
}

// Handle returns the handle for workspace, creating it unbuilt if needed.
func (r *Registry) Handle(workspace string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[workspace]
	if !ok {
		h = newHandle(workspace, r.loader, r.opts, r.logger)
		r.handles[workspace] = h
	}
	return h
}

// Search queries the workspace index, building it on first use.
func (r *Registry) Search(ctx context.Context, workspace, query string, k int) ([]result.Ranked, error) {
	h := r.Handle(workspace)
	res, err := h.Search(ctx, query, k)
	if err != nil {
		r.forgetMissing(h, err)
	}
	return res, err
}

// Reload rebuilds the workspace index.
func (r *Registry) Reload(ctx context.Context, workspace string) (*Index, error) {
	h := r.Handle(workspace)
	idx, err := h.Reload(ctx)
	if err != nil {
		r.forgetMissing(h, err)
	}
	return idx, err
}

// forgetMissing drops a handle whose workspace does not exist and that never built,
// so unknown names do not accumulate. A handle with a snapshot keeps serving it.
func (r *Registry) forgetMissing(h *Handle, err error) {
	if !errors.Is(err, domain.ErrCollectionNotFound) || h.Snapshot() != nil {
		return
	}

	r.mu.Lock()
	if cur, ok := r.handles[h.workspace]; ok && cur == h && h.Snapshot() == nil {
		delete(r.handles, h.workspace)
	}
	r.mu.Unlock()

	metrics.LexicalRebuildsTotal.DeleteLabelValues(h.workspace, "error")
}

// Len returns the number of tracked workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Stats lists every known workspace, sorted by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(handles))
	for _, h := range handles {
		idx := h.Snapshot()
		out = append(out, Stats{
			Workspace: h.workspace,
			State:     h.State().String(),
			Documents: idx.Len(),
			AvgLength: idx.AvgLen(),
			BuiltAt:   h.BuiltAt(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Workspace < out[j].Workspace })
	return out
}
