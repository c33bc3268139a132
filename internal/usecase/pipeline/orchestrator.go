// Package pipeline runs a question through cache lookup, hybrid retrieval, fusion,
// reranking, context assembly, generation and cache write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/pipeline"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/usecase/cache"
	"github.com/kailas-cloud/ragdex/internal/usecase/search"
)

// NoContextAnswer is returned when retrieval finds nothing to ground an answer on.
const NoContextAnswer = "I couldn't find any relevant information in the knowledge base to answer your question. " +
	"Please try rephrasing or ask a different question."

const (
	defaultStreamBuffer = 16
	defaultWriteWorkers = 4
	cacheWriteTimeout   = 5 * time.Second
)

// Options holds the orchestrator defaults.
type Options struct {
	DefaultWorkspace string
	Model            string
	RRFK             int
	SemanticWeight   float64
	LexicalWeight    float64
	StreamBuffer     int
	WriteWorkers     int
}

// Deps are the collaborators of the orchestrator. Cache may be nil.
type Deps struct {
	Retriever Retriever
	Embedder  QueryEmbedder
	Cache     AnswerCache
	Generator domain.Generator
	Reranker  Reranker
	Context   *ContextBuilder
	Observer  Observer
}

// Orchestrator executes pipeline runs. Safe for concurrent use; all per-request state
// lives in a run value.
type Orchestrator struct {
	deps   Deps
	opts   Options
	pool   *ants.Pool
	logger *zap.Logger
}

// New creates an orchestrator and its background cache-write pool.
func New(deps Deps, opts Options, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Retriever == nil || deps.Embedder == nil || deps.Generator == nil {
		return nil, errors.New("pipeline: retriever, embedder and generator are required")
	}
	if deps.Reranker == nil {
		deps.Reranker = ScoreReranker{}
	}
	if deps.Context == nil {
		deps.Context = NewContextBuilder(nil, 0, 0, "")
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = defaultStreamBuffer
	}
	if opts.WriteWorkers <= 0 {
		opts.WriteWorkers = defaultWriteWorkers
	}
	if opts.RRFK <= 0 {
		opts.RRFK = search.DefaultRRFK
	}
	if opts.SemanticWeight == 0 && opts.LexicalWeight == 0 {
		opts.SemanticWeight, opts.LexicalWeight = 0.5, 0.5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// nonblocking: a saturated pool drops the write instead of stalling the stream
	pool, err := ants.NewPool(opts.WriteWorkers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create cache write pool: %w", err)
	}

	return &Orchestrator{deps: deps, opts: opts, pool: pool, logger: logger.Named("pipeline")}, nil
}

// Close waits for pending background cache writes and releases the pool.
func (o *Orchestrator) Close(timeout time.Duration) error {
	return o.pool.ReleaseTimeout(timeout)
}

// NewRequest validates params against the orchestrator's default workspace.
func (o *Orchestrator) NewRequest(p pipeline.Params) (pipeline.Request, error) {
	return pipeline.NewRequest(p, o.opts.DefaultWorkspace)
}

// Execute runs the pipeline to completion and returns the buffered answer.
func (o *Orchestrator) Execute(ctx context.Context, p pipeline.Params) (*pipeline.Response, error) {
	req, err := o.NewRequest(p)
	if err != nil {
		return nil, err
	}

	r := o.newRun(ctx, &req, "buffered")
	ctx = r.ctx

	if resp := r.lookup(ctx); resp != nil {
		return r.complete(resp, "cache_hit"), nil
	}

	prep, err := r.prepare(ctx)
	if err != nil {
		return nil, r.fail(err)
	}
	if prep == nil {
		return r.complete(r.noContext(), "no_context"), nil
	}

	r.transition(pipeline.Generating)
	genStart := time.Now()
	gen, err := o.deps.Generator.Generate(ctx, r.generateRequest(prep))
	if err != nil {
		return nil, r.fail(domain.NewStageError(domain.StageGenerating, generationError(err)))
	}
	resp := r.generated(prep, gen, time.Since(genStart))

	r.transition(pipeline.CacheWrite)
	r.storeAnswer(ctx, resp)

	return r.complete(resp, "generated"), nil
}

// run is the per-request state of one pipeline execution.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	req     *pipeline.Request
	id      string
	mode    string
	model   string
	usage   *domain.TokenUsage
	logger  *zap.Logger
	start   time.Time
	entered time.Time
	state   pipeline.State

	embedding   []float32
	cacheStatus pipeline.CacheStatus
	timing      pipeline.Timing
}

func (o *Orchestrator) newRun(ctx context.Context, req *pipeline.Request, mode string) *run {
	ctx, usage := domain.NewContextWithUsage(ctx)
	model := req.ModelOverride()
	if model == "" {
		model = o.opts.Model
	}
	id := uuid.NewString()
	now := time.Now()
	return &run{
		o:       o,
		ctx:     ctx,
		req:     req,
		id:      id,
		mode:    mode,
		model:   model,
		usage:   usage,
		logger:  o.logger.With(zap.String("query_id", id), zap.String("workspace", req.Workspace())),
		start:   now,
		entered: now,
		state:   pipeline.Idle,
	}
}

func (r *run) transition(to pipeline.State) {
	from := r.state
	if !pipeline.CanTransition(from, to) {
		r.logger.Error("illegal pipeline transition", zap.Stringer("from", from), zap.Stringer("to", to))
		return
	}
	now := time.Now()
	metrics.PipelineStageDuration.WithLabelValues(from.String()).Observe(now.Sub(r.entered).Seconds())
	r.entered = now
	r.state = to

	r.logger.Debug("pipeline transition", zap.Stringer("from", from), zap.Stringer("to", to))
	if r.o.deps.Observer != nil {
		r.o.deps.Observer.OnTransition(r.id, from, to)
	}
}

// lookup runs CacheLookup and returns a response on a hit.
func (r *run) lookup(ctx context.Context) *pipeline.Response {
	r.transition(pipeline.CacheLookup)
	start := time.Now()
	defer func() { r.timing.CacheLookup = time.Since(start) }()

	c := r.o.deps.Cache
	if c == nil {
		r.cacheStatus = pipeline.CacheBypass
		r.transition(pipeline.CacheMissed)
		return nil
	}

	vec, err := r.o.deps.Embedder.Embed(ctx, r.req.Question())
	if err != nil {
		r.logger.Warn("question embedding failed, exact cache tier only", zap.Error(err))
	} else {
		r.embedding = vec
	}

	entry, status := c.Lookup(ctx, r.req.Workspace(), r.req.Question(), r.embedding)
	r.cacheStatus = pipeline.CacheStatus(status)
	if entry == nil {
		r.transition(pipeline.CacheMissed)
		return nil
	}

	r.transition(pipeline.CacheHit)
	model := entry.Model
	if model == "" {
		model = r.model
	}
	return &pipeline.Response{
		QueryID:     r.id,
		Answer:      entry.Answer,
		Sources:     cache.Fused(entry.Sources),
		CacheStatus: r.cacheStatus,
		Model:       model,
	}
}

// prepared is the output of retrieval through context building.
type prepared struct {
	built BuiltContext
}

// prepare runs Retrieving through ContextBuilding. A nil result with a nil error means
// there is nothing to answer from and the run has completed.
func (r *run) prepare(ctx context.Context) (*prepared, error) {
	r.transition(pipeline.Retrieving)
	retrStart := time.Now()

	lists, err := r.o.deps.Retriever.Retrieve(ctx, search.HybridQuery{
		Workspace:      r.req.Workspace(),
		Query:          r.req.Question(),
		Vector:         r.embedding,
		Candidates:     r.o.deps.Retriever.Candidates(r.req.K()),
		SemanticWeight: r.o.opts.SemanticWeight,
		LexicalWeight:  r.o.opts.LexicalWeight,
	})
	if err != nil {
		return nil, domain.NewStageError(domain.StageRetrieving, retrievalError(err))
	}
	if emptyLists(lists) {
		r.timing.Retrieval = time.Since(retrStart)
		return nil, nil
	}

	r.transition(pipeline.Fusing)
	fused := search.Fuse(lists, r.o.opts.RRFK, r.req.MinScore())
	r.timing.Retrieval = time.Since(retrStart)
	if len(fused) == 0 {
		return nil, nil
	}

	r.transition(pipeline.Reranking)
	rerankStart := time.Now()
	ranked, err := r.o.deps.Reranker.Rerank(ctx, fused, r.req)
	r.timing.Rerank = time.Since(rerankStart)
	if err != nil {
		return nil, domain.NewStageError(domain.StageReranking, err)
	}

	r.transition(pipeline.ContextBuilding)
	built := r.o.deps.Context.Build(r.model, r.req.Question(), r.req.MaxTokens(), ranked)
	if len(built.Sources) == 0 {
		r.logger.Warn("no document fits the context window", zap.String("model", r.model))
		return nil, nil
	}
	return &prepared{built: built}, nil
}

func (r *run) generateRequest(p *prepared) domain.GenerateRequest {
	return domain.GenerateRequest{
		Model:       r.model,
		System:      r.o.deps.Context.SystemPrompt(),
		Prompt:      p.built.Prompt,
		Temperature: r.req.Temperature(),
		MaxTokens:   r.req.MaxTokens(),
	}
}

func (r *run) generated(p *prepared, gen domain.Generation, took time.Duration) *pipeline.Response {
	r.timing.Generation = took
	r.usage.AddGeneration(gen.PromptTokens, gen.CompletionTokens)
	model := gen.Model
	if model == "" {
		model = r.model
	}
	return &pipeline.Response{
		QueryID:       r.id,
		Answer:        gen.Text,
		Sources:       p.built.Sources,
		CacheStatus:   r.cacheStatus,
		Model:         model,
		ContextLength: len(p.built.Text),
	}
}

func (r *run) noContext() *pipeline.Response {
	return &pipeline.Response{
		QueryID:     r.id,
		Answer:      NoContextAnswer,
		Sources:     []result.Fused{},
		CacheStatus: r.cacheStatus,
		Model:       r.model,
		NoContext:   true,
	}
}

func (r *run) storeAnswer(ctx context.Context, resp *pipeline.Response) {
	c := r.o.deps.Cache
	if c == nil {
		return
	}
	err := c.Store(ctx, r.req.Workspace(), r.req.Question(), r.embedding, cache.Payload{
		Answer:  resp.Answer,
		Sources: cache.SourcesFromFused(resp.Sources),
		Model:   resp.Model,
	})
	if err != nil {
		r.logger.Debug("answer not cached", zap.Error(err))
	}
}

// storeAnswerAsync hands the cache write to the pool. A full pool drops the write.
func (r *run) storeAnswerAsync(resp *pipeline.Response) {
	if r.o.deps.Cache == nil {
		return
	}
	err := r.o.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), cacheWriteTimeout)
		defer cancel()
		r.storeAnswer(ctx, resp)
	})
	if err != nil {
		metrics.AnswerCacheWritesTotal.WithLabelValues("dropped").Inc()
		r.logger.Warn("cache write dropped", zap.Error(err))
	}
}

func (r *run) complete(resp *pipeline.Response, outcome string) *pipeline.Response {
	r.transition(pipeline.Complete)
	r.timing.Total = time.Since(r.start)
	resp.Timing = r.timing
	resp.EmbeddingTokens = r.usage.EmbeddingTokens()
	resp.PromptTokens = r.usage.PromptTokens()
	resp.CompletionTokens = r.usage.CompletionTokens()
	resp.CreatedAt = time.Now().UTC()
	metrics.PipelineRunsTotal.WithLabelValues(r.mode, outcome).Inc()

	r.logger.Info("query complete",
		zap.String("cache_status", string(resp.CacheStatus)),
		zap.Int("sources", len(resp.Sources)),
		zap.Duration("took", r.timing.Total),
	)
	return resp
}

func (r *run) fail(err error) error {
	r.transition(pipeline.Error)
	metrics.PipelineRunsTotal.WithLabelValues(r.mode, "error").Inc()
	if errors.Is(err, context.Canceled) {
		r.logger.Info("query canceled", zap.String("stage", domain.StageOf(err)))
	} else {
		r.logger.Error("query failed", zap.String("stage", domain.StageOf(err)), zap.Error(err))
	}
	return err
}

func emptyLists(lists []search.WeightedList) bool {
	for _, l := range lists {
		if len(l.Results) > 0 {
			return false
		}
	}
	return true
}

// retrievalError keeps not-found and cancellation as they are and classifies the rest
// as retrieval failures.
func retrievalError(err error) error {
	if errors.Is(err, domain.ErrRetrievalUnavailable) || errors.Is(err, domain.ErrCollectionNotFound) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrRetrievalUnavailable, err)
}

func generationError(err error) error {
	if errors.Is(err, domain.ErrGenerationUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
}
