package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/domain/search/mode"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

const defaultMaxCandidates = 50

// HybridQuery describes one fused retrieval.
// Vector may be nil, in which case the query is embedded here.
type HybridQuery struct {
	Workspace      string
	Query          string
	Vector         []float32
	Candidates     int
	RRFK           int
	SemanticWeight float64
	LexicalWeight  float64
	MinScore       float64
}

// Outcome is the result of a /search call. Exactly one of Ranked or Fused is set,
// depending on the method.
type Outcome struct {
	Method mode.Mode
	Ranked []result.Ranked
	Fused  []result.Fused
	Took   time.Duration
}

// Count returns the number of results.
func (o *Outcome) Count() int {
	if o.Method == mode.Hybrid {
		return len(o.Fused)
	}
	return len(o.Ranked)
}

// Service runs lexical, semantic and hybrid retrieval.
type Service struct {
	lexical       LexicalSearcher
	semantic      *Semantic
	maxCandidates int
	logger        *zap.Logger
}

// New creates a search service. maxCandidates caps the per-method candidate count of
// hybrid retrieval.
func New(lexical LexicalSearcher, semantic *Semantic, maxCandidates int, logger *zap.Logger) *Service {
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{lexical: lexical, semantic: semantic, maxCandidates: maxCandidates, logger: logger}
}

// Candidates returns how many results to fetch per method when k results are wanted.
func (s *Service) Candidates(k int) int {
	return max(k, min(2*k, s.maxCandidates))
}

// Search executes a /search request.
func (s *Service) Search(ctx context.Context, req *request.Request) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Method: req.Method()}

	m := req.Method()
	switch {
	case m == mode.Hybrid:
		fused, err := s.Hybrid(ctx, HybridQuery{
			Workspace:      req.Workspace(),
			Query:          req.Query(),
			Candidates:     s.Candidates(req.K()),
			RRFK:           req.RRFK(),
			SemanticWeight: req.SemanticWeight(),
			LexicalWeight:  req.LexicalWeight(),
			MinScore:       req.MinScore(),
		})
		if err != nil {
			return nil, err
		}
		if len(fused) > req.K() {
			fused = fused[:req.K()]
		}
		out.Fused = fused

	case m.UsesLexical():
		ranked, err := s.lexical.Search(ctx, req.Workspace(), req.Query(), req.K())
		if err != nil {
			return nil, err
		}
		out.Ranked = filterRanked(ranked, req.MinScore())

	case m.UsesSemantic():
		ranked, err := s.semantic.Search(ctx, req.Workspace(), req.Query(), req.K())
		if err != nil {
			return nil, err
		}
		out.Ranked = filterRanked(ranked, req.MinScore())

	default:
		return nil, fmt.Errorf("unsupported search mode: %s", m)
	}

	out.Took = time.Since(start)
	return out, nil
}

// Hybrid runs lexical and semantic retrieval concurrently and fuses both lists.
func (s *Service) Hybrid(ctx context.Context, q HybridQuery) ([]result.Fused, error) {
	lists, err := s.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}
	return Fuse(lists, q.RRFK, q.MinScore), nil
}

// Retrieve fetches the lexical and semantic candidate lists concurrently, weighted for Fuse.
// Both must finish; the first failure cancels the other and is returned.
func (s *Service) Retrieve(ctx context.Context, q HybridQuery) ([]WeightedList, error) {
	var lexical, semantic []result.Ranked

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexical, err = s.lexical.Search(gctx, q.Workspace, q.Query, q.Candidates)
		return err
	})
	g.Go(func() error {
		var err error
		if q.Vector != nil {
			semantic, err = s.semantic.SearchVector(gctx, q.Workspace, q.Vector, q.Candidates)
		} else {
			semantic, err = s.semantic.Search(gctx, q.Workspace, q.Query, q.Candidates)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Debug("hybrid retrieval",
		zap.String("workspace", q.Workspace),
		zap.Int("lexical", len(lexical)),
		zap.Int("semantic", len(semantic)),
	)

	return []WeightedList{
		{Results: semantic, Weight: q.SemanticWeight},
		{Results: lexical, Weight: q.LexicalWeight},
	}, nil
}

func filterRanked(in []result.Ranked, minScore float64) []result.Ranked {
	if minScore <= 0 {
		return in
	}
	out := make([]result.Ranked, 0, len(in))
	for i := range in {
		if in[i].Score() >= minScore {
			out = append(out, in[i])
		}
	}
	return out
}
