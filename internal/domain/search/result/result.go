package result

import "github.com/kailas-cloud/ragdex/internal/domain/document"

// Method identifies which retriever produced a ranking.
type Method string

// Retrieval methods.
const (
	Lexical  Method = "lexical"
	Semantic Method = "semantic"
)

// Ranked is a single hit from one retrieval method. Rank is 1-based.
type Ranked struct {
	doc    document.Document
	score  float64
	rank   int
	method Method
}

// NewRanked creates a ranked result.
func NewRanked(doc document.Document, score float64, rank int, method Method) Ranked {
	return Ranked{doc: doc, score: score, rank: rank, method: method}
}

// ID returns the document identifier.
func (r *Ranked) ID() string { return r.doc.ID() }

// Score returns the method-specific relevance score.
func (r *Ranked) Score() float64 { return r.score }

// Rank returns the 1-based position within the method's list.
func (r *Ranked) Rank() int { return r.rank }

// Method returns the retrieval method.
func (r *Ranked) Method() Method { return r.method }

// Document returns the underlying document.
func (r *Ranked) Document() document.Document { return r.doc }

// WithRank returns a copy with the rank replaced.
func (r *Ranked) WithRank(rank int) Ranked {
	return Ranked{doc: r.doc, score: r.score, rank: rank, method: r.method}
}

// Contribution is one method's score and rank inside a fused result.
type Contribution struct {
	Score float64
	Rank  int
}

// Fused is a document after rank fusion. Immutable once created.
type Fused struct {
	doc      document.Document
	rrfScore float64
	lexical  *Contribution
	semantic *Contribution
}

// NewFused creates a fused result. Nil contributions mean the method did not return the document.
func NewFused(doc document.Document, rrfScore float64, lexical, semantic *Contribution) Fused {
	return Fused{doc: doc, rrfScore: rrfScore, lexical: copyContribution(lexical), semantic: copyContribution(semantic)}
}

// ID returns the document identifier.
func (f *Fused) ID() string { return f.doc.ID() }

// RRFScore returns the fused reciprocal-rank score.
func (f *Fused) RRFScore() float64 { return f.rrfScore }

// Document returns the underlying document.
func (f *Fused) Document() document.Document { return f.doc }

// Lexical returns the lexical contribution, or nil.
func (f *Fused) Lexical() *Contribution { return copyContribution(f.lexical) }

// Semantic returns the semantic contribution, or nil.
func (f *Fused) Semantic() *Contribution { return copyContribution(f.semantic) }

// BestRank returns the lowest rank over all contributing methods (0 if none).
func (f *Fused) BestRank() int {
	best := 0
	for _, c := range []*Contribution{f.lexical, f.semantic} {
		if c != nil && (best == 0 || c.Rank < best) {
			best = c.Rank
		}
	}
	return best
}

func copyContribution(c *Contribution) *Contribution {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
