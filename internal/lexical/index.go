// Package lexical holds the in-memory BM25 index built per workspace from the corpus.
package lexical

import (
	"math"
	"sort"

	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// Params are the BM25 free parameters.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns k1=1.5, b=0.75.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

type posting struct {
	doc int
	tf  int
}

// Index is an immutable BM25 snapshot over one corpus.
// Readers share it freely; rebuilds produce a new Index.
type Index struct {
	params   Params
	docs     []document.Document
	lengths  []int
	avgLen   float64
	postings map[string][]posting
}

// Build tokenizes every document and computes corpus statistics from scratch.
// Document order is the corpus order used for tie-breaking.
func Build(docs []document.Document, p Params) *Index {
	if p.K1 <= 0 {
		p.K1 = DefaultParams().K1
	}
	if p.B < 0 || p.B > 1 {
		p.B = DefaultParams().B
	}

	idx := &Index{
		params:   p,
		docs:     append([]document.Document(nil), docs...),
		lengths:  make([]int, len(docs)),
		postings: make(map[string][]posting),
	}

	total := 0
	for i := range idx.docs {
		terms := Tokenize(idx.docs[i].Text())
		idx.lengths[i] = len(terms)
		total += len(terms)

		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t, n := range tf {
			idx.postings[t] = append(idx.postings[t], posting{doc: i, tf: n})
		}
	}
	if len(docs) > 0 {
		idx.avgLen = float64(total) / float64(len(docs))
	}
	return idx
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.docs)
}

// AvgLen returns the average document length in tokens.
func (ix *Index) AvgLen() float64 {
	if ix == nil {
		return 0
	}
	return ix.avgLen
}

// DocFreq returns the number of documents containing term.
func (ix *Index) DocFreq(term string) int {
	if ix == nil {
		return 0
	}
	return len(ix.postings[term])
}

// idf is ln((N - df + 0.5)/(df + 0.5) + 1), positive for every df.
func (ix *Index) idf(df int) float64 {
	n := float64(len(ix.docs))
	d := float64(df)
	return math.Log((n-d+0.5)/(d+0.5) + 1)
}

type hit struct {
	doc   int
	score float64
}

// Search scores every document containing at least one query term and returns the top k
// by descending score, ranked from 1. Ties keep corpus order.
func (ix *Index) Search(query string, k int) []result.Ranked {
	if ix.Len() == 0 || k <= 0 {
		return nil
	}
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	avg := ix.avgLen
	if avg == 0 {
		avg = 1
	}
	k1, b := ix.params.K1, ix.params.B

	scores := make(map[int]float64)
	for _, t := range terms {
		ps := ix.postings[t]
		if len(ps) == 0 {
			continue
		}
		idf := ix.idf(len(ps))
		for _, p := range ps {
			tf := float64(p.tf)
			norm := k1 * (1 - b + b*float64(ix.lengths[p.doc])/avg)
			scores[p.doc] += idf * tf * (k1 + 1) / (tf + norm)
		}
	}
	if len(scores) == 0 {
		return nil
	}

	hits := make([]hit, 0, len(scores))
	for d, s := range scores {
		hits = append(hits, hit{doc: d, score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc < hits[j].doc
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]result.Ranked, len(hits))
	for i, h := range hits {
		out[i] = result.NewRanked(ix.docs[h.doc], h.score, i+1, result.Lexical)
	}
	return out
}
