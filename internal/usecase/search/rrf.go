package search

import (
	"sort"

	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// DefaultRRFK is the Reciprocal Rank Fusion constant (Cormack et al. 2009).
const DefaultRRFK = 60

// WeightedList is one ranking fed into fusion.
type WeightedList struct {
	Results []result.Ranked
	Weight  float64
}

type fusedAcc struct {
	doc      result.Ranked
	terms    []float64
	bestRank int
	lexical  *result.Contribution
	semantic *result.Contribution
}

// Fuse merges rankings with weighted RRF: score(d) = sum of weight / (kRRF + rank).
// Raw scores never enter the sum. Output is sorted by score desc, best single-list
// rank asc, then id; entries below minScore are dropped after sorting.
func Fuse(lists []WeightedList, kRRF int, minScore float64) []result.Fused {
	if kRRF <= 0 {
		kRRF = DefaultRRFK
	}

	accs := make(map[string]*fusedAcc)
	for _, l := range lists {
		seen := make(map[string]struct{}, len(l.Results))
		for i := range l.Results {
			r := &l.Results[i]
			if _, dup := seen[r.ID()]; dup {
				continue
			}
			seen[r.ID()] = struct{}{}

			rank := r.Rank()
			if rank <= 0 {
				rank = i + 1
			}

			a, ok := accs[r.ID()]
			if !ok {
				a = &fusedAcc{doc: *r, bestRank: rank}
				accs[r.ID()] = a
			}
			a.terms = append(a.terms, l.Weight/float64(kRRF+rank))
			a.bestRank = min(a.bestRank, rank)

			c := &result.Contribution{Score: r.Score(), Rank: rank}
			switch r.Method() {
			case result.Lexical:
				if a.lexical == nil || rank < a.lexical.Rank {
					a.lexical = c
				}
			case result.Semantic:
				if a.semantic == nil || rank < a.semantic.Rank {
					a.semantic = c
				}
			}
		}
	}

	type scored struct {
		id    string
		score float64
		best  int
		acc   *fusedAcc
	}
	all := make([]scored, 0, len(accs))
	for id, a := range accs {
		// summing in a fixed order keeps the score independent of list order
		sort.Float64s(a.terms)
		var s float64
		for _, t := range a.terms {
			s += t
		}
		all = append(all, scored{id: id, score: s, best: a.bestRank, acc: a})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		if all[i].best != all[j].best {
			return all[i].best < all[j].best
		}
		return all[i].id < all[j].id
	})

	out := make([]result.Fused, 0, len(all))
	for _, s := range all {
		if s.score < minScore {
			continue
		}
		out = append(out, result.NewFused(s.acc.doc.Document(), s.score, s.acc.lexical, s.acc.semantic))
	}
	return out
}
