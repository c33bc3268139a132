package cache

import (
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain/document"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// Status is the outcome of a lookup.
type Status string

// Lookup outcomes.
const (
	Miss        Status = "miss"
	ExactHit    Status = "exact_hit"
	SemanticHit Status = "semantic_hit"
)

// Payload is the part of a pipeline answer worth replaying.
type Payload struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources,omitempty"`
	Model   string   `json:"model,omitempty"`
}

// Entry is one cached answer as stored in the backend.
type Entry struct {
	Workspace string    `json:"workspace"`
	Question  string    `json:"question"`
	Embedding []float32 `json:"embedding,omitempty"`
	Payload
	CreatedAt  time.Time `json:"created_at"`
	TTLSeconds int64     `json:"ttl"`
	// Similarity is set on semantic hits.
	Similarity float64 `json:"-"`
}

func (e *Entry) expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return !now.Before(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// Source is a serializable fused result.
type Source struct {
	ID       string               `json:"id"`
	Text     string               `json:"text"`
	Metadata document.Metadata    `json:"metadata,omitempty"`
	RRFScore float64              `json:"rrf_score"`
	Lexical  *result.Contribution `json:"lexical,omitempty"`
	Semantic *result.Contribution `json:"semantic,omitempty"`
}

// SourcesFromFused converts fused results for storage.
func SourcesFromFused(fs []result.Fused) []Source {
	out := make([]Source, len(fs))
	for i := range fs {
		f := &fs[i]
		doc := f.Document()
		out[i] = Source{
			ID:       f.ID(),
			Text:     doc.Text(),
			Metadata: doc.Metadata(),
			RRFScore: f.RRFScore(),
			Lexical:  f.Lexical(),
			Semantic: f.Semantic(),
		}
	}
	return out
}

// Fused converts stored sources back into fused results.
func Fused(src []Source) []result.Fused {
	out := make([]result.Fused, len(src))
	for i, s := range src {
		out[i] = result.NewFused(document.Reconstruct(s.ID, s.Text, s.Metadata), s.RRFScore, s.Lexical, s.Semantic)
	}
	return out
}
