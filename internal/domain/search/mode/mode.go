package mode

import "strings"

// Mode is the retrieval strategy for a search request.
type Mode string

// Search mode constants.
const (
	// Hybrid runs lexical and semantic retrieval and fuses them with RRF.
	Hybrid   Mode = "hybrid"
	Semantic Mode = "semantic"
	// BM25 runs the in-memory lexical index only.
	BM25 Mode = "bm25"
)

var aliases = map[string]Mode{
	"lexical": BM25,
	"keyword": BM25,
	"vector":  Semantic,
	"dense":   Semantic,
	"fusion":  Hybrid,
}

// Normalize lowercases s and resolves aliases. Unknown values pass through
// unchanged so validation can report them verbatim.
func Normalize(s string) Mode {
	v := strings.ToLower(strings.TrimSpace(s))
	if m, ok := aliases[v]; ok {
		return m
	}
	return Mode(v)
}

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Semantic || m == BM25
}

// UsesLexical reports whether the mode queries the BM25 index.
func (m Mode) UsesLexical() bool { return m == Hybrid || m == BM25 }

// UsesSemantic reports whether the mode needs a query embedding.
func (m Mode) UsesSemantic() bool { return m == Hybrid || m == Semantic }
