package db

// Reserved field names shared by every backend.
const (
	FieldContent     = "__content"
	FieldMetadata    = "__metadata"
	FieldVector      = "__vector"
	FieldVectorScore = "__vector_score"
)

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Vector       []float32
	K            int
	ReturnFields []string
	RawScores    bool // return the backend distance as-is instead of 1 - distance
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// ListQuery asks for one page of a workspace walk.
type ListQuery struct {
	IndexName string
	// KeyPrefix is the prefix shared by the workspace's document keys, if the backend has one.
	KeyPrefix string
	// Cursor is empty on the first page and the previous page's Cursor afterwards.
	Cursor    string
	Limit     int
}

// ListPage is one page of a workspace walk. An empty Cursor ends the walk.
type ListPage struct {
	Entries []SearchEntry
	Cursor  string
}
