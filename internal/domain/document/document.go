package document

import "fmt"

// MaxTextSize is the maximum document text size in bytes accepted from a corpus.
const MaxTextSize = 1 << 20

// Document is an indexed corpus document (immutable value object).
type Document struct {
	id       string
	text     string
	metadata Metadata
}

// New validates and creates a Document. Metadata is copied.
func New(id, text string, metadata Metadata) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(text) > MaxTextSize {
		return Document{}, fmt.Errorf("document %s: text too large (max %d bytes)", id, MaxTextSize)
	}
	return Document{id: id, text: text, metadata: metadata.Clone()}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, text string, metadata Metadata) Document {
	return Document{id: id, text: text, metadata: metadata}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Text returns the document body.
func (d *Document) Text() string { return d.text }

// Metadata returns the ordered metadata.
func (d *Document) Metadata() Metadata { return d.metadata }

// Title returns the best human label for citations: title, then url, then source, then the id.
func (d *Document) Title() string {
	for _, key := range []string{"title", "url", "source"} {
		if v, ok := d.metadata.Get(key); ok && v != "" {
			return v
		}
	}
	return d.id
}
