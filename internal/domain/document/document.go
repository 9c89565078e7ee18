package document

import (
	"fmt"
	"maps"
	"regexp"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxTextSize is the maximum synthesized text size in bytes.
const MaxTextSize = 163840 // 160KB

// Document is one dish as stored in a collection (immutable value object).
type Document struct {
	id        string
	text      string
	embedding []float32
	metadata  map[string]string
}

// New validates and creates a Document.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Text: non-empty, max 160KB. Embedding: non-empty.
func New(id, text string, embedding []float32, metadata map[string]string) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required")
	}
	if len(id) > 256 {
		return Document{}, fmt.Errorf("document ID too long (max 256)")
	}
	if !idRegex.MatchString(id) {
		return Document{}, fmt.Errorf("document ID must be alphanumeric with underscores and hyphens")
	}
	if text == "" {
		return Document{}, fmt.Errorf("text is required")
	}
	if len(text) > MaxTextSize {
		return Document{}, fmt.Errorf("text too large (max %d bytes)", MaxTextSize)
	}
	if len(embedding) == 0 {
		return Document{}, fmt.Errorf("embedding is required")
	}

	return Document{
		id:        id,
		text:      text,
		embedding: append([]float32(nil), embedding...),
		metadata:  maps.Clone(metadata),
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, text string, embedding []float32, metadata map[string]string) Document {
	return Document{id: id, text: text, embedding: embedding, metadata: metadata}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Text returns the synthesized text payload.
func (d *Document) Text() string { return d.text }

// Embedding returns the stored vector.
func (d *Document) Embedding() []float32 { return d.embedding }

// Metadata returns all metadata fields.
func (d *Document) Metadata() map[string]string { return d.metadata }

// Field returns one metadata value.
func (d *Document) Field(key string) (string, bool) {
	v, ok := d.metadata[key]
	return v, ok
}
