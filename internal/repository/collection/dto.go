package collection

import (
	"fmt"
	"maps"
	"strings"

	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

// Reserved hash fields. Metadata keys may not start with "__".
const (
	fieldText   = "__text"
	fieldVector = "__vector"
)

// buildHashFields converts a Document into a flat map for HSET.
func buildHashFields(doc *domdoc.Document) (map[string]string, error) {
	m := make(map[string]string, 2+len(doc.Metadata()))
	for k, v := range doc.Metadata() {
		if strings.HasPrefix(k, "__") {
			return nil, fmt.Errorf("metadata key %q is reserved", k)
		}
		m[k] = v
	}
	m[fieldText] = doc.Text()
	m[fieldVector] = string(vector.Encode(doc.Embedding()))
	return m, nil
}

// parseHashFields converts a flat hash map back into a Document.
func parseHashFields(id string, m map[string]string) (domdoc.Document, error) {
	emb, err := vector.Decode([]byte(m[fieldVector]))
	if err != nil {
		return domdoc.Document{}, err
	}
	return domdoc.Reconstruct(id, m[fieldText], emb, metadataFields(m)), nil
}

// metadataFields strips reserved fields.
func metadataFields(m map[string]string) map[string]string {
	out := maps.Clone(m)
	maps.DeleteFunc(out, func(k, _ string) bool { return strings.HasPrefix(k, "__") })
	return out
}
