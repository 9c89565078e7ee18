package collection

import (
	"github.com/kailas-cloud/dishrec/internal/db"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

// buildIndex creates an IndexDefinition from a collection description.
// Tag fields use "|" as separator so dish names with commas stay one tag.
func buildIndex(name, prefix string, c *domcol.Collection, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	b := db.NewIndex(name).Prefix(prefix)
	for _, f := range c.TagFields() {
		b = b.Tag(f, "|", true)
	}

	distance := db.DistanceL2
	if c.Metric() == vector.MetricCosine {
		distance = db.DistanceCosine
	}

	if hnsw.M > 0 {
		b = b.VectorHNSW(fieldVector, c.Dim(), distance, hnsw.M, hnsw.EFConstruct)
	} else {
		b = b.VectorFlat(fieldVector, c.Dim(), distance)
	}
	return b.Build()
}
