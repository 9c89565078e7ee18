package collection

import (
	"fmt"
	"regexp"

	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Collection describes a named set of dish documents: its vector space and the
// metadata fields that must be filterable for point lookups.
type Collection struct {
	name      string
	dim       int
	metric    vector.Metric
	tagFields []string
}

// New validates and creates a Collection.
// Name: ^[a-zA-Z0-9_-]+$, 1-64 chars. Dim: > 0. Tag fields: unique, max 64.
func New(name string, dim int, metric vector.Metric, tagFields []string) (Collection, error) {
	if name == "" {
		return Collection{}, fmt.Errorf("collection name is required")
	}
	if len(name) > 64 {
		return Collection{}, fmt.Errorf("collection name too long (max 64)")
	}
	if !nameRegex.MatchString(name) {
		return Collection{}, fmt.Errorf("collection name must be alphanumeric with underscores and hyphens")
	}
	if dim <= 0 {
		return Collection{}, fmt.Errorf("vector dimension must be positive")
	}
	if metric == "" {
		metric = vector.MetricL2
	}
	if len(tagFields) > 64 {
		return Collection{}, fmt.Errorf("too many tag fields (max 64)")
	}
	seen := make(map[string]bool, len(tagFields))
	for _, f := range tagFields {
		if f == "" {
			return Collection{}, fmt.Errorf("tag field name is required")
		}
		if seen[f] {
			return Collection{}, fmt.Errorf("duplicate tag field: %s", f)
		}
		seen[f] = true
	}

	return Collection{
		name:      name,
		dim:       dim,
		metric:    metric,
		tagFields: append([]string(nil), tagFields...),
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Dim returns the embedding dimension.
func (c *Collection) Dim() int { return c.dim }

// Metric returns the distance metric.
func (c *Collection) Metric() vector.Metric { return c.metric }

// TagFields returns the metadata fields indexed for equality lookups.
func (c *Collection) TagFields() []string { return c.tagFields }
