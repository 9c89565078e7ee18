package ingest

import (
	"fmt"
	"strings"
)

// DedupPolicy decides which of several rows sharing a dedup key survives.
type DedupPolicy string

// Dedup policies.
const (
	KeepFirst DedupPolicy = "keep_first"
	KeepLast  DedupPolicy = "keep_last"
)

// ParseDedupPolicy parses a configured policy. Empty means KeepFirst.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(s) {
	case "", KeepFirst:
		return KeepFirst, nil
	case KeepLast:
		return KeepLast, nil
	default:
		return "", fmt.Errorf("unknown dedup policy %q (want keep_first or keep_last)", s)
	}
}

// FieldMapping copies one source column into one metadata key.
type FieldMapping struct {
	Source string
	Target string
}

// DefaultFieldMap is the source column to metadata key mapping for dish rows.
var DefaultFieldMap = []FieldMapping{
	{Source: "dish_name", Target: "dish_name"},
	{Source: "dish_description", Target: "dish_desc"},
	{Source: "cuisine_type", Target: "cuisine_type"},
	{Source: "dietary_tags", Target: "dietary_tags"},
}

// ParseFieldMap parses "source:target" pairs. A pair without a colon maps a column onto itself.
func ParseFieldMap(pairs []string) ([]FieldMapping, error) {
	out := make([]FieldMapping, 0, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		src, dst, ok := strings.Cut(strings.TrimSpace(p), ":")
		if !ok {
			dst = src
		}
		if src == "" || dst == "" {
			return nil, fmt.Errorf("invalid field mapping %q", p)
		}
		if _, dup := seen[dst]; dup {
			return nil, fmt.Errorf("metadata key %q mapped twice", dst)
		}
		seen[dst] = struct{}{}
		out = append(out, FieldMapping{Source: src, Target: dst})
	}
	return out, nil
}
