package pgvector

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

// distanceExpr returns the SQL distance between the embedding column and $2.
// pgvector's <-> is the Euclidean norm; it is squared so scores line up with the other stores.
// <=> is NaN when either side is a zero vector; that is reported as 1, as the in-process stores do.
func distanceExpr(m vector.Metric) string {
	if m == vector.MetricCosine {
		return `coalesce(nullif(embedding <=> $2::vector, 'NaN'::float8), 1)`
	}
	return `power(embedding <-> $2::vector, 2)`
}

func knnQuery(m vector.Metric) string {
	return fmt.Sprintf(
		`SELECT id, metadata::text, %s AS distance
		 FROM dish_documents
		 WHERE collection = $1
		 ORDER BY distance, seq
		 LIMIT $3`, distanceExpr(m))
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	m := make(map[string]string)
	if s == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// parseVector reads pgvector's text form, which is also a JSON array.
func parseVector(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return v, nil
}
