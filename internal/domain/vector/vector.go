// Package vector holds the embedding arithmetic shared by the recommender and the stores.
package vector

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Metric selects how distance between two embeddings is measured.
type Metric string

const (
	// MetricL2 is squared Euclidean distance, the same score Redis reports for L2 indexes.
	MetricL2 Metric = "l2"
	// MetricCosine is 1 - cosine similarity.
	MetricCosine Metric = "cosine"
)

// ParseMetric accepts "l2" or "cosine" in any case.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(s)); m {
	case MetricL2, MetricCosine:
		return m, nil
	case "":
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Zero returns an all-zero embedding of dimension dim.
func Zero(dim int) []float32 {
	return make([]float32, dim)
}

// AddInPlace adds v into acc component-wise. Lengths must match.
func AddInPlace(acc, v []float32) error {
	if len(acc) != len(v) {
		return fmt.Errorf("add: length %d != %d", len(v), len(acc))
	}
	for i := range v {
		acc[i] += v[i]
	}
	return nil
}

// Distance computes the metric between a and b. Lengths must match.
func Distance(m Metric, a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("distance: length %d != %d", len(a), len(b))
	}
	switch m {
	case MetricCosine:
		return cosineDistance(a, b), nil
	default:
		return squaredL2(a, b), nil
	}
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// cosineDistance treats a zero vector as maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// CheckFinite returns an error naming the first NaN or infinite component of v.
func CheckFinite(v []float32) error {
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("component %d is %v", i, f)
		}
	}
	return nil
}

// CompareDistance orders distances ascending with NaN after every number.
func CompareDistance(a, b float64) int {
	switch an, bn := math.IsNaN(a), math.IsNaN(b); {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}
	return cmp.Compare(a, b)
}

// Encode serializes v as little-endian FLOAT32, the layout Redis vector fields expect.
func Encode(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, errors.New("vector blob length is not a multiple of 4")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Format renders v in pgvector text form: [1,2.5,-3].
func Format(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%g", f)
	}
	sb.WriteByte(']')
	return sb.String()
}
