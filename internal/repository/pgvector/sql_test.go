package pgvector

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

func TestDistanceExpr(t *testing.T) {
	if got := distanceExpr(vector.MetricL2); !strings.Contains(got, "<->") || !strings.HasPrefix(got, "power(") {
		t.Errorf("l2 expr = %q", got)
	}
	if got := distanceExpr(vector.MetricCosine); !strings.Contains(got, "<=>") || !strings.Contains(got, "'NaN'") {
		t.Errorf("cosine expr = %q", got)
	}
}

func TestKNNQuery_OrdersBySeqOnTies(t *testing.T) {
	q := knnQuery(vector.MetricL2)
	if !strings.Contains(q, "ORDER BY distance, seq") || !strings.Contains(q, "LIMIT $3") {
		t.Errorf("unexpected query: %s", q)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	enc, err := encodeMetadata(map[string]string{"dish_name": "Pad Thai", "cuisine_type": "Thai"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeMetadata(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["dish_name"] != "Pad Thai" || got["cuisine_type"] != "Thai" {
		t.Errorf("got %v", got)
	}

	empty, _ := encodeMetadata(nil)
	if empty != "{}" {
		t.Errorf("empty metadata = %q", empty)
	}
	if _, err := decodeMetadata("not json"); err == nil {
		t.Error("expected decode error")
	}
}

func TestParseVector(t *testing.T) {
	got, err := parseVector(vector.Format([]float32{1, 2.5, -3}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 || got[1] != 2.5 || got[2] != -3 {
		t.Errorf("got %v", got)
	}
	if _, err := parseVector("[1,"); err == nil {
		t.Error("expected parse error")
	}
}
