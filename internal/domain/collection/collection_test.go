package collection

import (
	"strings"
	"testing"

	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

func TestNew_Valid(t *testing.T) {
	c, err := New("cold_start-pool", 1536, vector.MetricCosine, []string{"dish_name", "cuisine_type"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Name() != "cold_start-pool" || c.Dim() != 1536 || c.Metric() != vector.MetricCosine {
		t.Errorf("unexpected collection: %+v", c)
	}
	if len(c.TagFields()) != 2 {
		t.Errorf("TagFields() = %v", c.TagFields())
	}
}

func TestNew_DefaultMetric(t *testing.T) {
	c, err := New("catalog", 2, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Metric() != vector.MetricL2 {
		t.Errorf("Metric() = %q, want l2", c.Metric())
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		coll    string
		dim     int
		fields  []string
		wantErr string
	}{
		{"empty name", "", 2, nil, "name is required"},
		{"long name", strings.Repeat("a", 65), 2, nil, "too long"},
		{"bad name", "my coll", 2, nil, "alphanumeric"},
		{"zero dim", "c", 0, nil, "dimension must be positive"},
		{"dup field", "c", 2, []string{"a", "a"}, "duplicate tag field"},
		{"empty field", "c", 2, []string{""}, "tag field name is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.coll, tc.dim, vector.MetricL2, tc.fields)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}
