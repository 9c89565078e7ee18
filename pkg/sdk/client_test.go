package dishrec

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// vocabEmbedder gives every known dish a fixed 2-d vector; the dish name is
// recovered from the synthesized attribute list.
type vocabEmbedder struct {
	vocab map[string][]float32
	err   error
	calls int
}

func (v *vocabEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	v.calls++
	if v.err != nil {
		return EmbeddingResult{}, v.err
	}
	for name, emb := range v.vocab {
		if strings.Contains(text, "'"+name+"'") {
			return EmbeddingResult{Embedding: emb, PromptTokens: 3, TotalTokens: 3}, nil
		}
	}
	return EmbeddingResult{Embedding: []float32{0, 0}, TotalTokens: 1}, nil
}

func newVocab() *vocabEmbedder {
	return &vocabEmbedder{vocab: map[string][]float32{
		"Pad Thai":    {1, 0},
		"Green Curry": {0, 1},
		"Tom Yum":     {2, 1},
		"Larb":        {-3, 0},
	}}
}

func row(name string) map[string]string {
	return map[string]string{
		"dish_name":        name,
		"dish_description": name + " description",
		"cuisine_type":     "Thai",
		"dietary_tags":     "none",
	}
}

func newSeededClient(t *testing.T, opts ...Option) (*Client, *vocabEmbedder) {
	t.Helper()
	emb := newVocab()
	base := []Option{WithEmbedder(emb), WithDimensions(2)}
	c, err := New(context.Background(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)

	ctx := context.Background()
	if _, err := c.Ingest(ctx, "catalog", []map[string]string{row("Pad Thai"), row("Green Curry")}); err != nil {
		t.Fatalf("ingest catalog: %v", err)
	}
	if _, err := c.Ingest(ctx, "pool", []map[string]string{row("Tom Yum"), row("Larb")}); err != nil {
		t.Fatalf("ingest pool: %v", err)
	}
	return c, emb
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := c.Ingest(context.Background(), "catalog", []map[string]string{row("Pad Thai")}); !errors.Is(err, ErrNoEmbedder) {
		t.Fatalf("expected ErrNoEmbedder, got %v", err)
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(context.Background(), WithDimensions(-1)); err == nil {
		t.Fatal("expected error for negative dimensions")
	}
	if _, err := New(context.Background(), WithEmbedder(newVocab()), WithFieldMap("a:")); err == nil {
		t.Fatal("expected error for bad field map")
	}
	if _, err := openStoreForDriver("chroma"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func openStoreForDriver(driver string) (vectorStore, error) {
	s, _, _, err := openStore(context.Background(), &clientConfig{driver: driver})
	return s, err
}

func TestRecommend_EndToEnd(t *testing.T) {
	c, _ := newSeededClient(t)
	ctx := context.Background()

	// composite = (1,0)+(1,0)+(0,1) = (2,1), which is Tom Yum exactly.
	emb, err := c.CompositeEmbedding(ctx, []string{"Pad Thai", "Pad Thai", "Green Curry"}, "catalog")
	if err != nil {
		t.Fatalf("composite: %v", err)
	}
	if len(emb) != 2 || emb[0] != 2 || emb[1] != 1 {
		t.Fatalf("composite = %v, want [2 1]", emb)
	}

	names, err := c.Recommend(ctx, []string{"Pad Thai", "Pad Thai", "Green Curry"}, "catalog", "pool", 1)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(names) != 1 || names[0] != "Tom Yum" {
		t.Fatalf("names = %v, want [Tom Yum]", names)
	}

	recs, err := c.RecommendDetailed(ctx, []string{"Pad Thai", "Pad Thai", "Green Curry"}, "catalog", "pool", 5)
	if err != nil {
		t.Fatalf("recommend detailed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].Dish != "Tom Yum" || recs[0].Distance != 0 {
		t.Errorf("first = %+v", recs[0])
	}
	// (2,1) to (-3,0): squared L2 = 25 + 1.
	if recs[1].Dish != "Larb" || recs[1].Distance != 26 {
		t.Errorf("second = %+v", recs[1])
	}
	if recs[0].Metadata["cuisine_type"] != "Thai" {
		t.Errorf("metadata = %v", recs[0].Metadata)
	}
}

func TestRecommend_Policies(t *testing.T) {
	ctx := context.Background()

	strict, _ := newSeededClient(t)
	_, err := strict.Recommend(ctx, []string{"Pad Thai", "Sushi"}, "catalog", "pool", 1)
	var rerr *HistoryResolutionError
	if !errors.As(err, &rerr) || rerr.Key != "Sushi" {
		t.Fatalf("expected resolution error for Sushi, got %v", err)
	}
	if _, err := strict.Recommend(ctx, nil, "catalog", "pool", 1); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("expected ErrEmptyHistory, got %v", err)
	}
	if _, err := strict.Recommend(ctx, []string{"Pad Thai"}, "catalog", "pool", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	lenient, _ := newSeededClient(t, WithSkipUnresolved(), WithZeroOnEmptyHistory())
	names, err := lenient.Recommend(ctx, []string{"Sushi", "Pad Thai"}, "catalog", "pool", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (1,0) is nearer to Tom Yum (2,1) than to Larb (-3,0).
	if len(names) != 1 || names[0] != "Tom Yum" {
		t.Fatalf("names = %v", names)
	}
	emb, err := lenient.CompositeEmbedding(ctx, nil, "catalog")
	if err != nil || len(emb) != 2 || emb[0] != 0 || emb[1] != 0 {
		t.Fatalf("zero composite = %v, %v", emb, err)
	}
}

func TestCompositeEmbedding_WhitespaceInDishName(t *testing.T) {
	ctx := context.Background()
	emb := newVocab()
	emb.vocab["Pad Thai "] = []float32{3, 4}
	c, err := New(ctx, WithEmbedder(emb), WithDimensions(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if _, err := c.Ingest(ctx, "catalog", []map[string]string{row("Pad Thai "), row("Pad Thai")}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, err := c.CompositeEmbedding(ctx, []string{"Pad Thai "}, "catalog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("composite = %v, want [3 4]", got)
	}

	got, err = c.CompositeEmbedding(ctx, []string{"Pad Thai"}, "catalog")
	if err != nil || len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("composite = %v, %v, want [1 0]", got, err)
	}

	if _, err := c.CompositeEmbedding(ctx, []string{"  "}, "catalog"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for blank key, got %v", err)
	}
}

func TestIngest_Results(t *testing.T) {
	c, emb := newSeededClient(t)
	before := emb.calls

	res, err := c.Ingest(context.Background(), "menu", []map[string]string{
		row("Pad Thai"),
		{"dish_name": "Larb"},
		row("Pad Thai"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if res[0].Status != IngestOK || res[0].ID != "dish0" || res[0].Dish != "Pad Thai" {
		t.Errorf("row 0 = %+v", res[0])
	}
	if res[1].Status != IngestError || !errors.Is(res[1].Err, ErrMissingField) {
		t.Errorf("row 1 = %+v", res[1])
	}
	if res[2].Status != IngestDuplicate {
		t.Errorf("row 2 = %+v", res[2])
	}
	if got := emb.calls - before; got != 1 {
		t.Errorf("embedder called %d times, want 1", got)
	}
}

func TestIngest_EmbedderFailure(t *testing.T) {
	emb := newVocab()
	emb.err = errors.New("provider down")
	c, err := New(context.Background(), WithEmbedder(emb), WithDimensions(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	res, err := c.Ingest(context.Background(), "menu", []map[string]string{row("Pad Thai")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res[0].Status != IngestError || !errors.Is(res[0].Err, ErrEmbeddingProviderError) {
		t.Fatalf("row 0 = %+v", res[0])
	}
}

func TestIngest_Options(t *testing.T) {
	emb := newVocab()
	c, err := New(context.Background(),
		WithEmbedder(emb),
		WithDimensions(2),
		WithKeepLast(),
		WithIDPrefix("menu-"),
		WithMaxBatchSize(2),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	res, err := c.Ingest(context.Background(), "menu", []map[string]string{row("Larb"), row("Larb")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res[0].Status != IngestDuplicate || res[1].Status != IngestOK || res[1].ID != "menu-1" {
		t.Fatalf("results = %+v", res)
	}

	_, err = c.Ingest(context.Background(), "menu", []map[string]string{row("a"), row("b"), row("c")})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for oversized batch, got %v", err)
	}
}

func TestBolt_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dishrec.db")
	ctx := context.Background()

	c, err := New(ctx, WithBolt(path), WithEmbedder(newVocab()), WithDimensions(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Ingest(ctx, "catalog", []map[string]string{row("Pad Thai")}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	c.Close()

	reopened, err := New(ctx, WithBolt(path), WithDimensions(2))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	emb, err := reopened.CompositeEmbedding(ctx, []string{"Pad Thai"}, "catalog")
	if err != nil {
		t.Fatalf("composite: %v", err)
	}
	if emb[0] != 1 || emb[1] != 0 {
		t.Fatalf("composite = %v, want [1 0]", emb)
	}
}

func TestHealth(t *testing.T) {
	c, _ := newSeededClient(t)
	h := c.Health(context.Background())
	if h.Status != "ok" {
		t.Fatalf("status = %q", h.Status)
	}
	if h.Checks["store"] != "ok" || h.Checks["embedding"] != "ok" {
		t.Fatalf("checks = %v", h.Checks)
	}
}

func TestObserver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(context.Background(),
		WithDimensions(2),
		WithPrometheus(reg),
		WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	_ = c.Ping(ctx)
	_, _ = c.Recommend(ctx, []string{"Pad Thai"}, "catalog", "pool", 1)

	ops := c.obs.metrics.operations
	if got := testutil.ToFloat64(ops.WithLabelValues("ping", "ok")); got != 1 {
		t.Errorf("ping ok = %v, want 1", got)
	}
	// The catalog does not exist on a fresh store, so the lookup fails.
	if got := testutil.ToFloat64(ops.WithLabelValues("recommend", "ok")); got != 0 {
		t.Errorf("recommend ok = %v, want 0", got)
	}
}

func TestObserver_ReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	for i := 0; i < 2; i++ {
		c, err := New(context.Background(), WithDimensions(2), WithPrometheus(reg))
		if err != nil {
			t.Fatalf("New #%d: %v", i, err)
		}
		c.Close()
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{errors.New("boom"), "error"},
		{&HistoryResolutionError{Key: "Sushi"}, "unresolved"},
	}
	for _, tc := range tests {
		if got := status(tc.err); got != tc.want {
			t.Errorf("status(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
