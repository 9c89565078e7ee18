package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/dishrec/internal/domain"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
	"github.com/kailas-cloud/dishrec/internal/repository/memory"
	"github.com/kailas-cloud/dishrec/internal/synth"
	healthuc "github.com/kailas-cloud/dishrec/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/dishrec/internal/usecase/ingest"
	recommenduc "github.com/kailas-cloud/dishrec/internal/usecase/recommend"
)

// fakeEmbedder maps texts containing a known dish name to a fixed vector.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	for name, v := range f.vectors {
		if strings.Contains(text, "'"+name+"'") {
			return domain.EmbeddingResult{Embedding: v, TotalTokens: 3}, nil
		}
	}
	return domain.EmbeddingResult{Embedding: []float32{9, 9}, TotalTokens: 3}, nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("conn refused") }

type testEnv struct {
	store   *memory.Store
	handler http.Handler
	emb     *fakeEmbedder
}

// newTestEnv seeds catalog A=[1,0], B=[0,1] and pool X=[2,1], Y=[0,0].
func newTestEnv(t *testing.T, apiKeys ...string) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	seed := func(name string, dishes map[string][]float32, order []string) {
		c, err := domcol.New(name, 2, vector.MetricL2, []string{"dish_name"})
		if err != nil {
			t.Fatalf("collection: %v", err)
		}
		if err := store.Ensure(ctx, c); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		for i, dish := range order {
			d, err := domdoc.New("dish"+strconv.Itoa(i), dish, dishes[dish], map[string]string{"dish_name": dish})
			if err != nil {
				t.Fatalf("doc: %v", err)
			}
			if err := store.Insert(ctx, name, []domdoc.Document{d}); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
	}
	seed("catalog", map[string][]float32{"A": {1, 0}, "B": {0, 1}}, []string{"A", "B"})
	seed("pool", map[string][]float32{"X": {2, 1}, "Y": {0, 0}}, []string{"X", "Y"})

	rec, err := recommenduc.New(store, recommenduc.Config{Dim: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	emb := &fakeEmbedder{vectors: map[string][]float32{"Pad Thai": {1, 1}}}
	ing, err := ingestuc.New(store, synth.NewAttributeList(nil), emb, ingestuc.Config{Dim: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	health := healthuc.New(store, nil, zap.NewNop())

	srv := NewServer(rec, ing, health, Config{Catalog: "catalog", Pool: "pool", DefaultK: 5, MaxK: 10}, zap.NewNop())
	return &testEnv{store: store, handler: NewRouter(srv, apiKeys), emb: emb}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}
