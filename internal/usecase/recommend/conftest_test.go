package recommend

import (
	"context"
	"strconv"
	"testing"

	"go.uber.org/zap"

	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
	"github.com/kailas-cloud/dishrec/internal/repository/memory"
)

// mockStore implements Store for tests.
type mockStore struct {
	getByMetadataFn func(ctx context.Context, collection, key, value string) ([]domdoc.Document, error)
	queryFn         func(ctx context.Context, collection string, embedding []float32, k int) ([]match.Match, error)
}

func (m *mockStore) GetByMetadata(ctx context.Context, collection, key, value string) ([]domdoc.Document, error) {
	if m.getByMetadataFn != nil {
		return m.getByMetadataFn(ctx, collection, key, value)
	}
	return nil, nil
}

func (m *mockStore) Query(ctx context.Context, collection string, embedding []float32, k int) ([]match.Match, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, collection, embedding, k)
	}
	return nil, nil
}

type dish struct {
	name string
	emb  []float32
}

// newMemoryStore seeds an in-memory catalog and pool of dimension dim.
func newMemoryStore(t *testing.T, dim int, catalog, pool []dish) *memory.Store {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	for name, dishes := range map[string][]dish{"catalog": catalog, "pool": pool} {
		c, err := domcol.New(name, dim, vector.MetricL2, []string{"dish_name"})
		if err != nil {
			t.Fatalf("collection: %v", err)
		}
		if err := s.Ensure(ctx, c); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		docs := make([]domdoc.Document, len(dishes))
		for i, d := range dishes {
			doc, err := domdoc.New("dish"+strconv.Itoa(i), d.name, d.emb, map[string]string{"dish_name": d.name})
			if err != nil {
				t.Fatalf("doc: %v", err)
			}
			docs[i] = doc
		}
		if err := s.Insert(ctx, name, docs); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return s
}

func newService(t *testing.T, store Store, cfg Config) *Service {
	t.Helper()
	if cfg.Dim == 0 {
		cfg.Dim = 2
	}
	s, err := New(store, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return s
}

func docWith(t *testing.T, name string, emb ...float32) domdoc.Document {
	t.Helper()
	d, err := domdoc.New("d", name, emb, map[string]string{"dish_name": name})
	if err != nil {
		t.Fatalf("doc: %v", err)
	}
	return d
}
