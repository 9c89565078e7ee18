package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/kailas-cloud/dishrec/internal/db"
	"github.com/kailas-cloud/dishrec/internal/domain"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

func newStore(t *testing.T, name string, metric vector.Metric) *Store {
	t.Helper()
	s := New()
	c, err := domcol.New(name, 2, metric, []string{"dish_name"})
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if err := s.Ensure(context.Background(), c); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	return s
}

func mustDoc(t *testing.T, id, name string, emb ...float32) domdoc.Document {
	t.Helper()
	d, err := domdoc.New(id, name+" text", emb, map[string]string{"dish_name": name})
	if err != nil {
		t.Fatalf("doc: %v", err)
	}
	return d
}

func TestInsert_UnknownCollection(t *testing.T) {
	s := New()
	err := s.Insert(context.Background(), "nope", []domdoc.Document{mustDoc(t, "d0", "A", 1, 0)})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsert_DimensionMismatchStoresNothing(t *testing.T) {
	s := newStore(t, "catalog", vector.MetricL2)
	ctx := context.Background()

	docs := []domdoc.Document{mustDoc(t, "d0", "A", 1, 0), mustDoc(t, "d1", "B", 1, 0, 0)}
	if err := s.Insert(ctx, "catalog", docs); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	got, _ := s.GetByMetadata(ctx, "catalog", "dish_name", "A")
	if len(got) != 0 {
		t.Fatalf("expected no documents after failed insert, got %d", len(got))
	}
}

func TestInsert_UpsertKeepsPosition(t *testing.T) {
	s := newStore(t, "pool", vector.MetricL2)
	ctx := context.Background()

	_ = s.Insert(ctx, "pool", []domdoc.Document{mustDoc(t, "d0", "A", 1, 1), mustDoc(t, "d1", "B", 1, 1)})
	_ = s.Insert(ctx, "pool", []domdoc.Document{mustDoc(t, "d0", "A2", 1, 1)})

	got, err := s.Query(ctx, "pool", []float32{1, 1}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].ID() != "d0" || got[0].Field("dish_name") != "A2" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestGetByMetadata_InsertionOrder(t *testing.T) {
	s := newStore(t, "catalog", vector.MetricL2)
	ctx := context.Background()

	_ = s.Insert(ctx, "catalog", []domdoc.Document{
		mustDoc(t, "d0", "A", 1, 0),
		mustDoc(t, "d1", "B", 0, 1),
		mustDoc(t, "d2", "A", 5, 5),
	})

	got, err := s.GetByMetadata(ctx, "catalog", "dish_name", "A")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got) != 2 || got[0].ID() != "d0" || got[1].ID() != "d2" {
		t.Fatalf("unexpected result: %+v", got)
	}

	none, err := s.GetByMetadata(ctx, "catalog", "dish_name", "Z")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty result, got %v, %v", none, err)
	}
}

func TestQuery_L2Ranking(t *testing.T) {
	s := newStore(t, "pool", vector.MetricL2)
	ctx := context.Background()

	_ = s.Insert(ctx, "pool", []domdoc.Document{
		mustDoc(t, "d0", "Y", 0, 0),
		mustDoc(t, "d1", "X", 2, 1),
	})

	got, err := s.Query(ctx, "pool", []float32{2, 1}, 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].Field("dish_name") != "X" || got[0].Distance() != 0 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestQuery_Cosine(t *testing.T) {
	s := newStore(t, "pool", vector.MetricCosine)
	ctx := context.Background()

	_ = s.Insert(ctx, "pool", []domdoc.Document{
		mustDoc(t, "d0", "far", 0, 1),
		mustDoc(t, "d1", "near", 10, 0),
	})

	got, _ := s.Query(ctx, "pool", []float32{1, 0}, 2)
	if got[0].Field("dish_name") != "near" {
		t.Fatalf("expected near first, got %+v", got)
	}
}

func TestInsert_RejectsNonFiniteEmbedding(t *testing.T) {
	s := newStore(t, "catalog", vector.MetricL2)
	ctx := context.Background()

	docs := []domdoc.Document{mustDoc(t, "d0", "A", 1, 0), mustDoc(t, "d1", "B", float32(math.NaN()), 0)}
	if err := s.Insert(ctx, "catalog", docs); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	err := s.Insert(ctx, "catalog", []domdoc.Document{mustDoc(t, "d2", "C", float32(math.Inf(1)), 0)})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for Inf, got %v", err)
	}
	if got, _ := s.GetByMetadata(ctx, "catalog", "dish_name", "A"); len(got) != 0 {
		t.Fatalf("expected no documents after failed insert, got %d", len(got))
	}
}

func TestQuery_UndefinedDistanceRanksLast(t *testing.T) {
	s := newStore(t, "pool", vector.MetricCosine)
	ctx := context.Background()

	if err := s.Insert(ctx, "pool", []domdoc.Document{
		mustDoc(t, "d0", "unit", 1, 0),
		mustDoc(t, "d1", "zero", 0, 0),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// An infinite query makes the cosine against "unit" NaN; "zero" scores 1.
	got, err := s.Query(ctx, "pool", []float32{float32(math.Inf(1)), 0}, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].Field("dish_name") != "zero" || !math.IsNaN(got[1].Distance()) {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestQuery_KLargerThanCollection(t *testing.T) {
	s := newStore(t, "pool", vector.MetricL2)
	ctx := context.Background()
	_ = s.Insert(ctx, "pool", []domdoc.Document{mustDoc(t, "d0", "A", 1, 0), mustDoc(t, "d1", "B", 0, 1)})

	got, err := s.Query(ctx, "pool", []float32{0, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
}

func TestQuery_InvalidK(t *testing.T) {
	s := newStore(t, "pool", vector.MetricL2)
	if _, err := s.Query(context.Background(), "pool", []float32{0, 0}, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestKV(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "k"); !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	_ = s.Set(ctx, "k", []byte("v"))
	got, err := s.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := newStore(t, "pool", vector.MetricL2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := "d" + string(rune('a'+i))
			d, err := domdoc.New(id, id, []float32{float32(i), 0}, map[string]string{"dish_name": id})
			if err != nil {
				t.Errorf("doc: %v", err)
				return
			}
			_ = s.Insert(ctx, "pool", []domdoc.Document{d})
			_, _ = s.Query(ctx, "pool", []float32{0, 0}, 3)
		}()
	}
	wg.Wait()

	got, _ := s.Query(ctx, "pool", []float32{0, 0}, 100)
	if len(got) != 8 {
		t.Fatalf("expected 8 documents, got %d", len(got))
	}
}
