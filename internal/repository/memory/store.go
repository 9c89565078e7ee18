// Package memory is an in-process vector store for development and tests.
// Queries are exact scans over every document of a collection.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/kailas-cloud/dishrec/internal/db"
	"github.com/kailas-cloud/dishrec/internal/domain"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

type collection struct {
	spec  domcol.Collection
	order []string // ids in first-insert order
	docs  map[string]domdoc.Document
}

// Store keeps collections and a small key-value space in memory. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	kv          map[string][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
		kv:          make(map[string][]byte),
	}
}

// Ensure registers a collection. Re-registering keeps the existing documents.
func (s *Store) Ensure(_ context.Context, c domcol.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[c.Name()]; ok {
		if existing.spec.Dim() != c.Dim() {
			return fmt.Errorf("collection %s already exists with dimension %d", c.Name(), existing.spec.Dim())
		}
		return nil
	}
	s.collections[c.Name()] = &collection{spec: c, docs: make(map[string]domdoc.Document)}
	return nil
}

// Insert upserts docs. Either every document is stored or none is.
func (s *Store) Insert(_ context.Context, name string, docs []domdoc.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(name)
	if err != nil {
		return err
	}
	for i := range docs {
		if got := len(docs[i].Embedding()); got != c.spec.Dim() {
			return fmt.Errorf("document %s: %w", docs[i].ID(), domain.NewDimensionMismatch(docs[i].ID(), c.spec.Dim(), got))
		}
		if err := vector.CheckFinite(docs[i].Embedding()); err != nil {
			return fmt.Errorf("document %s: embedding %w: %w", docs[i].ID(), err, domain.ErrInvalidArgument)
		}
	}
	for _, d := range docs {
		if _, ok := c.docs[d.ID()]; !ok {
			c.order = append(c.order, d.ID())
		}
		c.docs[d.ID()] = d
	}
	return nil
}

// GetByMetadata returns matching documents in insertion order.
func (s *Store) GetByMetadata(_ context.Context, name, key, value string) ([]domdoc.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}
	var out []domdoc.Document
	for _, id := range c.order {
		d := c.docs[id]
		if v, ok := d.Field(key); ok && v == value {
			out = append(out, d)
		}
	}
	return out, nil
}

// Query ranks every document by distance to embedding. Ties keep insertion order.
func (s *Store) Query(_ context.Context, name string, embedding []float32, k int) ([]match.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(name)
	if err != nil {
		return nil, err
	}

	out := make([]match.Match, 0, len(c.order))
	for _, id := range c.order {
		d := c.docs[id]
		dist, err := vector.Distance(c.spec.Metric(), embedding, d.Embedding())
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		out = append(out, match.New(id, dist, maps.Clone(d.Metadata())))
	}
	slices.SortStableFunc(out, func(a, b match.Match) int {
		return vector.CompareDistance(a.Distance(), b.Distance())
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Get returns a value from the key-value space.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return slices.Clone(v), nil
}

// Set stores a value in the key-value space.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = slices.Clone(value)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) collection(name string) (*collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	return c, nil
}
