// Package collection is the Redis/Valkey-backed vector store: dish documents live in
// hashes under a per-collection prefix and are served by one FT index per collection.
package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/dishrec/internal/db"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
)

// store is the consumer interface for collections (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchTag(ctx context.Context, q *db.TagQuery) (*db.SearchResult, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig HNSW index parameters. Zero M means FLAT (exact) indexing.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// DefaultLookupLimit caps how many documents a metadata lookup returns.
const DefaultLookupLimit = 100

// Repo implements the vector store contract over db.Store.
type Repo struct {
	store  store
	prefix string
	hnsw   HNSWConfig
}

// New creates a collection repository. keyPrefix namespaces all keys, e.g. "dishrec:".
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// WithHNSW switches new indexes to HNSW with the given parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// Ensure creates the collection index if it does not exist yet.
func (r *Repo) Ensure(ctx context.Context, c domcol.Collection) error {
	def, err := buildIndex(r.indexName(c.Name()), r.collectionPrefix(c.Name()), &c, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index for %s: %w", c.Name(), err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return nil
}

// Insert upserts documents in one pipelined round-trip.
func (r *Repo) Insert(ctx context.Context, collection string, docs []domdoc.Document) error {
	if len(docs) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(docs))
	for i := range docs {
		fields, err := buildHashFields(&docs[i])
		if err != nil {
			return fmt.Errorf("document %s: %w", docs[i].ID(), err)
		}
		items[i] = db.HashSetItem{Key: r.docKey(collection, docs[i].ID()), Fields: fields}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

// GetByMetadata returns documents whose metadata field key equals value.
// key must be one of the collection's tag fields.
func (r *Repo) GetByMetadata(ctx context.Context, collection, key, value string) ([]domdoc.Document, error) {
	res, err := r.store.SearchTag(ctx, &db.TagQuery{
		IndexName: r.indexName(collection),
		Field:     key,
		Value:     value,
		Limit:     DefaultLookupLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup %s=%q in %s: %w", key, value, collection, err)
	}

	docs := make([]domdoc.Document, 0, len(res.Entries))
	for _, e := range res.Entries {
		doc, err := parseHashFields(r.docID(collection, e.Key), e.Fields)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Query returns up to k nearest documents, nearest first.
func (r *Repo) Query(ctx context.Context, collection string, embedding []float32, k int) ([]match.Match, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: r.indexName(collection),
		Vector:    embedding,
		K:         k,
	})
	if err != nil {
		return nil, fmt.Errorf("knn %s: %w", collection, err)
	}

	out := make([]match.Match, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, match.New(r.docID(collection, e.Key), e.Score, metadataFields(e.Fields)))
	}
	return out, nil
}

func (r *Repo) collectionPrefix(collection string) string {
	return r.prefix + collection + ":"
}

func (r *Repo) docKey(collection, id string) string {
	return r.collectionPrefix(collection) + id
}

func (r *Repo) docID(collection, key string) string {
	return strings.TrimPrefix(key, r.collectionPrefix(collection))
}

func (r *Repo) indexName(collection string) string {
	return r.prefix + collection + ":idx"
}
