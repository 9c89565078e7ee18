// Package pgvector stores dish collections in PostgreSQL with the pgvector extension.
// All collections share one documents table keyed by (collection, id).
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/kailas-cloud/dishrec/internal/domain"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS dish_collections (
		name       TEXT PRIMARY KEY,
		dim        INT NOT NULL,
		metric     TEXT NOT NULL,
		tag_fields TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS dish_documents (
		collection TEXT NOT NULL REFERENCES dish_collections(name) ON DELETE CASCADE,
		id         TEXT NOT NULL,
		seq        BIGSERIAL,
		text       TEXT NOT NULL,
		metadata   JSONB NOT NULL DEFAULT '{}',
		embedding  vector NOT NULL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS dish_documents_metadata_idx ON dish_documents USING GIN (metadata)`,
}

// Store implements the vector store contract over database/sql and lib/pq.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, applies the schema and returns a ready store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: sqlDB}
	if err := s.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Ensure registers the collection, or checks an existing one has the same dimension.
func (s *Store) Ensure(ctx context.Context, c domcol.Collection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dish_collections (name, dim, metric, tag_fields)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING`,
		c.Name(), c.Dim(), string(c.Metric()), pq.Array(c.TagFields()),
	)
	if err != nil {
		return fmt.Errorf("ensure collection %s: %w", c.Name(), err)
	}

	existing, err := s.spec(ctx, s.db, c.Name())
	if err != nil {
		return err
	}
	if existing.Dim() != c.Dim() {
		return fmt.Errorf("collection %s already exists with dimension %d", c.Name(), existing.Dim())
	}
	return nil
}

// Insert upserts docs in one transaction. Upserted rows keep their original seq.
func (s *Store) Insert(ctx context.Context, collection string, docs []domdoc.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	spec, err := s.spec(ctx, tx, collection)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dish_documents (collection, id, text, metadata, embedding)
		 VALUES ($1, $2, $3, $4::jsonb, $5::vector)
		 ON CONFLICT (collection, id) DO UPDATE SET
			text = EXCLUDED.text,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range docs {
		d := &docs[i]
		if got := len(d.Embedding()); got != spec.Dim() {
			return fmt.Errorf("document %s: %w", d.ID(), domain.NewDimensionMismatch(d.ID(), spec.Dim(), got))
		}
		meta, err := encodeMetadata(d.Metadata())
		if err != nil {
			return fmt.Errorf("document %s: %w", d.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx, collection, d.ID(), d.Text(), meta, vector.Format(d.Embedding())); err != nil {
			return fmt.Errorf("insert document %s: %w", d.ID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByMetadata returns matching documents in insertion order.
func (s *Store) GetByMetadata(ctx context.Context, collection, key, value string) ([]domdoc.Document, error) {
	if _, err := s.spec(ctx, s.db, collection); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, metadata::text, embedding::text
		 FROM dish_documents
		 WHERE collection = $1 AND metadata->>$2 = $3
		 ORDER BY seq`,
		collection, key, value,
	)
	if err != nil {
		return nil, fmt.Errorf("lookup %s=%q in %s: %w", key, value, collection, err)
	}
	defer rows.Close()

	var docs []domdoc.Document
	for rows.Next() {
		var id, text, metaStr, vecStr string
		if err := rows.Scan(&id, &text, &metaStr, &vecStr); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		meta, err := decodeMetadata(metaStr)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		emb, err := parseVector(vecStr)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		docs = append(docs, domdoc.Reconstruct(id, text, emb, meta))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// Query returns up to k nearest documents, nearest first; ties resolve by insertion order.
func (s *Store) Query(ctx context.Context, collection string, embedding []float32, k int) ([]match.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrInvalidArgument)
	}

	spec, err := s.spec(ctx, s.db, collection)
	if err != nil {
		return nil, err
	}
	if len(embedding) != spec.Dim() {
		return nil, domain.NewDimensionMismatch("", spec.Dim(), len(embedding))
	}

	rows, err := s.db.QueryContext(ctx, knnQuery(spec.Metric()), collection, vector.Format(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("knn %s: %w", collection, err)
	}
	defer rows.Close()

	var out []match.Match
	for rows.Next() {
		var (
			id      string
			metaStr string
			dist    float64
		)
		if err := rows.Scan(&id, &metaStr, &dist); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		meta, err := decodeMetadata(metaStr)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", id, err)
		}
		out = append(out, match.New(id, dist, meta))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) spec(ctx context.Context, q querier, name string) (domcol.Collection, error) {
	var (
		dim       int
		metric    string
		tagFields []string
	)
	err := q.QueryRowContext(ctx,
		`SELECT dim, metric, tag_fields FROM dish_collections WHERE name = $1`, name,
	).Scan(&dim, &metric, pq.Array(&tagFields))
	if errors.Is(err, sql.ErrNoRows) {
		return domcol.Collection{}, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return domcol.Collection{}, fmt.Errorf("load collection %s: %w", name, err)
	}
	return domcol.New(name, dim, vector.Metric(metric), tagFields)
}
