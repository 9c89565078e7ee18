// Package bolt is the embedded, file-backed vector store. Each collection is a bucket
// holding its spec and two sub-buckets: documents keyed by insertion sequence and an
// id -> sequence index used for upserts. Queries are exact scans.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/dishrec/internal/db"
	"github.com/kailas-cloud/dishrec/internal/domain"
	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
	"github.com/kailas-cloud/dishrec/internal/domain/match"
	"github.com/kailas-cloud/dishrec/internal/domain/vector"
)

var (
	bucketCollections = []byte("collections")
	bucketKV          = []byte("kv")
	bucketDocs        = []byte("docs")
	bucketIDs         = []byte("ids")
	keySpec           = []byte("spec")
)

type storedSpec struct {
	Name      string   `json:"name"`
	Dim       int      `json:"dim"`
	Metric    string   `json:"metric"`
	TagFields []string `json:"tag_fields,omitempty"`
}

type storedDoc struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"v"`
	Metadata  map[string]string `json:"m,omitempty"`
}

// Store persists collections in a single bbolt file.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string, timeout time.Duration) (*Store, error) {
	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketCollections, bucketKV} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return &Store{db: bdb}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is still open.
func (s *Store) Ping(context.Context) error {
	return s.db.View(func(*bbolt.Tx) error { return nil })
}

// Ensure creates the collection bucket, or checks the stored spec matches.
func (s *Store) Ensure(_ context.Context, c domcol.Collection) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		if existing := root.Bucket([]byte(c.Name())); existing != nil {
			spec, err := decodeSpec(existing.Get(keySpec))
			if err != nil {
				return err
			}
			if spec.Dim() != c.Dim() {
				return fmt.Errorf("collection %s already exists with dimension %d", c.Name(), spec.Dim())
			}
			return nil
		}

		b, err := root.CreateBucket([]byte(c.Name()))
		if err != nil {
			return fmt.Errorf("create collection %s: %w", c.Name(), err)
		}
		if _, err := b.CreateBucket(bucketDocs); err != nil {
			return err
		}
		if _, err := b.CreateBucket(bucketIDs); err != nil {
			return err
		}
		data, err := json.Marshal(storedSpec{
			Name:      c.Name(),
			Dim:       c.Dim(),
			Metric:    string(c.Metric()),
			TagFields: c.TagFields(),
		})
		if err != nil {
			return err
		}
		return b.Put(keySpec, data)
	})
}

// Insert upserts docs in one transaction. An upserted document keeps its original position.
func (s *Store) Insert(_ context.Context, name string, docs []domdoc.Document) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, spec, err := collectionBucket(tx, name)
		if err != nil {
			return err
		}
		docsB, idsB := b.Bucket(bucketDocs), b.Bucket(bucketIDs)

		for i := range docs {
			d := &docs[i]
			if got := len(d.Embedding()); got != spec.Dim() {
				return fmt.Errorf("document %s: %w", d.ID(), domain.NewDimensionMismatch(d.ID(), spec.Dim(), got))
			}
			if err := vector.CheckFinite(d.Embedding()); err != nil {
				return fmt.Errorf("document %s: embedding %w: %w", d.ID(), err, domain.ErrInvalidArgument)
			}
			data, err := json.Marshal(storedDoc{
				ID:        d.ID(),
				Text:      d.Text(),
				Embedding: d.Embedding(),
				Metadata:  d.Metadata(),
			})
			if err != nil {
				return err
			}

			seqKey := idsB.Get([]byte(d.ID()))
			if seqKey == nil {
				seq, err := docsB.NextSequence()
				if err != nil {
					return err
				}
				seqKey = itob(seq)
				if err := idsB.Put([]byte(d.ID()), seqKey); err != nil {
					return err
				}
			} else {
				seqKey = slices.Clone(seqKey)
			}
			if err := docsB.Put(seqKey, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByMetadata returns matching documents in insertion order.
func (s *Store) GetByMetadata(_ context.Context, name, key, value string) ([]domdoc.Document, error) {
	var out []domdoc.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, _, err := collectionBucket(tx, name)
		if err != nil {
			return err
		}
		return b.Bucket(bucketDocs).ForEach(func(_, v []byte) error {
			var sd storedDoc
			if err := json.Unmarshal(v, &sd); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			if mv, ok := sd.Metadata[key]; ok && mv == value {
				out = append(out, domdoc.Reconstruct(sd.ID, sd.Text, sd.Embedding, sd.Metadata))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Query ranks every document by distance to embedding. Ties keep insertion order.
func (s *Store) Query(_ context.Context, name string, embedding []float32, k int) ([]match.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrInvalidArgument)
	}

	var out []match.Match
	err := s.db.View(func(tx *bbolt.Tx) error {
		b, spec, err := collectionBucket(tx, name)
		if err != nil {
			return err
		}
		return b.Bucket(bucketDocs).ForEach(func(_, v []byte) error {
			var sd storedDoc
			if err := json.Unmarshal(v, &sd); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			dist, err := vector.Distance(spec.Metric(), embedding, sd.Embedding)
			if err != nil {
				return fmt.Errorf("document %s: %w", sd.ID, err)
			}
			out = append(out, match.New(sd.ID, dist, sd.Metadata))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, func(a, b match.Match) int {
		return vector.CompareDistance(a.Distance(), b.Distance())
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Get returns a value from the kv bucket.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketKV).Get([]byte(key))
		if v == nil {
			return db.ErrKeyNotFound
		}
		out = slices.Clone(v)
		return nil
	})
	return out, err
}

// Set stores a value in the kv bucket.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), value)
	})
}

func collectionBucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, domcol.Collection, error) {
	b := tx.Bucket(bucketCollections).Bucket([]byte(name))
	if b == nil {
		return nil, domcol.Collection{}, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	spec, err := decodeSpec(b.Get(keySpec))
	if err != nil {
		return nil, domcol.Collection{}, err
	}
	return b, spec, nil
}

func decodeSpec(data []byte) (domcol.Collection, error) {
	if data == nil {
		return domcol.Collection{}, errors.New("collection spec missing")
	}
	var ss storedSpec
	if err := json.Unmarshal(data, &ss); err != nil {
		return domcol.Collection{}, fmt.Errorf("decode collection spec: %w", err)
	}
	return domcol.New(ss.Name, ss.Dim, vector.Metric(ss.Metric), ss.TagFields)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
