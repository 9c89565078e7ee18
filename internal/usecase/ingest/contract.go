package ingest

import (
	"context"

	domcol "github.com/kailas-cloud/dishrec/internal/domain/collection"
	domdoc "github.com/kailas-cloud/dishrec/internal/domain/document"
)

// Store creates collections and inserts documents.
type Store interface {
	Ensure(ctx context.Context, c domcol.Collection) error
	Insert(ctx context.Context, collection string, docs []domdoc.Document) error
}
