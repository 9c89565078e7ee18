package dishrec

import (
	"context"

	dominingest "github.com/kailas-cloud/dishrec/internal/domain/ingest"
	ingestuc "github.com/kailas-cloud/dishrec/internal/usecase/ingest"
)

// Recommendation is one pool dish ranked for a history.
type Recommendation struct {
	ID       string
	Dish     string
	Distance float64
	Metadata map[string]string
}

// IngestStatus is the outcome of one source row.
type IngestStatus string

// Row outcomes.
const (
	IngestOK        IngestStatus = IngestStatus(dominingest.StatusOK)
	IngestError     IngestStatus = IngestStatus(dominingest.StatusError)
	IngestDuplicate IngestStatus = IngestStatus(dominingest.StatusDuplicate)
)

// IngestResult reports what happened to one source row, by input position.
type IngestResult struct {
	Row    int
	ID     string // empty for rows that were never stored
	Dish   string
	Status IngestStatus
	Err    error
}

type ingestAdapter struct {
	svc *ingestuc.Service
}

func (a *ingestAdapter) Build(ctx context.Context, collection string, rows []ingestuc.Row) ([]IngestResult, error) {
	results, err := a.svc.Build(ctx, collection, rows)
	if err != nil {
		return nil, err
	}
	out := make([]IngestResult, len(results))
	for i, r := range results {
		out[i] = IngestResult{
			Row:    r.Row(),
			ID:     r.ID(),
			Dish:   r.Key(),
			Status: IngestStatus(r.Status()),
			Err:    r.Err(),
		}
	}
	return out, nil
}
