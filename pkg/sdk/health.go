package dishrec

import (
	"context"

	healthuc "github.com/kailas-cloud/dishrec/internal/usecase/health"
)

// HealthStatus represents the aggregated health of the store and the embedder.
type HealthStatus struct {
	Status string            // "ok", "degraded" (embedder down), "error" (store down)
	Checks map[string]string // "store", "embedding" → "ok"/"error"
}

// Health checks every configured component.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
