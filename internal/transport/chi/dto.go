package chi

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest        = "bad_request"
	codeUnauthorized      = "unauthorized"
	codeValidationFailed  = "validation_failed"
	codeNotFound          = "not_found"
	codeHistoryResolution = "history_resolution_failed"
	codeEmptyHistory      = "empty_history"
	codeRateLimited       = "rate_limited"
	codeQuotaExceeded     = "embedding_quota_exceeded"
	codeProviderError     = "embedding_provider_error"
	codeSynthesisError    = "synthesis_error"
	codeVectorStoreError  = "vector_store_error"
	codeInternalError     = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Dish    string `json:"dish,omitempty"`
}

// RecommendRequest is the body of POST /api/v1/recommendations.
type RecommendRequest struct {
	History []string `json:"history"`
	K       *int     `json:"k,omitempty"`
	Catalog string   `json:"catalog,omitempty"`
	Pool    string   `json:"pool,omitempty"`
}

// Recommendation is one ranked pool dish.
type Recommendation struct {
	ID       string            `json:"id"`
	Dish     string            `json:"dish"`
	Distance float64           `json:"distance"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// RecommendResponse lists recommendations nearest first.
type RecommendResponse struct {
	Items []Recommendation `json:"items"`
	K     int              `json:"k"`
}

// CompositeRequest is the body of POST /api/v1/composite.
type CompositeRequest struct {
	History []string `json:"history"`
	Catalog string   `json:"catalog,omitempty"`
}

// CompositeResponse carries the summed history embedding.
type CompositeResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
}

// IngestRequest is the body of POST /api/v1/collections/{collection}/ingest.
type IngestRequest struct {
	Rows []map[string]string `json:"rows"`
}

// IngestResultItem is the outcome of one source row.
type IngestResultItem struct {
	Row    int            `json:"row"`
	ID     string         `json:"id,omitempty"`
	Key    string         `json:"key,omitempty"`
	Status string         `json:"status"`
	Error  *ErrorResponse `json:"error,omitempty"`
}

// IngestResponse summarizes an ingest run.
type IngestResponse struct {
	Items      []IngestResultItem `json:"items"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Duplicates int                `json:"duplicates"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
