package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dishrec/internal/domain"
	"github.com/kailas-cloud/dishrec/internal/domain/history"
	dominingest "github.com/kailas-cloud/dishrec/internal/domain/ingest"
	logpkg "github.com/kailas-cloud/dishrec/internal/logger"
	healthuc "github.com/kailas-cloud/dishrec/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/dishrec/internal/usecase/ingest"
	recommenduc "github.com/kailas-cloud/dishrec/internal/usecase/recommend"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 8 << 20

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Config holds request defaults for the API.
type Config struct {
	Catalog  string
	Pool     string
	DefaultK int
	MaxK     int
}

// Server serves the recommendation API.
type Server struct {
	recommend     *recommenduc.Service
	ingest        *ingestuc.Service
	health        *healthuc.Service
	cfg           Config
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. ingest may be nil, which disables the ingest route.
func NewServer(
	recommend *recommenduc.Service,
	ingest *ingestuc.Service,
	health *healthuc.Service,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 5
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = max(100, cfg.DefaultK)
	}
	s := &Server{
		recommend: recommend,
		ingest:    ingest,
		health:    health,
		cfg:       cfg,
		logger:    logger,
	}
	// Order matters: ErrNotFound arrives wrapped in ErrVectorStore, and throttling
	// errors also carry ErrEmbeddingProviderError.
	s.errorHandlers = []errorHandler{
		historyResolutionHandler,
		sentinelHandler(domain.ErrEmptyHistory, http.StatusUnprocessableEntity, codeEmptyHistory),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrSynthesis, http.StatusBadGateway, codeSynthesisError),
		sentinelHandler(domain.ErrVectorStore, http.StatusServiceUnavailable, codeVectorStoreError),
	}
	return s
}

// Recommend handles POST /api/v1/recommendations.
func (s *Server) Recommend(w http.ResponseWriter, r *http.Request) {
	var req RecommendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	k := s.cfg.DefaultK
	if req.K != nil {
		k = *req.K
	}
	if k <= 0 || k > s.cfg.MaxK {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("k must be between 1 and %d", s.cfg.MaxK))
		return
	}

	catalog := orDefault(req.Catalog, s.cfg.Catalog)
	pool := orDefault(req.Pool, s.cfg.Pool)

	matches, err := s.recommend.RecommendMatches(r.Context(), history.FromKeys(req.History...), catalog, pool, k)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]Recommendation, len(matches))
	for i := range matches {
		m := &matches[i]
		items[i] = Recommendation{
			ID:       m.ID(),
			Dish:     m.Field(s.recommend.KeyField()),
			Distance: m.Distance(),
			Metadata: m.Metadata(),
		}
	}
	writeJSON(w, http.StatusOK, RecommendResponse{Items: items, K: k})
}

// Composite handles POST /api/v1/composite.
func (s *Server) Composite(w http.ResponseWriter, r *http.Request) {
	var req CompositeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	emb, err := s.recommend.BuildCompositeEmbedding(r.Context(),
		history.FromKeys(req.History...), orDefault(req.Catalog, s.cfg.Catalog))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompositeResponse{Embedding: emb, Dimensions: len(emb)})
}

// Ingest handles POST /api/v1/collections/{collection}/ingest.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "rows must not be empty")
		return
	}

	rows := make([]ingestuc.Row, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = row
	}

	collection := chi.URLParam(r, "collection")
	ctx, usage := domain.NewContextWithUsage(logpkg.With(r.Context(), logpkg.Collection(collection)))
	r = r.WithContext(ctx)
	results, err := s.ingest.Build(ctx, collection, rows)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]IngestResultItem, len(results))
	for i, res := range results {
		items[i] = ingestResultToDTO(res)
	}
	sum := dominingest.Summarize(results)

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, IngestResponse{
		Items:      items,
		Succeeded:  sum.OK,
		Failed:     sum.Failed,
		Duplicates: sum.Duplicates,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage.Calls() > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.FormatInt(usage.Tokens(), 10))
	}
}

// internalErrorBody is sent when a response cannot be encoded.
var internalErrorBody = []byte(`{"code":"` + codeInternalError + `","message":"internal error"}` + "\n")

// writeJSON encodes v before writing the header; an unencodable value
// (a NaN distance) is sent as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status, body = http.StatusInternalServerError, internalErrorBody
	} else {
		body = append(body, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Errors that name a caller-supplied value (dish, dimension, k) are passed through.
func safeDomainMessage(err error) string {
	var (
		resErr *domain.HistoryResolutionError
		dimErr *domain.DimensionMismatchError
		mfErr  *domain.MissingFieldError
	)
	switch {
	case errors.As(err, &resErr):
		return resErr.Error()
	case errors.As(err, &dimErr):
		return dimErr.Error()
	case errors.As(err, &mfErr):
		return mfErr.Error()
	}

	sentinels := []error{
		domain.ErrEmptyHistory,
		domain.ErrNotFound,
		domain.ErrInvalidArgument,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrSynthesis,
		domain.ErrVectorStore,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// historyResolutionHandler names the unresolved dish in the response body.
func historyResolutionHandler(w http.ResponseWriter, err error, msg string) bool {
	var rerr *domain.HistoryResolutionError
	if !errors.As(err, &rerr) {
		return false
	}
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Code:    codeHistoryResolution,
		Message: msg,
		Dish:    rerr.Key,
	})
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func ingestResultToDTO(r dominingest.Result) IngestResultItem {
	item := IngestResultItem{
		Row:    r.Row(),
		ID:     r.ID(),
		Key:    r.Key(),
		Status: string(r.Status()),
	}
	if r.Err() != nil {
		item.Error = &ErrorResponse{
			Code:    ingestErrorCode(r.Err()),
			Message: safeDomainMessage(r.Err()),
		}
		if r.Status() == dominingest.StatusDuplicate {
			item.Error.Message = r.Err().Error()
		}
	}
	return item
}

func ingestErrorCode(err error) string {
	var dup *dominingest.DuplicateError
	switch {
	case errors.As(err, &dup):
		return "duplicate"
	case errors.Is(err, domain.ErrMissingField), errors.Is(err, domain.ErrInvalidArgument):
		return codeValidationFailed
	case errors.Is(err, domain.ErrRateLimited):
		return codeRateLimited
	case errors.Is(err, domain.ErrEmbeddingQuotaExceeded):
		return codeQuotaExceeded
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return codeProviderError
	case errors.Is(err, domain.ErrSynthesis):
		return codeSynthesisError
	case errors.Is(err, domain.ErrVectorStore):
		return codeVectorStoreError
	default:
		return codeInternalError
	}
}
