// Package server exposes the question-answering pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"siterag/internal/domain"
	"siterag/internal/logging"
)

const maxBodyBytes = 1 << 20

// QueryService is the pipeline behind the HTTP API.
type QueryService interface {
	Ready() bool
	HandleQuery(ctx context.Context, req domain.QueryRequest) (domain.QueryResponse, error)
	History(ctx context.Context) (domain.History, error)
	ClearHistory(ctx context.Context) error
}

type Config struct {
	// RequestTimeout bounds one /query call end to end; zero disables it.
	RequestTimeout  time.Duration
	DefaultTopK     int
	DefaultMinScore float64
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

type Server struct {
	svc QueryService
	cfg Config
	log *zap.Logger
	mux *http.ServeMux
}

func New(svc QueryService, cfg Config) *Server {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 10
	}
	s := &Server{svc: svc, cfg: cfg, log: logging.OrNop(cfg.Logger), mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("DELETE /history", s.handleClearHistory)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	if cfg.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the API with request-id and logging middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// queryBody mirrors domain.QueryRequest with optional fields so defaults
// apply only when a field is absent.
type queryBody struct {
	Query    string   `json:"query"`
	TopK     *int     `json:"top_k"`
	MinScore *float64 `json:"min_score"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}
	req := domain.QueryRequest{Query: body.Query, TopK: s.cfg.DefaultTopK, MinScore: s.cfg.DefaultMinScore}
	if body.TopK != nil {
		req.TopK = *body.TopK
	}
	if body.MinScore != nil {
		req.MinScore = *body.MinScore
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	resp, err := s.svc.HandleQuery(ctx, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.RelevantChunks == nil {
		resp.RelevantChunks = []domain.RerankedChunk{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, err := s.svc.History(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if h.Topics == nil {
		h.Topics = []domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearHistory(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "indexing"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := classify(err)
	if status >= 500 {
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", w.Header().Get(requestIDHeader)),
			zap.Error(err))
	}
	writeDetail(w, status, detail)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyCorpus):
		return http.StatusNotFound, "No indexed chunks available."
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable, "Index is being built, retry shortly."
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "A scoring or generation service is unavailable."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out."
	default:
		return http.StatusInternalServerError, "Internal error."
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

const requestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withRequestID tags every request with an id (kept if the client sent
// one) and logs its outcome.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Debug("http request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)))
	})
}
