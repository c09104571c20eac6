// Package api exposes the HTTP interface for the resolution service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joblink/joblink-etl/internal/joblink"
	"github.com/joblink/joblink-etl/internal/metrics"
	"github.com/joblink/joblink-etl/internal/queue"
	"github.com/joblink/joblink-etl/internal/records"
)

// Pipeline is the scheduling surface the handlers drive.
type Pipeline interface {
	EnqueueParse(ctx context.Context, key records.Key, url string) (bool, error)
	EnqueueNotes(ctx context.Context, key records.Key) (bool, error)
	DrainBatch(ctx context.Context, name queue.Name) (bool, error)
	DrainAll(ctx context.Context) error
}

// Resolver resolves one URL synchronously, bypassing the queues.
type Resolver interface {
	Process(ctx context.Context, url string) (joblink.Decision, joblink.FetchOutcome, error)
}

// Server wires HTTP handlers to the scheduler and stores.
type Server struct {
	router   chi.Router
	pipeline Pipeline
	resolver Resolver
	queues   queue.Store
	rows     records.Store
	log      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(pipeline Pipeline, resolver Resolver, queues queue.Store, rows records.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline: pipeline,
		resolver: resolver,
		queues:   queues,
		rows:     rows,
		log:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/links", func(r chi.Router) {
			r.Post("/", s.submitLink)
			r.Route("/{owner}/{row}", func(r chi.Router) {
				r.Get("/", s.getRecord)
				r.Post("/notes", s.submitNotes)
			})
		})
		r.Post("/resolve", s.resolveNow)
		r.Post("/drain", s.drainAll)
		r.Post("/drain/{queue}", s.drainQueue)
		r.Get("/queues", s.queueDepths)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.queues.Depth(r.Context(), queue.Parse); err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitLinkRequest struct {
	OwnerKey string `json:"owner_key"`
	RowID    string `json:"row_id"`
	URL      string `json:"url"`
}

func (s *Server) submitLink(w http.ResponseWriter, r *http.Request) {
	var req submitLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.OwnerKey == "" || req.RowID == "" {
		writeError(w, http.StatusBadRequest, "owner_key and row_id required")
		return
	}
	if !strings.HasPrefix(req.URL, "http") {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	added, err := s.pipeline.EnqueueParse(r.Context(), records.Key{Owner: req.OwnerKey, Row: req.RowID}, req.URL)
	if err != nil {
		writeError(w, enqueueStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": added})
}

func (s *Server) submitNotes(w http.ResponseWriter, r *http.Request) {
	key := records.Key{Owner: chi.URLParam(r, "owner"), Row: chi.URLParam(r, "row")}
	added, err := s.pipeline.EnqueueNotes(r.Context(), key)
	if err != nil {
		writeError(w, enqueueStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": added})
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	key := records.Key{Owner: chi.URLParam(r, "owner"), Row: chi.URLParam(r, "row")}
	fields := map[string]string{}
	for _, name := range []string{
		records.FieldLink, records.FieldCanonical, records.FieldCompany,
		records.FieldRole, records.FieldStatus, records.FieldSource,
		records.FieldInvite, records.FieldFollowup,
	} {
		val, err := s.rows.Field(r.Context(), key, name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load record")
			return
		}
		if val != "" {
			fields[name] = val
		}
	}
	if len(fields) == 0 {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner_key": key.Owner,
		"row_id":    key.Row,
		"fields":    fields,
	})
}

type resolveRequest struct {
	URL string `json:"url"`
}

func (s *Server) resolveNow(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	decision, outcome, err := s.resolver.Process(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       req.URL,
		"canonical": decision.CanonicalURL,
		"company":   decision.Company,
		"role":      decision.Role,
		"conf":      decision.Confidence,
		"signals":   decision.Signals(),
		"provider":  outcome.Provider,
	})
}

func (s *Server) drainAll(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.DrainAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "drained"})
}

func (s *Server) drainQueue(w http.ResponseWriter, r *http.Request) {
	name := queue.Name(chi.URLParam(r, "queue"))
	if name != queue.Parse && name != queue.Notes {
		writeError(w, http.StatusNotFound, "unknown queue")
		return
	}
	worked, err := s.pipeline.DrainBatch(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": string(name), "worked": worked})
}

func (s *Server) queueDepths(w http.ResponseWriter, r *http.Request) {
	depths := map[string]int{}
	for _, name := range []queue.Name{queue.Parse, queue.Notes} {
		depth, err := s.queues.Depth(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read queue depth")
			return
		}
		depths[string(name)] = depth
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": depths})
}

func enqueueStatus(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
