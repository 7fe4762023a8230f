package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joescharf/issuetracker/internal/issues"
)

// maxBodyBytes caps request bodies read by the issue handlers.
const maxBodyBytes = 1 << 20

// Server provides the REST API handlers.
type Server struct {
	issues   *issues.Service
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics
}

// NewServer creates a new API server. A nil logger uses slog.Default().
func NewServer(svc *issues.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	return &Server{
		issues:   svc,
		logger:   logger,
		registry: reg,
		metrics:  newMetrics(reg),
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/issues/{project}", s.searchIssues)
	mux.HandleFunc("POST /api/issues/{project}", s.createIssue)
	mux.HandleFunc("PUT /api/issues/{project}", s.updateIssue)
	mux.HandleFunc("DELETE /api/issues/{project}", s.deleteIssue)

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return corsMiddleware(s.logMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		s.metrics.duration.WithLabelValues(r.Method).Observe(elapsed.Seconds())
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFailure flattens an issues.Error into its wire body.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	body, kind := issues.FailureBody(err)
	s.metrics.observe(op, kind.String())
	writeJSON(w, http.StatusOK, body)
}

// queryFilters keeps the first value of every query parameter.
func queryFilters(q url.Values) map[string]string {
	filters := make(map[string]string, len(q))
	for key, values := range q {
		if len(values) > 0 {
			filters[key] = values[0]
		}
	}
	return filters
}

// decodePayload reads a JSON, multipart or URL-encoded body. Unreadable or
// malformed bodies decode to an empty payload. Form fields keep their first value.
func decodePayload(r *http.Request) issues.Payload {
	p := issues.Payload{}
	if r.Body == nil {
		return p
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return p
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return p
	}

	mediaType, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || (mediaType == "" && body[0] == '{'):
		if err := json.Unmarshal(body, &p); err != nil {
			return issues.Payload{}
		}
		return p
	case mediaType == "multipart/form-data":
		form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(maxBodyBytes)
		if err != nil {
			return p
		}
		defer func() { _ = form.RemoveAll() }()
		return firstValues(p, form.Value)
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return p
	}
	return firstValues(p, values)
}

func firstValues(p issues.Payload, values map[string][]string) issues.Payload {
	for key, v := range values {
		if len(v) > 0 {
			p[key] = v[0]
		}
	}
	return p
}

func (s *Server) searchIssues(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	found, err := s.issues.Search(r.Context(), project, queryFilters(r.URL.Query()))
	if err != nil {
		s.writeFailure(w, "search", err)
		return
	}
	s.metrics.observe("search", outcomeOK)
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	issue, err := s.issues.Create(r.Context(), project, decodePayload(r))
	if err != nil {
		s.writeFailure(w, "create", err)
		return
	}
	s.metrics.observe("create", outcomeOK)
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	id, err := s.issues.Update(r.Context(), project, decodePayload(r))
	if err != nil {
		s.writeFailure(w, "update", err)
		return
	}
	s.metrics.observe("update", outcomeOK)
	writeJSON(w, http.StatusOK, issues.ResultBody{Result: issues.ResultUpdated, ID: id})
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	id, err := s.issues.Delete(r.Context(), project, decodePayload(r))
	if err != nil {
		s.writeFailure(w, "delete", err)
		return
	}
	s.metrics.observe("delete", outcomeOK)
	writeJSON(w, http.StatusOK, issues.ResultBody{Result: issues.ResultDeleted, ID: id})
}
