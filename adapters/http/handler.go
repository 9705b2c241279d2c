// Package http provides the HTTP surface of the query engine and the
// upstream client used by the api plugin.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/schemaql/adapters/metrics"
	"github.com/artpar/schemaql/app"
	"github.com/artpar/schemaql/domain/query"
	"github.com/artpar/schemaql/domain/schema"
	"github.com/artpar/schemaql/pkg/jsonapi"
	"github.com/artpar/schemaql/ports"
)

const maxRequestBody = 10 << 20

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// HandlerConfig holds the services behind the HTTP surface.
type HandlerConfig struct {
	Queries *app.QueryService
	Cache   ports.ResultCache
	Schemas ports.SchemaStore
	Plugins *app.PluginRegistry
	Merger  *app.SchemaMerger
	Logger  zerolog.Logger
}

// Handler serves queries and the debug endpoints.
type Handler struct {
	queries *app.QueryService
	cache   ports.ResultCache
	schemas ports.SchemaStore
	plugins *app.PluginRegistry
	merger  *app.SchemaMerger
	logger  zerolog.Logger
}

// NewHandler creates a handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		queries: cfg.Queries,
		cache:   cfg.Cache,
		schemas: cfg.Schemas,
		plugins: cfg.Plugins,
		merger:  cfg.Merger,
		logger:  cfg.Logger.With().Str("service", "http").Logger(),
	}
}

// Query answers POST /api/query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var batch query.Batch
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&batch); err != nil {
		jsonapi.WriteBadRequest(w, "invalid query document: "+err.Error())
		return
	}
	if len(batch.Queries) == 0 {
		jsonapi.WriteError(w, jsonapi.ErrBadRequest("queries must not be empty").WithPointer("/queries"))
		return
	}

	resp, err := h.queries.ProcessBatch(r.Context(), batch)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// -----------------------------------------------------------------------------
// Debug: introspection
// -----------------------------------------------------------------------------

// FieldSummary describes one field in the introspection document.
type FieldSummary struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Cacheable bool   `json:"cacheable"`
}

// NamespaceSummary describes one namespace.
type NamespaceSummary struct {
	Namespace  string         `json:"namespace"`
	Cacheable  bool           `json:"cacheable"`
	PrimaryKey []string       `json:"primaryKey"`
	Fields     []FieldSummary `json:"fields"`
}

// SchemaSummary describes one schema. Error is set when it failed to load.
type SchemaSummary struct {
	SchemaName     string             `json:"schemaName"`
	DataSourceType string             `json:"dataSourceType,omitempty"`
	Namespaces     []NamespaceSummary `json:"namespaces,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Introspection is the GET /debug/introspect document.
type Introspection struct {
	Schemas []SchemaSummary  `json:"schemas"`
	Plugins []app.PluginInfo `json:"plugins"`
}

// Introspect summarizes every known schema and the registered plugins.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	names, err := h.schemas.Names()
	if err != nil {
		jsonapi.WriteError(w, jsonapi.ErrInternal(err.Error()))
		return
	}

	out := Introspection{Schemas: make([]SchemaSummary, 0, len(names)), Plugins: h.plugins.List()}
	for _, name := range names {
		sc, ok := h.schemas.GetCached(name)
		if !ok {
			sc, err = h.schemas.Load(r.Context(), name)
			if err != nil {
				out.Schemas = append(out.Schemas, SchemaSummary{SchemaName: name, Error: err.Error()})
				continue
			}
		}
		out.Schemas = append(out.Schemas, summarize(sc))
	}
	writeJSON(w, http.StatusOK, out)
}

func summarize(sc *schema.Schema) SchemaSummary {
	s := SchemaSummary{SchemaName: sc.Name, DataSourceType: sc.Source.Type}
	for _, ns := range sc.Namespaces {
		n := NamespaceSummary{
			Namespace:  ns.Name,
			Cacheable:  ns.Cacheable,
			PrimaryKey: ns.PrimaryKey,
			Fields:     make([]FieldSummary, 0, len(ns.Fields)),
		}
		for _, f := range ns.Fields {
			n.Fields = append(n.Fields, FieldSummary{Name: f.Name, Type: f.Type, Cacheable: ns.Cacheable})
		}
		s.Namespaces = append(s.Namespaces, n)
	}
	return s
}

// -----------------------------------------------------------------------------
// Debug: cache
// -----------------------------------------------------------------------------

// CacheKeys lists every cache key, expired entries included.
func (h *Handler) CacheKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.AllKeys())
}

// CacheEntries returns the live cache entries.
func (h *Handler) CacheEntries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.AllEntries())
}

// CacheEvict drops one cache entry.
func (h *Handler) CacheEvict(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	h.cache.Evict(key)
	h.logger.Info().Str("key", key).Msg("cache entry evicted")
	w.WriteHeader(http.StatusNoContent)
}

// CacheClear drops every cache entry.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	h.logger.Info().Msg("cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Debug: schemas
// -----------------------------------------------------------------------------

// SchemaCacheClear drops every cached schema.
func (h *Handler) SchemaCacheClear(w http.ResponseWriter, r *http.Request) {
	h.schemas.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// MergeRequest is the POST /debug/schemas/merge body.
type MergeRequest struct {
	Name       string            `json:"name"`
	Components []string          `json:"components"`
	Renames    map[string]string `json:"renames,omitempty"`
}

// SchemaMerge merges schemas and registers the result under its name.
func (h *Handler) SchemaMerge(w http.ResponseWriter, r *http.Request) {
	var req MergeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		jsonapi.WriteBadRequest(w, "invalid merge request: "+err.Error())
		return
	}
	if req.Name == "" {
		jsonapi.WriteError(w, jsonapi.ErrBadRequest("name is required").WithPointer("/name"))
		return
	}

	merged, err := h.merger.Merge(r.Context(), req.Name, req.Components, req.Renames)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	h.schemas.Register(merged)
	writeJSON(w, http.StatusCreated, merged)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// StatusFor maps a query error code to an HTTP status.
func StatusFor(code query.Code) int {
	switch code {
	case query.CodeSchemaNotFound, query.CodeNamespaceNotFound:
		return http.StatusNotFound
	case query.CodeInvalidView, query.CodeInvalidSchema, query.CodeNoPlugin:
		return http.StatusUnprocessableEntity
	case query.CodeUpstream:
		return http.StatusBadGateway
	case query.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeQueryError(w http.ResponseWriter, err error) {
	code := query.CodeOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		code = query.CodeUpstream
	}
	status := StatusFor(code)

	if status >= 500 {
		h.logger.Error().Err(err).Str("code", string(code)).Msg("query failed")
	}

	jsonapi.WriteError(w, jsonapi.NewError(status, string(code), err.Error()))
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// -----------------------------------------------------------------------------
// Health and version
// -----------------------------------------------------------------------------

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	backend ports.HealthChecker
}

// NewHealthHandler creates a new health handler. backend may be nil.
func NewHealthHandler(backend ports.HealthChecker) *HealthHandler {
	return &HealthHandler{backend: backend}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness checks that the default database connection answers.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.backend != nil {
		if err := h.backend.HealthCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version returns a handler reporting the service version.
func Version(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "schemaql"})
	}
}

// -----------------------------------------------------------------------------
// Router
// -----------------------------------------------------------------------------

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Version        string
	RequestTimeout time.Duration
	Metrics        *metrics.Collector

	// MetricsHandler serves MetricsPath; defaults to promhttp.Handler when
	// Metrics is set.
	MetricsHandler http.Handler
	MetricsPath    string // default /metrics

	// AdminTokenHash guards /debug. Empty leaves /debug open.
	AdminTokenHash []byte
	Hasher         ports.TokenHasher
}

// NewRouter builds the HTTP router.
func NewRouter(h *Handler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics, metricsPath))
	}

	// Health endpoints (no auth required)
	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsHandler != nil {
		r.Handle(metricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	r.Get("/version", Version(version))

	r.Post("/api/query", h.Query)

	r.Route("/debug", func(r chi.Router) {
		if len(cfg.AdminTokenHash) > 0 && cfg.Hasher != nil {
			r.Use(NewAdminAuthMiddleware(cfg.Hasher, cfg.AdminTokenHash))
		}

		r.Get("/introspect", h.Introspect)

		r.Get("/cache/keys", h.CacheKeys)
		r.Get("/cache/entries", h.CacheEntries)
		r.Delete("/cache/evict/{key}", h.CacheEvict)
		r.Delete("/cache/clear", h.CacheClear)

		r.Delete("/schemas/cache", h.SchemaCacheClear)
		r.Post("/schemas/merge", h.SchemaMerge)
	})

	return r
}

// NewAdminAuthMiddleware accepts requests carrying a token matching hash,
// as "Authorization: Bearer <token>" or "X-Admin-Token: <token>".
func NewAdminAuthMiddleware(hasher ports.TokenHasher, hash []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if auth := r.Header.Get("Authorization"); token == "" && strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}

			if token == "" || !hasher.Compare(hash, token) {
				jsonapi.WriteUnauthorized(w, "valid admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip metrics for internal endpoints
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == metricsPath {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			status := metrics.StatusLabel(ww.Status())

			m.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			m.RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

// NewLoggingMiddleware creates a new logging middleware.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			// Skip logging for health checks and metrics
			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == metricsPath {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
