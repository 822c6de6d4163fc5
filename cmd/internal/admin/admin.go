// Package admin serves the relay's health and backlog over HTTP.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"

	"github.com/velmie/sqloutbox"
)

const (
	backlogTimeout    = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Source is satisfied by *outbox.Relay.
type Source interface {
	Count(ctx context.Context) (int, error)
	Running() bool
}

// Config defines router behavior.
type Config struct {
	Logger      outbox.Logger
	CORSOrigins []string
}

// Option configures the router.
type Option func(*Config)

// WithLogger logs every request.
func WithLogger(logger outbox.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithCORSOrigins allows browser dashboards on origins to call the API.
func WithCORSOrigins(origins []string) Option {
	return func(c *Config) {
		c.CORSOrigins = origins
	}
}

// NewRouter returns the admin routes for src.
func NewRouter(src Source, opts ...Option) http.Handler {
	cfg := Config{Logger: outbox.NopLogger{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Logger))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet},
			MaxAge:         300,
		}))
	}

	h := handlers{src: src}
	router.Get("/healthz", h.health)
	router.Get("/backlog", h.backlog)

	return router
}

// NewServer wraps handler in an http.Server listening on addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

type handlers struct {
	src Source
}

type healthResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

type backlogResponse struct {
	Pending int `json:"pending"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h handlers) health(w http.ResponseWriter, _ *http.Request) {
	if !h.src.Running() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "stopped"})

		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Running: true})
}

func (h handlers) backlog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), backlogTimeout)
	defer cancel()

	pending, err := h.src.Count(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, backlogResponse{Pending: pending})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestLogger(logger outbox.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Debug("admin request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
