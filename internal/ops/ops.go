// Package ops provides the optional operational HTTP surface for the daemon:
// health, status, tool listing, metrics, and an SSE feed of bus events.
package ops

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/toolgate/toolgate/internal/catalog"
)

// Config holds the ops server settings.
type Config struct {
	Host       string
	Port       int
	EnableCORS bool
}

// Sources supplies the live daemon state the handlers report. Any field may
// be nil; the corresponding endpoint then renders an empty value.
type Sources struct {
	Status  func() any
	Tools   func() []catalog.Tool
	Metrics func() map[string]uint64
}

// Server is the ops HTTP server.
type Server struct {
	config  *Config
	sources Sources
	router  *chi.Mux
	httpSrv *http.Server
}

// New creates a new ops Server instance.
func New(cfg *Config, sources Sources) *Server {
	s := &Server{
		config:  cfg,
		sources: sources,
		router:  chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Logging
	s.router.Use(middleware.Logger)

	// Recover from panics
	s.router.Use(middleware.Recoverer)

	// Real IP
	s.router.Use(middleware.RealIP)

	// CORS
	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// setupRoutes configures all ops routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/healthz", s.health)
	r.Get("/status", s.getStatus)

	r.Route("/tools", func(r chi.Router) {
		r.Get("/", s.listTools)
		r.Get("/{name}", s.getTool)
	})

	r.Get("/metrics", s.getMetrics)

	// Event streaming (SSE)
	r.Get("/events", s.events)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	if s.sources.Status == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.sources.Status())
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	var tools []catalog.Tool
	if s.sources.Tools != nil {
		tools = s.sources.Tools()
	}
	if tools == nil {
		tools = []catalog.Tool{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) getTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.sources.Tools != nil {
		for _, t := range s.sources.Tools() {
			if t.Name == name {
				writeJSON(w, http.StatusOK, t)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown tool: %s", name))
}

func (s *Server) getMetrics(w http.ResponseWriter, r *http.Request) {
	if s.sources.Metrics == nil {
		writeJSON(w, http.StatusOK, map[string]uint64{})
		return
	}
	writeJSON(w, http.StatusOK, s.sources.Metrics())
}

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler: s.router,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
