package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/annoscope/internal/classify"
	"github.com/dgallion1/annoscope/internal/config"
	"github.com/dgallion1/annoscope/internal/pipeline"
	"github.com/dgallion1/annoscope/internal/scopestore"
)

// Server is the HTTP API server for annoscope.
type Server struct {
	router   chi.Router
	registry *pipeline.Registry
	scopes   scopestore.Store
	stats    *classify.LLMStats
	metrics  http.Handler
	log      *slog.Logger
	cfg      config.Config
}

// Deps are the collaborators a Server routes to. Stats and Metrics are
// optional.
type Deps struct {
	Registry *pipeline.Registry
	Scopes   scopestore.Store
	Stats    *classify.LLMStats
	Metrics  http.Handler
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		registry: deps.Registry,
		scopes:   deps.Scopes,
		stats:    deps.Stats,
		metrics:  deps.Metrics,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.AnnoscopeAPIKey, s.log))

		r.Get("/api/stats/llm", s.handleLLMStats)

		r.Post("/api/sessions", s.handleCreateSession)
		r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/document", s.handleUpload)

			r.Get("/orchestration", s.handleOrchestration)
			r.Get("/classification", s.handleClassification)
			r.Get("/positions", s.handlePositions)
			r.Delete("/cache", s.handleInvalidate)

			r.Post("/coverage", s.handleCoverage)
			r.Post("/match", s.handleMatch)

			r.Get("/scope", s.handleGetScope)
			r.Put("/scope", s.handlePutScope)
			r.Post("/scope/ranges", s.handleAddRange)
			r.Delete("/scope/ranges/{rangeID}", s.handleDeleteRange)

			r.Post("/bundle", s.handleBundle)
			r.Post("/refresh", s.handleRefresh)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
