// Package httpapi is the public HTTP facade: REST endpoints for the tiered
// analyst agent, RAG search and Q&A, cache and source administration, and
// an SSE stream of agent progress events.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"neoquery/internal/agent"
	"neoquery/internal/cache/response"
	"neoquery/internal/config"
	"neoquery/internal/docindex"
	"neoquery/internal/provider"
	"neoquery/internal/rag"
	"neoquery/internal/router"
	"neoquery/internal/semantic"
	"neoquery/internal/sqlclient"
	"neoquery/internal/telemetry"
)

// Deps carries the wired core services. Index, Indexer, Models and Cache
// may be nil when their feature is disabled; the affected routes answer
// 503 instead of panicking.
type Deps struct {
	Config    *config.Config
	DB        *sqlclient.Client
	Semantic  *semantic.Service
	Router    *router.Router
	Agent     *agent.Agent
	Cache     *response.Service
	Index     *docindex.Service
	Indexer   *docindex.Indexer
	RAG       *rag.Service
	Models    *provider.ModelCatalog
	Telemetry *telemetry.Telemetry
}

// Server is the HTTP API server.
type Server struct {
	deps   Deps
	cfg    *config.Config
	logger telemetry.Logger
	mux    *http.ServeMux
}

// NewServer builds the server and registers every route.
func NewServer(deps Deps) *Server {
	logger := telemetry.NopLogger()
	if deps.Telemetry != nil {
		logger = deps.Telemetry.Logger.With("component", "httpapi")
	}
	s := &Server{
		deps:   deps,
		cfg:    deps.Config,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// RAG document search and Q&A.
	s.mux.HandleFunc("GET /api/rag-search", s.handleRAGSearch)
	s.mux.HandleFunc("GET /api/rag-stats", s.handleRAGStats)
	s.mux.HandleFunc("POST /api/rag-ask", s.handleRAGAsk)
	s.mux.HandleFunc("POST /api/rag-index", s.withAuth(s.handleRAGIndex))

	// The analyst agent.
	s.mux.HandleFunc("POST /api/neo-analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/neo-analyze/stream", s.handleAnalyzeStream)

	// Introspection and administration.
	s.mux.HandleFunc("GET /api/neo-db-stats", s.handleDBStats)
	s.mux.HandleFunc("GET /api/neo-query", s.handleQuery)
	s.mux.HandleFunc("GET /api/neo-route", s.handleDebugRoute)
	s.mux.HandleFunc("GET /api/neo-cache-stats", s.handleCacheStats)
	s.mux.HandleFunc("POST /api/neo-cache-clear", s.withAuth(s.handleCacheClear))
	s.mux.HandleFunc("GET /api/neo-recent-changes", s.handleRecentChanges)
	s.mux.HandleFunc("GET /api/neo-models", s.handleModels)

	if s.deps.Telemetry != nil && s.cfg.Telemetry.MetricsEnabled {
		s.mux.Handle("GET "+s.cfg.Telemetry.MetricsPath, s.deps.Telemetry.MetricsHandler())
	}
}

// Handler returns the full middleware chain around the route mux.
func (s *Server) Handler() http.Handler {
	return s.withRecovery(s.withCORS(s.withLogging(s.mux)))
}

// Start serves until ctx is cancelled, then drains with a 10s budget.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.cfg.Server.BindAddress, s.cfg.Server.HTTPPort),
		Handler:     s.Handler(),
		ReadTimeout: s.cfg.Server.ReadTimeout,
		IdleTimeout: s.cfg.Server.IdleTimeout,
		// WriteTimeout stays zero: the SSE stream holds its response open
		// for the whole agent run.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, detail string) {
	body := map[string]any{"error": message}
	if detail != "" {
		body["detail"] = detail
	}
	s.writeJSON(w, status, body)
}

// decodeBody reads a JSON request body under the configured size cap.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	maxBytes := s.cfg.Server.MaxRequestSize
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return false
	}
	return true
}
