// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/internal/audit"
	"github.com/xkilldash9x/graphedit/internal/auth"
	"github.com/xkilldash9x/graphedit/internal/bulk"
	"github.com/xkilldash9x/graphedit/internal/config"
	"github.com/xkilldash9x/graphedit/internal/metrics"
	"github.com/xkilldash9x/graphedit/internal/proposals"
	"github.com/xkilldash9x/graphedit/internal/query"
	"github.com/xkilldash9x/graphedit/internal/records"
	"github.com/xkilldash9x/graphedit/internal/views"
)

// Deps are the services the HTTP surface routes to. Explorer and Loader
// still work without a graph store; their operations answer 503.
type Deps struct {
	Records   records.Store
	Proposals *proposals.Service
	Ledger    *audit.Ledger
	Views     *views.Service
	Explorer  *query.Explorer
	Loader    *bulk.Loader
	Users     *auth.Users
	Resolver  *auth.Resolver
	Metrics   *metrics.Metrics
}

// Server hosts the REST API.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	writes *limiterSet
	log    *zap.Logger
	router chi.Router
}

// New wires the router. Nothing listens until Run is called.
func New(cfg config.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	if cfg.WriteRate <= 0 {
		cfg.WriteRate = 5
	}
	if cfg.WriteBurst <= 0 {
		cfg.WriteBurst = 10
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		writes: newLimiterSet(cfg.WriteRate, cfg.WriteBurst),
		log:    logger.Named("server"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Group(func(r chi.Router) {
			r.Use(s.throttle)

			r.Get("/me", s.handleMe)

			r.Get("/proposals", s.handleListProposals)
			r.Post("/proposals", s.handleSubmitProposal)
			r.Get("/proposals/{id}", s.handleGetProposal)
			r.Patch("/proposals/{id}", s.handleReviewProposal)

			r.Post("/admin/direct-edit", s.handleDirectEdit)
			r.Get("/admin/users", s.handleListUsers)
			r.Patch("/admin/users/{id}/role", s.handleSetRole)

			r.Get("/audit", s.handleListAudit)
			r.Post("/audit/squash", s.handleSquash)

			r.Get("/views", s.handleListViews)
			r.Post("/views", s.handleCreateView)
			r.Get("/views/{slug}", s.handleGetView)
			r.Delete("/views/{slug}", s.handleDeleteView)

			r.Post("/graph/query", s.handleQuery)
			r.Get("/graph/search", s.handleSearch)
			r.Get("/graph/stats", s.handleStats)
			r.Get("/graph/node/{id}", s.handleNeighborhood)
			r.Get("/graph/expand", s.handleExpand)
			r.Get("/graph/path", s.handlePath)
			r.Get("/graph/communities", s.handleCommunities)
			r.Get("/graph/community/{id}", s.handleCommunity)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.apiKey, s.throttle)
			r.Post("/admin/bulk-nodes", s.handleBulkNodes)
			r.Post("/admin/bulk-edges", s.handleBulkEdges)
		})
	})
	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests for
// at most the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", zap.String("addr", s.cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("API server failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.log.Info("Shutting down API server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	if s.deps.Records != nil {
		if err := s.deps.Records.Ping(r.Context()); err != nil {
			s.log.Warn("Records store ping failed", zap.Error(err))
			status["status"] = "degraded"
			status["records"] = "unreachable"
		}
	}
	s.writeJSON(w, http.StatusOK, status)
}
