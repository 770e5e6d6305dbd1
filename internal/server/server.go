// Package server provides the HTTP API: auth/onboarding, roles and
// messages, the chat SSE stream, MCP server management, viewer
// attachments, scheduled jobs, and skills. Grounded on the teacher's
// internal/server package — the same chi router + cors + middleware
// stack and Server-struct-holds-every-dependency shape — generalized from
// a single-directory coding-assistant surface to this domain's
// multi-tenant one.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pellucid/hearth/internal/config"
	"github.com/pellucid/hearth/internal/identity"
	"github.com/pellucid/hearth/internal/jobs"
	"github.com/pellucid/hearth/internal/mcpregistry"
	"github.com/pellucid/hearth/internal/memory"
	"github.com/pellucid/hearth/internal/oauthbroker"
	"github.com/pellucid/hearth/internal/rolectx"
	"github.com/pellucid/hearth/internal/skills"
	"github.com/pellucid/hearth/internal/store"
	"github.com/pellucid/hearth/internal/turn"
	"github.com/pellucid/hearth/internal/viewer"
)

// Config holds HTTP transport configuration, distinct from the domain's
// config.Config (data dir, OAuth credentials, provider keys).
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the configuration used when no override is given.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout, SSE streams hold the connection open
	}
}

// Server wires every domain component into chi routes.
type Server struct {
	config    *Config
	appConfig *config.Config
	router    *chi.Mux
	httpSrv   *http.Server

	store      *store.Store
	identity   *identity.Service
	oauth      *oauthbroker.Broker
	mcp        *mcpregistry.Registry
	roles      *rolectx.Resolver
	memory     *memory.Service
	skills     *skills.Service
	turn       *turn.Orchestrator
	jobs       *jobs.Scheduler
	viewer     *viewer.Service
}

// New constructs a Server with every route wired and ready to serve.
func New(
	cfg *Config,
	appConfig *config.Config,
	st *store.Store,
	idSvc *identity.Service,
	broker *oauthbroker.Broker,
	mcpReg *mcpregistry.Registry,
	roles *rolectx.Resolver,
	mem *memory.Service,
	sk *skills.Service,
	orch *turn.Orchestrator,
	sched *jobs.Scheduler,
	view *viewer.Service,
) *Server {
	s := &Server{
		config:    cfg,
		appConfig: appConfig,
		router:    chi.NewRouter(),
		store:     st,
		identity:  idSvc,
		oauth:     broker,
		mcp:       mcpReg,
		roles:     roles,
		memory:    mem,
		skills:    sk,
		turn:      orch,
		jobs:      sched,
		viewer:    view,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Role-ID", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
