// Package api serves the read-only HTTP API over the ledger store.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/storage"
)

// LedgerReader is the query side of the ledger store
type LedgerReader interface {
	GetToken(ctx context.Context, address string) (*models.Token, error)
	ListTokens(ctx context.Context, page storage.Page) ([]*models.Token, error)
	ListTransfers(ctx context.Context, token string, page storage.Page) ([]*models.TransferEvent, error)
	ListHolders(ctx context.Context, token string, page storage.Page) ([]*models.AccountBalance, error)
	ListAccountBalances(ctx context.Context, account string) ([]*models.AccountBalance, error)
	ListPurchases(ctx context.Context, token string, page storage.Page) ([]*models.PurchaseHistory, error)
	ListFundraising(ctx context.Context, page storage.Page) ([]*models.FundraisingEvent, error)
}

// VolumeReader serves daily transfer volume
type VolumeReader interface {
	DailyVolume(ctx context.Context, token string, since time.Time) ([]storage.VolumePoint, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	ledger     LedgerReader
	volume     VolumeReader
	checks     map[string]HealthCheck
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    float64 // Requests per second per client
	RateLimitBurst  int
}

// ServerDeps are the backends a server reads from. Volume and Checks are optional.
type ServerDeps struct {
	Ledger LedgerReader
	Volume VolumeReader
	Checks map[string]HealthCheck
	Logger *logging.Logger
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	s := &Server{
		router: mux.NewRouter(),
		ledger: deps.Ledger,
		volume: deps.Volume,
		checks: deps.Checks,
		logger: logger,
		config: config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// Order matters: request ids first so every later log line carries one
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/tokens/{address}", s.handleGetToken).Methods("GET")
	api.HandleFunc("/tokens/{address}/transfers", s.handleListTransfers).Methods("GET")
	api.HandleFunc("/tokens/{address}/holders", s.handleListHolders).Methods("GET")
	api.HandleFunc("/tokens/{address}/purchases", s.handleListPurchases).Methods("GET")
	api.HandleFunc("/tokens/{address}/volume", s.handleGetVolume).Methods("GET")

	api.HandleFunc("/accounts/{address}/balances", s.handleAccountBalances).Methods("GET")

	api.HandleFunc("/fundraising", s.handleListFundraising).Methods("GET")
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			s.logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":       overall,
		"service":      "token-ledger",
		"dependencies": deps,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
