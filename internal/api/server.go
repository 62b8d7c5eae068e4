// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fraud-feature-store/internal/logging"
	"github.com/fraud-feature-store/internal/models"
)

// Service interfaces for dependency injection and testing

// FeatureServiceInterface defines the interface for feature store operations
type FeatureServiceInterface interface {
	IngestTransaction(ctx context.Context, txn *models.Transaction) (*models.FeatureVector, error)
	IngestBatch(ctx context.Context, txns []*models.Transaction) ([]*models.FeatureVector, error)
	GetUserFeatures(ctx context.Context, userID int64) (*models.FeatureVector, error)
}

// DecisionServiceInterface defines the interface for transaction evaluation
type DecisionServiceInterface interface {
	Evaluate(txn *models.Transaction, vector *models.FeatureVector) *models.Decision
}

// Server represents the HTTP API server.
type Server struct {
	router          *mux.Router
	httpServer      *http.Server
	featureService  FeatureServiceInterface
	decisionService DecisionServiceInterface
	config          *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	featureService FeatureServiceInterface,
	decisionService DecisionServiceInterface,
) *Server {
	s := &Server{
		router:          mux.NewRouter(),
		featureService:  featureService,
		decisionService: decisionService,
		config:          config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// Middleware order matters: logging wraps everything, rate limiting
	// runs after CORS so preflights are never throttled.
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
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

	// Transaction endpoints
	api.HandleFunc("/transactions", s.handleIngestTransaction).Methods("POST")
	api.HandleFunc("/transactions/batch", s.handleIngestBatch).Methods("POST")
	api.HandleFunc("/transactions/evaluate", s.handleEvaluateTransaction).Methods("POST")

	// Feature endpoints
	api.HandleFunc("/users/{id}/features", s.handleGetUserFeatures).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "fraud-feature-store",
	})
}

// Router exposes the configured router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
