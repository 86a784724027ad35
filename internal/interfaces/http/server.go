// Package http exposes the imprest services over a JSON API.
// Handlers translate requests to service calls and domain errors to status codes.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/application/service"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit is the sustained requests per second allowed per client; zero disables limiting
	RateLimit float64
	RateBurst int

	// MaxUploadMemory bounds the multipart form held in memory before spilling to disk
	MaxUploadMemory int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		RateLimit:       10,
		RateBurst:       20,
		MaxUploadMemory: 8 << 20,
	}
}

// Dependencies are the collaborators the handlers call into
type Dependencies struct {
	Imprests service.ImprestService
	Stats    service.StatsService
	Tokens   TokenVerifier
	// Receipts serves staged receipt files; nil disables the route
	Receipts ReceiptFiles
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     *zap.Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if config.MaxUploadMemory > 0 {
		router.MaxMultipartMemory = config.MaxUploadMemory
	}

	server := &Server{
		config: config,
		router: router,
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(recoveryMiddleware(s.logger))
	s.router.Use(loggingMiddleware(s.logger))
	if s.config.RateLimit > 0 {
		s.router.Use(rateLimitMiddleware(newClientLimiter(s.config.RateLimit, s.config.RateBurst)))
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps.Imprests, s.deps.Stats, s.deps.Receipts, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1")
	api.Use(authMiddleware(s.deps.Tokens))
	{
		api.POST("/imprests", h.CreateImprest)
		api.GET("/imprests", h.ListImprests)
		api.GET("/imprests/mine", h.ListMyImprests)
		api.GET("/imprests/stats", h.GetStats)
		api.GET("/imprests/export", h.ExportRegister)
		api.GET("/imprests/:id", h.GetImprest)
		api.GET("/imprests/:id/history", h.GetHistory)

		api.POST("/imprests/:id/approve/hod", h.ApproveHOD)
		api.POST("/imprests/:id/approve/accountant", h.ApproveAccountant)
		api.POST("/imprests/:id/reject", h.Reject)
		api.POST("/imprests/:id/disburse", h.Disburse)
		api.POST("/imprests/:id/acknowledge", h.Acknowledge)
		api.POST("/imprests/:id/accounting", h.SubmitAccounting)
		api.POST("/imprests/:id/accounting/verify", h.VerifyAccounting)
		api.POST("/imprests/:id/dispute/resolve", h.ResolveDispute)

		if s.deps.Receipts != nil {
			api.GET("/receipts/:id/:file", h.GetReceiptFile)
		}
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
