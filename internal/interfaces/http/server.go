// Package http provides the HTTP adapter over the workflow, policy,
// template, version and audit services. It is a thin translation layer;
// all business rules live in the services.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/policy-approval/internal/policy"
	"github.com/garyjia/policy-approval/internal/port"
	"github.com/garyjia/policy-approval/internal/template"
	"github.com/garyjia/policy-approval/internal/version"
	"github.com/garyjia/policy-approval/internal/workflow"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Services bundles everything the handlers call
type Services struct {
	Policies  *policy.Service
	Templates *template.Store
	Engine    *workflow.Engine
	Versions  *version.Facade
	Audit     port.AuditRepository
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     *zap.Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()
	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware logs every request with latency and status
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.String("latency", time.Since(start).String()),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.services, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api")
	{
		// Policies and content
		api.POST("/policies", handlers.CreatePolicy)
		api.GET("/policies", handlers.ListPolicies)
		api.GET("/policies/:id", handlers.GetPolicy)
		api.PUT("/policies/:id/content", handlers.ReplacePolicyContent)

		// Approval templates
		api.POST("/templates", handlers.CreateTemplate)
		api.GET("/templates", handlers.ListTemplates)
		api.GET("/templates/:id", handlers.GetTemplate)
		api.DELETE("/templates/:id", handlers.DeactivateTemplate)

		// Workflow
		api.POST("/policies/:id/submit", handlers.SubmitPolicy)
		api.GET("/policies/:id/workflow", handlers.GetPolicyWorkflowStatus)
		api.POST("/workflows/:id/approve", handlers.ApproveWorkflow)
		api.POST("/workflows/:id/reject", handlers.RejectWorkflow)
		api.GET("/workflows/:id", handlers.GetWorkflowStatus)
		api.GET("/workflows", handlers.ListWorkflowQueue)

		// Versioning
		api.POST("/policies/:id/versions", handlers.CreateSnapshot)
		api.GET("/policies/:id/versions", handlers.ListVersions)
		api.GET("/policies/:id/versions/compare", handlers.CompareVersions)
		api.GET("/policies/:id/versions/:number", handlers.GetVersionDetail)
		api.POST("/policies/:id/versions/:number/lock", handlers.LockVersion)
		api.POST("/policies/:id/rollback", handlers.RollbackPolicy)

		// Audit trail
		api.GET("/audit", handlers.ListAuditRecords)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
