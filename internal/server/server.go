package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/leadline-ai/switchboard/internal/auth"
	"github.com/leadline-ai/switchboard/internal/config"
	"github.com/leadline-ai/switchboard/internal/crm"
	"github.com/leadline-ai/switchboard/internal/engine"
	"github.com/leadline-ai/switchboard/internal/storage"
)

// Server is the switchboard HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies for creating a Server.
type ServerConfig struct {
	Engine  *engine.Engine
	Store   storage.Store
	CRM     crm.Client
	JWTMgr  *auth.JWTManager
	Logger  *slog.Logger
	Cfg     config.Config
	Version string

	// OpenAPISpec is the embedded OpenAPI YAML. Optional; the spec
	// endpoint returns 404 when empty.
	OpenAPISpec []byte

	// Middlewares are applied outermost, in registration order.
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) (*Server, error) {
	h, err := NewHandlers(HandlersDeps{
		Engine:      cfg.Engine,
		Store:       cfg.Store,
		CRM:         cfg.CRM,
		JWTMgr:      cfg.JWTMgr,
		Logger:      cfg.Logger,
		Cfg:         cfg.Cfg,
		Version:     cfg.Version,
		OpenAPISpec: cfg.OpenAPISpec,
	})
	if err != nil {
		return nil, fmt.Errorf("server: build handlers: %w", err)
	}

	mux := http.NewServeMux()

	// Token exchange (no JWT required).
	mux.HandleFunc("POST /auth/token", h.HandleAuthToken)

	// Webhook ingress (HMAC-signed, no JWT).
	mux.HandleFunc("POST /v1/events", h.HandleInboundEvent)

	// Operator read endpoints (reader+).
	readRole := requireRole(auth.RoleReader, auth.RoleAdmin)
	mux.Handle("GET /v1/contacts/{contact_id}/state", readRole(http.HandlerFunc(h.HandleContactState)))
	mux.Handle("GET /v1/contacts/{contact_id}/history", readRole(http.HandlerFunc(h.HandleContactHistory)))

	// Operator mutations (admin only).
	adminOnly := requireRole(auth.RoleAdmin)
	mux.Handle("POST /v1/contacts/{contact_id}/reactivate", adminOnly(http.HandlerFunc(h.HandleReactivateContact)))

	// Health and API spec (no auth).
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	// Caller-supplied middlewares wrap everything, first registered outermost.
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.Cfg.ReadTimeout,
			WriteTimeout: cfg.Cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}, nil
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
