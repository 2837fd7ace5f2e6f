// Package api serves the systems HTTP API and each system's MCP endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"hydra/internal/domain"
	"hydra/internal/infra/config"
	"hydra/internal/infra/middleware"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// SystemService is the use-case surface the API exposes.
type SystemService interface {
	Create(ctx context.Context, cfg domain.SystemConfig) (*domain.System, error)
	Get(ctx context.Context, id string) (*domain.System, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]string, error)
	ProcessQuery(ctx context.Context, id, query string) (string, error)
}

// ServerDeps holds injected dependencies for the Server.
type ServerDeps struct {
	Systems SystemService
	// Tools executes MCP tool calls; nil disables the MCP endpoint.
	Tools  domain.ToolExecutor
	Config config.ServerConfig
	Logger *slog.Logger
}

// Server is the systems HTTP API.
type Server struct {
	deps      ServerDeps
	validator *payloadValidator
	mcp       *mcpHandlers

	server    *http.Server
	boundAddr string
	cancel    context.CancelFunc
	mu        sync.Mutex
}

// NewServer creates a Server.
func NewServer(deps ServerDeps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	v, err := newPayloadValidator()
	if err != nil {
		return nil, err
	}
	s := &Server{deps: deps, validator: v}
	if deps.Config.MCPEnabled && deps.Tools != nil {
		s.mcp = newMCPHandlers(deps.Tools)
	}
	return s, nil
}

// Handler returns the routed API without rate limiting.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/systems", s.handleList)
	mux.HandleFunc("POST /api/systems/create", s.handleCreate)
	mux.HandleFunc("GET /api/systems/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/systems/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/systems/{id}/chat", s.handleChat)
	if s.mcp != nil {
		mux.HandleFunc("/api/systems/{id}/mcp", s.handleMCP)
	}
	return middleware.MaxBody(maxBodyBytes)(mux)
}

// Start listens on the configured address and serves until Stop or ctx
// cancellation. It does not block.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	handler := middleware.SecurityHeaders(
		middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: s.deps.Config.RateLimitPerMin,
			BurstSize:      s.deps.Config.Burst,
			TrustedProxies: s.deps.Config.TrustedProxies,
		})(middleware.RequestLogger(s.deps.Logger)(s.Handler())),
	)

	srv := &http.Server{
		Addr:              s.deps.Config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.deps.Config.Addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listen %s: %w", s.deps.Config.Addr, err)
	}

	s.mu.Lock()
	s.server = srv
	s.boundAddr = ln.Addr().String()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		s.deps.Logger.Info("api server started", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.deps.Logger.Error("api server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	cancel()
	return err
}

// BoundAddr returns the listening address. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}
