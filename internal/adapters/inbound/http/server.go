// Package http serves the dashboard to the browser: health probes, the JSON
// API and a WebSocket snapshot stream.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/archon-research/stl-lend/internal/ports/inbound"
)

// ServerConfig holds configuration for the HTTP server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":8080")
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// StreamInterval is the longest gap between two stream messages.
	StreamInterval time.Duration

	// AllowedOrigins lists browser origins accepted by the stream. Empty
	// accepts same-origin requests only.
	AllowedOrigins []string

	Logger *slog.Logger
}

// ServerConfigDefaults returns a config with default values.
func ServerConfigDefaults() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   15 * time.Second,
		StreamInterval: 2 * time.Second,
		Logger:         slog.Default(),
	}
}

// Server is the dashboard HTTP server.
type Server struct {
	server       *http.Server
	service      inbound.DashboardService
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	config       ServerConfig
	logger       *slog.Logger
}

// NewServer creates the server. shuttingDown turns every health check to 503 once set.
func NewServer(config ServerConfig, service inbound.DashboardService, checker inbound.HealthChecker, shuttingDown *atomic.Bool) *Server {
	defaults := ServerConfigDefaults()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.StreamInterval == 0 {
		config.StreamInterval = defaults.StreamInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if shuttingDown == nil {
		shuttingDown = new(atomic.Bool)
	}

	s := &Server{
		service:      service,
		checker:      checker,
		shuttingDown: shuttingDown,
		config:       config,
		logger:       config.Logger.With("component", "http-server"),
	}

	mux := http.NewServeMux()
	s.registerHealthRoutes(mux)
	s.registerAPIRoutes(mux)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins listening. It does not block.
func (s *Server) Start() {
	go func() {
		s.logger.Info("starting http server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
