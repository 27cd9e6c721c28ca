package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cogniweave/pkg/logger"
)

// Server is the API server for talking to the cogniweave pipeline.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config) (*Server, error) {
	if config.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if config.History == nil {
		return nil, errors.New("history store is required")
	}

	// Session ids outlive the request as map keys in the history store, the
	// end gate and the session locks, so they must not alias fasthttp buffers.
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		Immutable:             true,
	})

	s := &Server{
		config: config,
		logger: logger.OrNop(config.Logger),
		app:    app,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Get("/sessions", s.handleListSessions)
	v1.Post("/sessions/:session/invoke", s.handleInvoke)
	v1.Post("/sessions/:session/stream", s.handleStream)
	v1.Get("/sessions/:session/history", s.handleHistory)
	v1.Post("/tags/flush", s.handleFlushTags)

	if config.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(config.Metrics))
	}
	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
