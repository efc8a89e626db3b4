package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/echoes/pkg/buffer"
	"github.com/papercomputeco/echoes/pkg/cleanup"
	"github.com/papercomputeco/echoes/pkg/ingest"
	"github.com/papercomputeco/echoes/pkg/lifecycle"
)

// Deps are the components the server exposes.
type Deps struct {
	// Buffer is the message buffer.
	Buffer *buffer.Buffer

	// Machine applies lifecycle transitions.
	Machine *lifecycle.Machine

	// Ingest, when set, receives inbound messages asynchronously. Without
	// it, messages are buffered on the request path.
	Ingest *ingest.Pool

	// Cleaner, when set, serves POST /cleanup.
	Cleaner *cleanup.Cleaner
}

// Server is the API server for the echoes pipeline
type Server struct {
	config Config
	deps   Deps
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server.
func NewServer(config Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Buffer == nil || deps.Machine == nil {
		return nil, errors.New("api server requires a buffer and a lifecycle machine")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		deps:   deps,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/stats", s.handleStats)
	app.Post("/messages", s.handleCreateMessage)
	app.Post("/drain", s.handleDrain)
	app.Get("/triplets", s.handleListTriplets)
	app.Post("/triplets/publish", s.handleBatchPublish)
	app.Get("/triplets/:id", s.handleGetTriplet)
	app.Patch("/triplets/:id", s.handleEditTriplet)
	app.Delete("/triplets/:id", s.handleForgetTriplet)
	app.Post("/triplets/:id/check", s.handleCheckTriplet)
	app.Post("/triplets/:id/publish", s.handlePublishTriplet)
	if deps.Cleaner != nil {
		app.Post("/cleanup", s.handleCleanup)
	}
	mountDebug(app)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
