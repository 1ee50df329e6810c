package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"compliance-rag/app/api"
	"compliance-rag/app/middleware"
	"compliance-rag/config"
)

const bodyLimit = 32 << 20

type Deps struct {
	Config   *config.Config
	Store    api.Counter
	Reviewer api.Reviewer
	Builder  api.IndexBuilder
	// MCP is mounted at /mcp when set.
	MCP http.Handler
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
	app        *fiber.App
}

func NewServer(deps Deps) *Server {
	s := &Server{
		listenAddr: deps.Config.ServerAddr,
		logger:     slog.Default(),
	}

	var (
		app = fiber.New(fiber.Config{
			AppName:               "compliance-rag",
			ErrorHandler:          api.ErrorHandler,
			BodyLimit:             bodyLimit,
			DisableStartupMessage: true,
		})
		checkHandler  = api.NewCheckHandler(deps.Store)
		configHandler = api.NewConfigHandler(deps.Config)
		fileHandler   = api.NewFileHandler(deps.Reviewer)
		indexHandler  = api.NewIndexHandler(deps.Builder)
	)
	app.Use(middleware.RequestLogger(s.logger))

	check := app.Group("/check")
	check.Get("/healthy", checkHandler.HandleHealthy)

	apiv1 := app.Group("/api/v1")
	apiv1.Post("/review", fileHandler.HandleReview)
	apiv1.Get("/download", fileHandler.HandleDownload)
	apiv1.Post("/index/rebuild", indexHandler.HandleRebuild)
	apiv1.Get("/config", configHandler.HandleGetConfig)

	if deps.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(deps.MCP))
	}

	s.app = app
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Run blocks until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.listenAddr)
	return s.app.Listen(s.listenAddr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	s.logger.Info("server stopped")
	return err
}
