/*
Package server exposes the bot's HTTP surface: the health check and the two
inbound webhooks the chat platform delivers events to. Webhook handlers
acknowledge quickly and hand the event to a worker pool; per-request
serialization is the approval core's job.
*/
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fineflow/internal/approval"
)

// Config configures the HTTP server.
type Config struct {
	Port int
	// WebhookToken is the shared secret inbound hooks must present.
	WebhookToken string
	// BotUser is the bot's own handle; its messages are ignored to avoid
	// feedback loops.
	BotUser string
	// Workers is the size of the event worker pool (default 8).
	Workers int
}

// Server is the bot's HTTP server. Service may be nil when chat credentials
// are missing at startup; the server then answers health checks and reports
// itself degraded, per the startup policy of keeping the process alive for
// diagnosis.
type Server struct {
	echo       *echo.Echo
	cfg        Config
	svc        *approval.Service
	dispatcher *Dispatcher
}

// NewServer creates the API server.
func NewServer(cfg Config, svc *approval.Service) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())

	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}

	s := &Server{
		echo:       e,
		cfg:        cfg,
		svc:        svc,
		dispatcher: NewDispatcher(workers, 256),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all endpoints
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.health)
	s.echo.POST("/hooks/message", s.messageHook)
	s.echo.POST("/hooks/action", s.actionHook)
}

func (s *Server) health(c echo.Context) error {
	status := "healthy"
	body := map[string]any{"status": status}

	if s.svc == nil {
		body["status"] = "degraded"
		body["detail"] = "chat transport not configured"
	} else {
		body["requests"] = s.svc.Registry().Len()
		body["pending_replies"] = s.svc.PendingReplies()
	}
	return c.JSON(http.StatusOK, body)
}

// Start begins serving. It blocks until Shutdown is called.
func (s *Server) Start() error {
	s.dispatcher.Start()
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	log.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown closes the listener first so no handler is still enqueuing, then
// drains the worker pool.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if derr := s.dispatcher.Stop(ctx); derr != nil {
		log.Error().Err(derr).Msg("worker pool did not drain in time")
	}
	return err
}
