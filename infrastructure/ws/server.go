// Package ws serves the live connection channel and the request/response
// fallback surface on one fiber app.
package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Server struct {
	app             *fiber.App
	addr            string
	log             *slog.Logger
	shutdownTimeout time.Duration
}

func NewServer(addr string, log *slog.Logger, handler *Handler, rest *RestHandler,
	shutdownTimeout time.Duration) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	api := app.Group("/api")
	api.Post("/register", rest.Register)
	api.Post("/login", rest.Login)
	api.Get("/messages/:partnerId", rest.RequireAuth, rest.History)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(handler.HandleConnection))

	return &Server{app: app, addr: addr, log: log, shutdownTimeout: shutdownTimeout}
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App { return s.app }

// Run listens until the context is canceled, then shuts down gracefully.
// It satisfies contract.Worker so the supervisor owns its lifecycle.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Listening", "address", s.addr)
		errChan <- s.app.Listen(s.addr)
	}()

	select {
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(s.shutdownTimeout)
	case err := <-errChan:
		return err
	}
}
