package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// APIServer wraps the Fiber engine with its listen address
type APIServer struct {
	app           *fiber.App
	listenAddress string
}

// NewAPIServer creates the server with body-size and read-timeout limits
// enforced at the engine level.
func NewAPIServer(listenAddress string, bodyLimit int, readTimeout time.Duration) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			BodyLimit:             bodyLimit,
			ReadTimeout:           readTimeout,
			DisableStartupMessage: true,
		}),
		listenAddress: listenAddress,
	}
}

// GetEngine returns the underlying Fiber app
func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

// Run starts serving
func (s *APIServer) Run() error {
	slog.Info("starting API server", "addr", s.listenAddress)
	return s.app.Listen(s.listenAddress)
}

// Shutdown drains connections and stops the server
func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}
