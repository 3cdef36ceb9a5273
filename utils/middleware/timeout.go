package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/docuquery/docuquery/utils/response"
)

// WithTimeout attaches a deadline to the request's user context. Handlers
// propagate it into store and provider calls; when the deadline fires the
// request is answered with 408. Streaming routes are exempt since SSE
// connections intentionally outlive the request window.
func WithTimeout(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasSuffix(c.Path(), "/stream") {
			return c.Next()
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)

		err := c.Next()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return response.RequestTimeout(c)
		}
		return err
	}
}
