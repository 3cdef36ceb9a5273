package response

import (
	"github.com/gofiber/fiber/v2"
)

// ErrorBody is the error payload returned on failures
type ErrorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// OK returns a 200 response with the given payload
func OK(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(data)
}

// Error returns an error response with a sanitized message
func Error(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(ErrorBody{Error: message})
}

// ErrorWithDetail returns an error response with extra detail
func ErrorWithDetail(c *fiber.Ctx, statusCode int, message, detail string) error {
	return c.Status(statusCode).JSON(ErrorBody{Error: message, Detail: detail})
}

// BadRequest returns a 400 Bad Request response
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

// Unauthorized returns a 401 Unauthorized response
func Unauthorized(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Unauthorized access"
	}
	return Error(c, fiber.StatusUnauthorized, message)
}

// NotFound returns a 404 Not Found response
func NotFound(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Resource not found"
	}
	return Error(c, fiber.StatusNotFound, message)
}

// TooManyRequests returns a 429 Too Many Requests response
func TooManyRequests(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Too many requests"
	}
	return Error(c, fiber.StatusTooManyRequests, message)
}

// RequestTimeout returns a 408 Request Timeout response
func RequestTimeout(c *fiber.Ctx) error {
	return Error(c, fiber.StatusRequestTimeout, "Request timed out")
}

// InternalServerError returns a 500 Internal Server Error response
func InternalServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Internal server error"
	}
	return Error(c, fiber.StatusInternalServerError, message)
}

// ServiceUnavailable returns a 503 Service Unavailable response
func ServiceUnavailable(c *fiber.Ctx, message string) error {
	if message == "" {
		message = "Service temporarily unavailable"
	}
	return Error(c, fiber.StatusServiceUnavailable, message)
}

// ValidationError returns a 422 response for struct validation failures
func ValidationError(c *fiber.Ctx, err error) error {
	return ErrorWithDetail(c, fiber.StatusUnprocessableEntity, "Validation failed", err.Error())
}
