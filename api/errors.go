package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/storage"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		agentErr  *runnable.AgentError
		detectErr *enddetect.DetectionError
	)

	switch {
	case errors.Is(err, storage.ErrInvalidTurn):
		return fiber.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.As(err, &agentErr), errors.As(err, &detectErr):
		return fiber.StatusBadGateway
	case storage.IsUnreachable(err):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}
