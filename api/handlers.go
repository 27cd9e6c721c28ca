package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/storage"
)

// InvokeRequest is the body of the invoke and stream endpoints.
type InvokeRequest struct {
	Input string `json:"input"`
}

// HistoryResponse lists the stored turns of a session, oldest first.
type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Turns     []storage.Turn `json:"turns"`
	Count     int            `json:"count"`
}

// SessionsResponse lists known sessions, most recently active first.
type SessionsResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

// FlushResponse reports how many buffered tags were written.
type FlushResponse struct {
	Flushed int `json:"flushed"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func parseInvoke(c *fiber.Ctx) (runnable.Input, error) {
	var req InvokeRequest
	if err := c.BodyParser(&req); err != nil {
		return runnable.Input{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return runnable.Input{
		SessionID: c.Params("session"),
		Text:      req.Input,
	}, nil
}

// handleInvoke runs the pipeline to completion and returns the answer.
func (s *Server) handleInvoke(c *fiber.Ctx) error {
	in, err := parseInvoke(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	out, err := s.config.Pipeline.Invoke(c.UserContext(), in)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(out)
}

// handleHistory returns the stored turns of a session.
// Query parameters:
//   - limit (optional): number of most recent turns, 0 for all
func (s *Server) handleHistory(c *fiber.Ctx) error {
	session := c.Params("session")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "limit must be a non-negative integer",
			})
		}
		limit = parsed
	}

	turns, err := s.config.History.History(c.UserContext(), session, limit)
	if err != nil {
		return s.fail(c, err)
	}
	if turns == nil {
		turns = []storage.Turn{}
	}

	return c.JSON(HistoryResponse{
		SessionID: session,
		Turns:     turns,
		Count:     len(turns),
	})
}

// handleListSessions returns every known session id.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions, err := s.config.History.Sessions(c.UserContext())
	if err != nil {
		return s.fail(c, err)
	}
	if sessions == nil {
		sessions = []string{}
	}

	return c.JSON(SessionsResponse{
		Sessions: sessions,
		Count:    len(sessions),
	})
}

// handleFlushTags writes buffered long memory tags to the vector store.
func (s *Server) handleFlushTags(c *fiber.Ctx) error {
	if s.config.Tags == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "long memory is not configured",
		})
	}

	pending := s.config.Tags.Pending()
	if err := s.config.Tags.Flush(c.UserContext()); err != nil {
		return s.fail(c, err)
	}

	return c.JSON(FlushResponse{Flushed: pending})
}
