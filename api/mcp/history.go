package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/cogniweave/pkg/storage"
)

const defaultHistoryLimit = 20

var (
	sessionHistoryToolName    = "session_history"
	sessionHistoryDescription = "Read the stored dialogue of a cogniweave session, oldest turn first. Each turn carries its role, content, timestamp and conversation segment."
)

// SessionHistoryInput represents the input arguments for the session_history tool.
type SessionHistoryInput struct {
	SessionID string `json:"session_id" jsonschema:"the session to read"`
	Limit     int    `json:"limit,omitempty" jsonschema:"number of most recent turns to return (default: 20)"`
}

// Turn is one stored message as returned by session_history.
type Turn struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	SegmentID int64  `json:"segment_id"`
}

// SessionHistoryOutput represents the structured output of session_history.
type SessionHistoryOutput struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
	Count     int    `json:"count"`
}

func noTurns(sessionID string) SessionHistoryOutput {
	return SessionHistoryOutput{SessionID: sessionID, Turns: []Turn{}}
}

func (s *Server) handleSessionHistory(ctx context.Context, _ *mcp.CallToolRequest, input SessionHistoryInput) (*mcp.CallToolResult, SessionHistoryOutput, error) {
	if input.SessionID == "" {
		return toolError("session_id is required"), noTurns(input.SessionID), nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	turns, err := s.config.History.History(ctx, input.SessionID, limit)
	if err != nil {
		s.logger.Error("failed to read session history", "session", input.SessionID, "error", err)
		return toolError(fmt.Sprintf("History lookup failed: %v", err)), noTurns(input.SessionID), nil
	}
	return textResult(SessionHistoryOutput{
		SessionID: input.SessionID,
		Turns:     toTurns(turns),
		Count:     len(turns),
	})
}

func toTurns(turns []storage.Turn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, Turn{
			ID:        t.ID,
			Role:      string(t.Role),
			Content:   t.Content,
			Timestamp: t.CreatedAt.UTC().Format(time.RFC3339),
			SegmentID: t.SegmentID,
		})
	}
	return out
}
