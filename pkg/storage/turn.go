package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// ParseRole maps external role names onto a Role. "assistant" and "ai" are
// accepted as aliases for the agent.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "human":
		return RoleUser, nil
	case "agent", "assistant", "ai":
		return RoleAgent, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, s)
	}
}

// Turn is one persisted message of a session. Turns are immutable once
// appended.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`

	// SegmentID is the time segment of the session this turn belongs to.
	// It is assigned once at write time and never recomputed.
	SegmentID int64 `json:"segment_id"`
}

// Validate reports whether the turn can be persisted.
func (t Turn) Validate() error {
	if t.SessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidTurn)
	}
	if t.Role != RoleUser && t.Role != RoleAgent {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, t.Role)
	}
	if t.SegmentID < 0 {
		return fmt.Errorf("%w: negative segment id", ErrInvalidTurn)
	}
	return nil
}

// Prepare validates turns and returns copies ready to be written: missing
// ids are generated and timestamps are normalized to UTC.
func Prepare(turns []Turn) ([]Turn, error) {
	out := make([]Turn, len(turns))
	for i, t := range turns {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out[i] = t
	}
	return out, nil
}
