package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/cogniweave/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after an exchange is written to history.
	EventTypeTurnPersisted = "cogniweave.turn.persisted"

	// EventTypeTurnPersistFailed is emitted when an answered exchange could
	// not be written to history.
	EventTypeTurnPersistFailed = "cogniweave.turn.persist_failed"
)

// TurnEvent is a transport-neutral event payload describing the history
// write that closes an exchange.
type TurnEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Source        EventSource    `json:"source"`
	Exchange      ExchangeMeta   `json:"exchange"`
	Turns         []storage.Turn `json:"turns"`

	// Error describes the failed write for EventTypeTurnPersistFailed.
	Error string `json:"error,omitempty"`
}

// EventSource identifies where the exchange originated.
type EventSource struct {
	Service string `json:"service"`
	Index   string `json:"index,omitempty"`
	Agent   string `json:"agent,omitempty"`
}

// ExchangeMeta captures lifecycle metadata of the exchange.
type ExchangeMeta struct {
	SessionID   string    `json:"session_id"`
	SegmentID   int64     `json:"segment_id"`
	Forwarded   bool      `json:"forwarded"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// NewTurnEvent fills the envelope fields of an event.
func NewTurnEvent(eventType string, source EventSource, exchange ExchangeMeta, turns []storage.Turn, now time.Time) *TurnEvent {
	return &TurnEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     now.UTC(),
		Source:        source,
		Exchange:      exchange,
		Turns:         turns,
	}
}
