package eventstream

import (
	"context"
	"errors"
)

var (
	// ErrNilTurnEvent is returned when a publisher is handed a nil event.
	ErrNilTurnEvent = errors.New("nil turn event")

	// ErrPublisherClosed is returned by PublishTurn after Close.
	ErrPublisherClosed = errors.New("publisher is closed")
)

// Publisher delivers turn events to an event stream backend. Publishing is
// best effort: the pipeline logs failures and never fails a turn over them.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnEvent) error
	Close() error
}
