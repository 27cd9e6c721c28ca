// Package nop provides the publisher used when no event stream is
// configured. It delivers nothing but still counts what it was given.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/cogniweave/pkg/eventstream"
)

// Publisher drops every event.
type Publisher struct {
	published atomic.Int64
	closed    atomic.Bool
}

var _ eventstream.Publisher = (*Publisher)(nil)

func NewPublisher() *Publisher {
	return &Publisher{}
}

func (p *Publisher) PublishTurn(_ context.Context, event *eventstream.TurnEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}
	if p.closed.Load() {
		return eventstream.ErrPublisherClosed
	}
	p.published.Add(1)
	return nil
}

// Published reports how many events were accepted.
func (p *Publisher) Published() int64 {
	return p.published.Load()
}

func (p *Publisher) Close() error {
	p.closed.Store(true)
	return nil
}
