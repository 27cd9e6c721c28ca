package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/cogniweave/pkg/eventstream"
)

// RecordingPublisher keeps every published event.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.TurnEvent

	// Err causes PublishTurn to fail after recording.
	Err error
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishTurn(_ context.Context, event *eventstream.TurnEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

// Events returns the published events in order.
func (p *RecordingPublisher) Events() []*eventstream.TurnEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.TurnEvent(nil), p.events...)
}

// EventTypes returns the types of the published events in order.
func (p *RecordingPublisher) EventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType
	}
	return types
}

func (p *RecordingPublisher) Close() error {
	return nil
}
