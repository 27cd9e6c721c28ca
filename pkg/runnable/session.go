package runnable

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/cogniweave/pkg/eventstream"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/metrics"
	"github.com/papercomputeco/cogniweave/pkg/segment"
	"github.com/papercomputeco/cogniweave/pkg/storage"
)

// DefaultHistoryLimit is how many turns the session stage loads.
const DefaultHistoryLimit = 20

// SessionConfig configures a SessionPipeline.
type SessionConfig struct {
	History storage.Driver

	// Splitter assigns segment ids. Defaults to segment.DefaultGap.
	Splitter *segment.Splitter

	// HistoryLimit bounds the loaded history. Negative loads everything.
	HistoryLimit int

	// Publisher receives an event for every history write attempt.
	Publisher eventstream.Publisher
	Source    eventstream.EventSource

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now overrides the clock used for turn timestamps.
	Now func() time.Time
}

// SessionPipeline is the outermost stage. It serializes the calls of a
// session, loads its history and records the exchange once the answer is
// complete.
type SessionPipeline struct {
	next      Runnable
	history   storage.Driver
	splitter  *segment.Splitter
	limit     int
	publisher eventstream.Publisher
	source    eventstream.EventSource
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	locks     sessionLocks
}

// NewSessionPipeline wraps next.
func NewSessionPipeline(next Runnable, c SessionConfig) (*SessionPipeline, error) {
	if next == nil {
		return nil, errors.New("session pipeline: next stage is required")
	}
	if c.History == nil {
		return nil, errors.New("session pipeline: history store is required")
	}
	if c.Splitter == nil {
		c.Splitter = segment.NewSplitter(segment.DefaultGap)
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Source.Service == "" {
		c.Source.Service = "cogniweave"
	}

	return &SessionPipeline{
		next:      next,
		history:   c.History,
		splitter:  c.Splitter,
		limit:     c.HistoryLimit,
		publisher: c.Publisher,
		source:    c.Source,
		metrics:   c.Metrics,
		logger:    logger.OrNop(c.Logger),
		now:       c.Now,
	}, nil
}

// Invoke runs the pipeline to completion.
func (p *SessionPipeline) Invoke(ctx context.Context, in Input) (Output, error) {
	return InvokeStream(ctx, p, in)
}

// Stream holds the session lock until the returned stream is exhausted or
// closed. History is written only after exhaustion without error.
func (p *SessionPipeline) Stream(ctx context.Context, in Input) (Stream, error) {
	if in.SessionID == "" {
		return nil, &storage.Error{Op: "history", Err: storage.ErrInvalidTurn}
	}

	unlock, err := p.locks.lock(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	limit := p.limit
	if limit < 0 {
		limit = 0
	}
	history, err := p.history.History(ctx, in.SessionID, limit)
	if err != nil {
		unlock()
		return nil, asStorageError("history", in.SessionID, err)
	}
	in.History = history

	received := p.now()
	s, err := p.next.Stream(ctx, in)
	if err != nil {
		unlock()
		return nil, err
	}

	obs := &observedStream{inner: s, release: unlock}
	obs.onComplete = func(text string) {
		p.persist(context.WithoutCancel(ctx), in, received, text, Forwarded(s))
	}
	return obs, nil
}

// History returns the stored turns of a session.
func (p *SessionPipeline) History(ctx context.Context, sessionID string, limit int) ([]storage.Turn, error) {
	return p.history.History(ctx, sessionID, limit)
}

func (p *SessionPipeline) persist(ctx context.Context, in Input, received time.Time, answer string, forwarded bool) {
	var prev *storage.Turn
	if len(in.History) > 0 {
		prev = &in.History[len(in.History)-1]
	}

	user := storage.Turn{
		ID:        uuid.NewString(),
		SessionID: in.SessionID,
		Role:      storage.RoleUser,
		Content:   in.Text,
		CreatedAt: received,
		SegmentID: p.splitter.Next(prev, received),
	}
	turns := []storage.Turn{user}

	// A held fragment gets no agent turn: the answer is the gate's
	// placeholder, not the agent's.
	completed := received
	if forwarded && answer != "" {
		completed = p.now()
		turns = append(turns, storage.Turn{
			ID:        uuid.NewString(),
			SessionID: in.SessionID,
			Role:      storage.RoleAgent,
			Content:   answer,
			CreatedAt: completed,
			SegmentID: p.splitter.Next(&user, completed),
		})
	}

	meta := eventstream.ExchangeMeta{
		SessionID:   in.SessionID,
		SegmentID:   user.SegmentID,
		Forwarded:   forwarded,
		StartedAt:   received,
		CompletedAt: completed,
		DurationMs:  completed.Sub(received).Milliseconds(),
	}

	if err := p.history.Append(ctx, turns...); err != nil {
		p.logger.Error("exchange answered but not recorded",
			"session_id", in.SessionID,
			"turns", len(turns),
			"error", err,
		)
		p.metrics.PersistFailed()

		event := eventstream.NewTurnEvent(eventstream.EventTypeTurnPersistFailed, p.source, meta, turns, p.now())
		event.Error = err.Error()
		p.publish(ctx, event)
		return
	}

	p.metrics.TurnPersisted(len(turns))
	p.logger.Debug("exchange recorded", "session_id", in.SessionID, "segment_id", user.SegmentID, "turns", len(turns))
	p.publish(ctx, eventstream.NewTurnEvent(eventstream.EventTypeTurnPersisted, p.source, meta, turns, p.now()))
}

func (p *SessionPipeline) publish(ctx context.Context, event *eventstream.TurnEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("turn event not published", "event_type", event.EventType, "error", err)
	}
}
