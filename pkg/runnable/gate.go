package runnable

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/metrics"
)

// GateConfig configures an EndGate.
type GateConfig struct {
	// Detector judges the buffered input. Defaults to the rule-based
	// detector.
	Detector *enddetect.Detector

	// Default is returned while the input is held back. Forwarded is
	// always reported as false.
	Default Output

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// pendingBuffer holds the fragments of a session that were not forwarded
// yet.
type pendingBuffer struct {
	fragments []string
	state     enddetect.State
}

// EndGate buffers user fragments until the detector considers the turn
// complete, then forwards the joined text once.
type EndGate struct {
	next     Runnable
	detector *enddetect.Detector
	held     string
	metrics  *metrics.Metrics
	logger   *slog.Logger
	locks    sessionLocks

	mu      sync.Mutex
	buffers map[string]*pendingBuffer
}

// NewEndGate wraps next.
func NewEndGate(next Runnable, c GateConfig) (*EndGate, error) {
	if next == nil {
		return nil, errors.New("end gate: next stage is required")
	}
	log := logger.OrNop(c.Logger)
	detector := c.Detector
	if detector == nil {
		detector = enddetect.New(nil, enddetect.WithLogger(log))
	}
	return &EndGate{
		next:     next,
		detector: detector,
		held:     c.Default.Text,
		metrics:  c.Metrics,
		logger:   log,
		buffers:  make(map[string]*pendingBuffer),
	}, nil
}

// Invoke runs the stage to completion.
func (g *EndGate) Invoke(ctx context.Context, in Input) (Output, error) {
	return InvokeStream(ctx, g, in)
}

// Stream buffers in.Text and either holds it back or forwards the whole
// buffer. The buffer is cleared only once the forwarded stream is
// exhausted without error, so a failed call is retried with the same
// input on the next fragment.
func (g *EndGate) Stream(ctx context.Context, in Input) (Stream, error) {
	unlock, err := g.locks.lock(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	fragments := g.push(in.SessionID, in.Text)

	res, err := g.detector.Evaluate(ctx, fragments)
	if err != nil {
		// The caller sees the error, so the fragment is not kept twice if
		// it is sent again.
		g.drop(in.SessionID, len(fragments)-1)
		unlock()
		return nil, err
	}
	if res.Err != nil {
		g.metrics.DetectionFailed()
	}
	g.metrics.GateVerdict(string(res.Verdict))

	if res.Verdict == enddetect.Incomplete {
		g.logger.Debug("input held", "session_id", in.SessionID, "fragments", len(fragments))
		unlock()
		return heldStream(g.held), nil
	}

	forwarded := in
	forwarded.Text = res.Input
	forwarded.Held = len(fragments) - 1
	s, err := g.next.Stream(ctx, forwarded)
	if err != nil {
		unlock()
		return nil, err
	}

	n := len(fragments)
	return &observedStream{
		inner: s,
		onComplete: func(string) {
			g.clear(in.SessionID, n)
		},
		release: unlock,
	}, nil
}

// Pending returns a copy of the buffered fragments of a session and the
// buffer state.
func (g *EndGate) Pending(sessionID string) ([]string, enddetect.State) {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf, ok := g.buffers[sessionID]
	if !ok {
		return nil, enddetect.StateIdle
	}
	return append([]string(nil), buf.fragments...), buf.state
}

// push appends a fragment and returns a copy of the whole buffer.
func (g *EndGate) push(sessionID, text string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf, ok := g.buffers[sessionID]
	if !ok {
		buf = &pendingBuffer{}
		g.buffers[sessionID] = buf
	}
	buf.fragments = append(buf.fragments, text)
	buf.state = enddetect.StateBuffering
	return append([]string(nil), buf.fragments...)
}

// drop truncates the buffer to its first n fragments.
func (g *EndGate) drop(sessionID string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf, ok := g.buffers[sessionID]
	if !ok {
		return
	}
	buf.fragments = buf.fragments[:min(n, len(buf.fragments))]
	if len(buf.fragments) == 0 {
		delete(g.buffers, sessionID)
	}
}

// clear drops the first n fragments, the ones that were forwarded.
func (g *EndGate) clear(sessionID string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf, ok := g.buffers[sessionID]
	if !ok {
		return
	}
	buf.fragments = buf.fragments[min(n, len(buf.fragments)):]
	if len(buf.fragments) == 0 {
		delete(g.buffers, sessionID)
	}
}
