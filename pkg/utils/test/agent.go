package testutils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/cogniweave/pkg/runnable"
)

// MockAgent answers with a fixed or computed reply, split into two chunks.
type MockAgent struct {
	mu     sync.Mutex
	inputs []runnable.Input

	// Reply is the answer when ReplyFunc is nil.
	Reply string

	// ReplyFunc computes the answer from the input.
	ReplyFunc func(in runnable.Input) string

	// StartErr fails the call before any chunk.
	StartErr error

	// StreamErr fails the stream after its first chunk.
	StreamErr error

	// Gate, when set, is received from before the first chunk.
	Gate chan struct{}

	active    atomic.Int32
	maxActive atomic.Int32
}

func NewMockAgent(reply string) *MockAgent {
	return &MockAgent{Reply: reply}
}

func (a *MockAgent) Invoke(ctx context.Context, in runnable.Input) (runnable.Output, error) {
	return runnable.InvokeStream(ctx, a, in)
}

func (a *MockAgent) Stream(_ context.Context, in runnable.Input) (runnable.Stream, error) {
	a.mu.Lock()
	a.inputs = append(a.inputs, in)
	a.mu.Unlock()

	if a.StartErr != nil {
		return nil, a.StartErr
	}

	reply := a.Reply
	if a.ReplyFunc != nil {
		reply = a.ReplyFunc(in)
	}

	var chunks []string
	if reply != "" {
		half := len(reply) / 2
		chunks = []string{reply[:half], reply[half:]}
	}

	n := a.active.Add(1)
	for {
		m := a.maxActive.Load()
		if n <= m || a.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	return &mockStream{agent: a, chunks: chunks, pos: -1}, nil
}

// Inputs returns the inputs the agent received.
func (a *MockAgent) Inputs() []runnable.Input {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]runnable.Input(nil), a.inputs...)
}

// MaxActive reports the highest number of concurrently open streams.
func (a *MockAgent) MaxActive() int {
	return int(a.maxActive.Load())
}

type mockStream struct {
	agent  *MockAgent
	chunks []string
	pos    int
	err    error
	done   bool
}

func (s *mockStream) Next() bool {
	if s.done {
		return false
	}
	if s.pos < 0 && s.agent.Gate != nil {
		<-s.agent.Gate
	}
	if s.agent.StreamErr != nil && s.pos == 0 {
		s.err = s.agent.StreamErr
		s.finish()
		return false
	}
	if s.pos+1 >= len(s.chunks) {
		s.finish()
		return false
	}
	s.pos++
	return true
}

func (s *mockStream) Chunk() runnable.Chunk {
	if s.pos < 0 || s.pos >= len(s.chunks) {
		return runnable.Chunk{}
	}
	return runnable.Chunk{Text: s.chunks[s.pos]}
}

func (s *mockStream) Err() error {
	return s.err
}

func (s *mockStream) Close() error {
	s.finish()
	return nil
}

func (s *mockStream) finish() {
	if !s.done {
		s.done = true
		s.agent.active.Add(-1)
	}
}
