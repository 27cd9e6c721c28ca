// Package runnable composes the conversational memory pipeline around an
// agent call:
//
//	caller -> SessionPipeline -> EndGate -> MemoryMaker -> agent
//
// Every stage implements Runnable, so stages can be used alone or chained.
// Streams are consumed like sql.Rows: call Next until it returns false, then
// check Err and Close.
package runnable

import (
	"context"
	"strings"

	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
)

// Input is what flows down the pipeline. Stages fill in the context fields
// before calling the next stage.
type Input struct {
	SessionID string

	// Text is the user input. The end gate replaces a fragment with the
	// joined buffer before forwarding.
	Text string

	// Held is how many earlier fragments the end gate joined into Text.
	// Those fragments are already stored as the trailing user turns of
	// the history.
	Held int

	// History is the recent session history loaded by the session stage,
	// oldest first.
	History []storage.Turn

	// ShortMemory is the most recent turns picked by the memory stage.
	ShortMemory []storage.Turn

	// LongMemory holds the tags most similar to Text.
	LongMemory []tagstore.Result
}

// Output is a complete answer.
type Output struct {
	Text string `json:"output"`

	// Forwarded reports whether the input reached the agent. It is false
	// when the end gate held the input back.
	Forwarded bool `json:"forwarded"`
}

// Chunk is one piece of a streamed answer.
type Chunk struct {
	Text string `json:"text"`
}

// Stream yields the chunks of an answer in order.
type Stream interface {
	// Next advances to the next chunk. It returns false when the stream is
	// exhausted or failed.
	Next() bool

	// Chunk returns the current chunk.
	Chunk() Chunk

	// Err returns the error that ended the stream, if any.
	Err() error

	// Close releases the stream. Closing before exhaustion abandons it.
	Close() error
}

// Streamer produces streams.
type Streamer interface {
	Stream(ctx context.Context, in Input) (Stream, error)
}

// Runnable is a pipeline stage.
type Runnable interface {
	Streamer
	Invoke(ctx context.Context, in Input) (Output, error)
}

// Agent is the model call at the end of the pipeline.
type Agent = Runnable

// InvokeStream runs a stream to completion and returns its text.
func InvokeStream(ctx context.Context, s Streamer, in Input) (Output, error) {
	stream, err := s.Stream(ctx, in)
	if err != nil {
		return Output{}, err
	}
	text, err := Collect(stream)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: text, Forwarded: Forwarded(stream)}, nil
}

// Collect drains and closes a stream.
func Collect(s Stream) (string, error) {
	defer s.Close()

	var b strings.Builder
	for s.Next() {
		b.WriteString(s.Chunk().Text)
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

type forwarder interface {
	Forwarded() bool
}

// Forwarded reports whether the input of a stream reached the agent.
// Streams that do not say are assumed to come from the agent.
func Forwarded(s Stream) bool {
	if f, ok := s.(forwarder); ok {
		return f.Forwarded()
	}
	return true
}
