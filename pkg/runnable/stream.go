package runnable

import (
	"strings"
	"sync"
)

// sliceStream replays fixed chunks.
type sliceStream struct {
	chunks    []string
	pos       int
	forwarded bool
}

// NewSliceStream returns a stream of the given chunks.
func NewSliceStream(chunks ...string) Stream {
	return &sliceStream{chunks: chunks, pos: -1, forwarded: true}
}

func heldStream(text string) Stream {
	s := &sliceStream{pos: -1}
	if text != "" {
		s.chunks = []string{text}
	}
	return s
}

func (s *sliceStream) Next() bool {
	if s.pos+1 >= len(s.chunks) {
		s.pos = len(s.chunks)
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Chunk() Chunk {
	if s.pos < 0 || s.pos >= len(s.chunks) {
		return Chunk{}
	}
	return Chunk{Text: s.chunks[s.pos]}
}

func (s *sliceStream) Err() error      { return nil }
func (s *sliceStream) Close() error    { return nil }
func (s *sliceStream) Forwarded() bool { return s.forwarded }

// observedStream passes chunks through unchanged while accumulating the
// text, and fires hooks when the inner stream ends.
type observedStream struct {
	inner Stream
	text  strings.Builder
	done  bool
	err   error
	once  sync.Once

	// onComplete runs after exhaustion without error, before release.
	onComplete func(text string)

	// mapErr rewrites a mid-stream error.
	mapErr func(error) error

	// release runs once, on exhaustion, failure or Close.
	release func()
}

func (s *observedStream) Next() bool {
	if s.done {
		return false
	}
	if s.inner.Next() {
		s.text.WriteString(s.inner.Chunk().Text)
		return true
	}

	s.done = true
	if err := s.inner.Err(); err != nil {
		if s.mapErr != nil {
			err = s.mapErr(err)
		}
		s.err = err
	} else if s.onComplete != nil {
		s.onComplete(s.text.String())
	}
	s.finish()
	return false
}

func (s *observedStream) Chunk() Chunk {
	return s.inner.Chunk()
}

func (s *observedStream) Err() error {
	return s.err
}

func (s *observedStream) Close() error {
	err := s.inner.Close()
	s.done = true
	s.finish()
	return err
}

func (s *observedStream) Forwarded() bool {
	return Forwarded(s.inner)
}

func (s *observedStream) finish() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
