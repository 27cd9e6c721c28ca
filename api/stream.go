package api

import (
	"context"
	"encoding/json"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/sse"
)

// StreamChunk is the data of a default SSE message.
type StreamChunk struct {
	Output string `json:"output"`
}

// StreamDone is the data of the final "done" event.
type StreamDone struct {
	Forwarded bool `json:"forwarded"`
}

// handleStream answers as Server-Sent Events: one message per chunk, then a
// "done" event, or an "error" event when the agent fails mid-stream.
func (s *Server) handleStream(c *fiber.Ctx) error {
	in, err := parseInvoke(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	// fasthttp recycles the request context once the handler returns, while
	// the body is still being written from another goroutine.
	ctx := context.Background()
	cancel := func() {}
	if s.config.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.config.StreamTimeout)
	}

	stream, err := s.config.Pipeline.Stream(ctx, in)
	if err != nil {
		cancel()
		return s.fail(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// io.Pipe gives per-chunk flushing: fasthttp's chunked body writer
	// flushes after every read from the pipe.
	pr, pw := io.Pipe()
	go func() {
		defer cancel()
		s.pipeStream(stream, pw)
	}()

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

// pipeStream copies a pipeline stream to w. A write failure means the
// client went away; the stream is then closed unfinished, which abandons
// the turn.
func (s *Server) pipeStream(stream runnable.Stream, pw *io.PipeWriter) {
	defer pw.Close()
	defer stream.Close()

	for stream.Next() {
		data, err := json.Marshal(StreamChunk{Output: stream.Chunk().Text})
		if err != nil {
			s.logger.Error("failed to encode chunk", "error", err)
			return
		}
		if err := sse.WriteEvent(pw, sse.Event{Data: string(data)}); err != nil {
			s.logger.Debug("stream client went away", "error", err)
			return
		}
	}

	if err := stream.Err(); err != nil {
		s.logger.Error("stream failed", "error", err)
		data, _ := json.Marshal(ErrorResponse{Error: err.Error()})
		_ = sse.WriteEvent(pw, sse.Event{Type: sse.TypeError, Data: string(data)})
		return
	}

	data, _ := json.Marshal(StreamDone{Forwarded: runnable.Forwarded(stream)})
	_ = sse.WriteEvent(pw, sse.Event{Type: sse.TypeDone, Data: string(data)})
}
