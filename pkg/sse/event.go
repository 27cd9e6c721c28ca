// Package sse reads and writes the Server-Sent Events frames used by the
// cogniweave streaming endpoint. The API encodes answer chunks with
// WriteEvent and the chat client parses them back with a Reader.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event types emitted by the streaming endpoint. Chunks use the default
// "message" type.
const (
	TypeDone  = "done"
	TypeError = "error"
)

// Event represents a single parsed SSE event, delimited by a blank line
// in the byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type as SSE defines it.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n".
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
