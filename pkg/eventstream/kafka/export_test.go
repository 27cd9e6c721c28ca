package kafka

// MessageWriter exposes the writer seam to tests.
type MessageWriter = messageWriter

// NewTestPublisher builds a publisher around a fake writer.
func NewTestPublisher(w MessageWriter) *Publisher {
	return newPublisher(w, Config{})
}
