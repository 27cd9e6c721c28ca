// Package vector provides the driver interface and shared helpers for the
// vector backends that hold memory tags.
package vector

import (
	"context"
	"time"
)

// Document is a stored tag: its text, scope and embedding.
type Document struct {
	// ID is the unique tag id.
	ID string

	// Scope groups documents, usually by session id. The empty scope is
	// global.
	Scope string

	// Text is the tag or fact the embedding was computed from.
	Text string

	// Embedding is the vector representation of Text.
	Embedding []float32

	// CreatedAt is when the tag was created. It breaks score ties.
	CreatedAt time.Time
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the cosine similarity to the query (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of tag embeddings. Documents are
// append-only: adding an id that already exists leaves the stored
// document unchanged.
type Driver interface {
	// Add stores documents durably before returning.
	Add(ctx context.Context, docs []Document) error

	// Query returns up to topK documents of scope ordered by descending
	// score, most recent first on equal scores.
	Query(ctx context.Context, embedding []float32, scope string, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown ids are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Close releases any resources held by the driver.
	Close() error
}
