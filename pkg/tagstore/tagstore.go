// Package tagstore holds memory tags: short facts with an embedding,
// scoped to a session or to the global scope. Tags are either written
// through to a vector driver immediately or buffered until Flush.
package tagstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/vector"
)

// GlobalScope is visible to every session.
const GlobalScope = ""

// Tag is a stored memory fact.
type Tag = vector.Document

// Result is a tag returned by Search with its similarity score.
type Result = vector.QueryResult

// Config configures a Store.
type Config struct {
	// Driver persists flushed tags.
	Driver vector.Driver

	// AutoSave writes every added tag through to the driver.
	AutoSave bool

	Logger *slog.Logger

	// Now overrides the clock used for tag timestamps.
	Now func() time.Time
}

// Store is a buffered, scope-aware tag store.
type Store struct {
	driver   vector.Driver
	autoSave bool
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending []Tag

	// flushMu serializes flushes so a failed batch is requeued in order.
	flushMu sync.Mutex
}

// New creates a Store over the configured driver.
func New(c Config) (*Store, error) {
	if c.Driver == nil {
		return nil, errors.New("tagstore: vector driver is required")
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		driver:   c.Driver,
		autoSave: c.AutoSave,
		logger:   logger.OrNop(c.Logger),
		now:      now,
	}, nil
}

// Add records a tag and returns its id. With AutoSave the tag is durable
// when Add returns; otherwise it is searchable but pending until Flush.
func (s *Store) Add(ctx context.Context, text string, embedding []float32, scope string) (string, error) {
	if len(embedding) == 0 {
		return "", &StorageError{Op: "add", Tags: 1, Err: vector.ErrEmptyEmbedding}
	}

	emb := make([]float32, len(embedding))
	copy(emb, embedding)

	tag := Tag{
		ID:        uuid.NewString(),
		Scope:     scope,
		Text:      text,
		Embedding: emb,
		CreatedAt: s.now().UTC(),
	}

	if s.autoSave {
		if err := s.driver.Add(ctx, []Tag{tag}); err != nil {
			return "", &StorageError{Op: "add", Tags: 1, Err: err}
		}
		s.logger.Debug("tag saved", "id", tag.ID, "scope", scope)
		return tag.ID, nil
	}

	s.mu.Lock()
	s.pending = append(s.pending, tag)
	s.mu.Unlock()

	s.logger.Debug("tag buffered", "id", tag.ID, "scope", scope)
	return tag.ID, nil
}

// Search returns the k tags of scope most similar to embedding, merging
// persisted and pending tags. Pending tags whose dimension differs from
// the query are skipped.
func (s *Store) Search(ctx context.Context, embedding []float32, scope string, k int) ([]Result, error) {
	if k <= 0 || len(embedding) == 0 {
		return []Result{}, nil
	}

	// Snapshot before querying: a Flush running during the query moves
	// tags out of pending, and they must stay visible either way.
	s.mu.Lock()
	var pending []Tag
	for _, tag := range s.pending {
		if tag.Scope == scope && len(tag.Embedding) == len(embedding) {
			pending = append(pending, tag)
		}
	}
	s.mu.Unlock()

	results, err := s.driver.Query(ctx, embedding, scope, k)
	if err != nil {
		return nil, &RetrievalError{Scope: scope, Err: err}
	}

	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		seen[r.ID] = struct{}{}
	}
	for _, tag := range pending {
		if _, ok := seen[tag.ID]; ok {
			continue
		}
		results = append(results, Result{
			Document: tag,
			Score:    vector.Cosine(embedding, tag.Embedding),
		})
	}

	return vector.Top(results, k), nil
}

// Flush writes every pending tag in one driver call. Nothing pending is a
// no-op. On failure the batch is put back ahead of tags added meanwhile.
// The driver is called without holding the store lock.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := s.driver.Add(ctx, batch); err != nil {
		s.mu.Lock()
		s.pending = append(batch, s.pending...)
		s.mu.Unlock()
		s.logger.Warn("tag flush failed", "pending", len(batch), "error", err)
		return &StorageError{Op: "flush", Tags: len(batch), Err: err}
	}

	s.logger.Info("tags flushed", "count", len(batch))
	return nil
}

// Pending reports how many tags await Flush.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close flushes pending tags and closes the driver. The driver is closed
// even when the flush fails.
func (s *Store) Close(ctx context.Context) error {
	flushErr := s.Flush(ctx)
	if err := s.driver.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("closing vector driver: %w", err))
	}
	return flushErr
}
