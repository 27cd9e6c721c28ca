// Package cache memoizes embeddings in a bounded ristretto cache. The
// memory pipeline embeds the same user text for retrieval and again for
// extraction, so repeated inputs are common.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/papercomputeco/cogniweave/pkg/embeddings"
)

// DefaultMaxEntries bounds the cache when Config.MaxEntries is zero.
const DefaultMaxEntries = 10_000

// Config configures the cache.
type Config struct {
	// MaxEntries is the approximate number of embeddings kept.
	MaxEntries int64
}

// Embedder wraps another embedder with a cache keyed by model and text.
type Embedder struct {
	next  embeddings.Embedder
	model string
	cache *ristretto.Cache
}

// New wraps next.
func New(next embeddings.Embedder, c Config) (*Embedder, error) {
	maxEntries := c.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	var model string
	if named, ok := next.(embeddings.Named); ok {
		model = named.Model()
	}

	return &Embedder{next: next, model: model, cache: cache}, nil
}

// Embed returns a cached vector or asks the wrapped embedder. Callers get
// their own copy of the vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.model + "\x00" + text

	if v, ok := e.cache.Get(key); ok {
		return clone(v.([]float32)), nil
	}

	emb, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, clone(emb), 1)
	return emb, nil
}

// Wait blocks until pending cache writes are visible.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Model reports the wrapped model name.
func (e *Embedder) Model() string {
	return e.model
}

// Close stops the cache and closes the wrapped embedder.
func (e *Embedder) Close() error {
	e.cache.Close()
	return e.next.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
