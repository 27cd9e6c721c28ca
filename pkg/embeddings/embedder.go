// Package embeddings defines the embedding model interface used to index
// and search memory tags.
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// Named is implemented by embedders that know their model name. Caches use
// it to keep vectors of different models apart.
type Named interface {
	Model() string
}
