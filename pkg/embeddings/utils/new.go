// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/cogniweave/pkg/embeddings"
	"github.com/papercomputeco/cogniweave/pkg/embeddings/cache"
	"github.com/papercomputeco/cogniweave/pkg/embeddings/ollama"
	"github.com/papercomputeco/cogniweave/pkg/embeddings/openai"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Dimensions   int

	// CacheEntries wraps the embedder in a cache of that size when positive.
	CacheEntries int64
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	var (
		embedder embeddings.Embedder
		err      error
	)

	switch o.ProviderType {
	case "ollama":
		embedder, err = ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	case "openai":
		embedder, err = openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:    o.TargetURL,
			APIKey:     o.APIKey,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
	if err != nil {
		return nil, err
	}

	if o.CacheEntries > 0 {
		return cache.New(embedder, cache.Config{MaxEntries: o.CacheEntries})
	}
	return embedder, nil
}
