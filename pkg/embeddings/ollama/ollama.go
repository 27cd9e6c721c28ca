// Package ollama embeds memory tags and queries with a local Ollama server
// through its /api/embed endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/cogniweave/pkg/embeddings"
	"github.com/papercomputeco/cogniweave/pkg/vector"
)

const (
	DefaultEmbeddingModel = "nomic-embed-text"
	DefaultBaseURL        = "http://localhost:11434"

	// DefaultTimeout covers a cold model load on the first call.
	DefaultTimeout = 2 * time.Minute
)

// EmbedderConfig holds configuration for the Ollama embedder. Zero values
// fall back to the package defaults.
type EmbedderConfig struct {
	BaseURL string
	Model   string

	// Dimensions asks models that support it for shortened vectors.
	Dimensions int

	// KeepAlive controls how long Ollama keeps the model loaded, e.g. "10m".
	KeepAlive string

	Timeout time.Duration
}

// Embedder turns text into vectors with an Ollama embedding model.
type Embedder struct {
	endpoint   string
	model      string
	dimensions int
	keepAlive  string
	client     *http.Client
}

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
	KeepAlive  string `json:"keep_alive,omitempty"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// NewEmbedder creates an embedder for the configured server.
func NewEmbedder(cfg EmbedderConfig) (*Embedder, error) {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if cfg.Dimensions < 0 {
		return nil, fmt.Errorf("ollama embedder: dimensions must not be negative, got %d", cfg.Dimensions)
	}

	e := &Embedder{
		endpoint:   base + "/api/embed",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		keepAlive:  cfg.KeepAlive,
		client:     &http.Client{Timeout: cfg.Timeout},
	}
	if e.model == "" {
		e.model = DefaultEmbeddingModel
	}
	if e.client.Timeout == 0 {
		e.client.Timeout = DefaultTimeout
	}
	return e, nil
}

// Embed returns the embedding of text. Failures wrap vector.ErrEmbedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", vector.ErrEmbedding)
	}

	out, err := e.post(ctx, embedRequest{
		Model:      e.model,
		Input:      text,
		Dimensions: e.dimensions,
		KeepAlive:  e.keepAlive,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", vector.ErrEmbedding, e.model, err)
	}

	switch {
	case len(out.Embeddings) == 0:
		return nil, fmt.Errorf("%w: %s returned no embeddings", vector.ErrEmbedding, e.model)
	case len(out.Embeddings[0]) == 0:
		return nil, fmt.Errorf("%w: %s returned an empty embedding", vector.ErrEmbedding, e.model)
	}
	return out.Embeddings[0], nil
}

func (e *Embedder) post(ctx context.Context, body embedRequest) (*embedResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var out embedResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && out.Error != "" {
			msg = out.Error
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding response: %w", decodeErr)
	}
	return &out, nil
}

func (e *Embedder) Model() string { return e.model }

// Close is a no-op; the HTTP client holds no resources of its own.
func (e *Embedder) Close() error { return nil }

var (
	_ embeddings.Embedder = (*Embedder)(nil)
	_ embeddings.Named    = (*Embedder)(nil)
)
