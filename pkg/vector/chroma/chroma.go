// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing tags.
	DefaultCollectionName = "cogniweave"

	// DefaultMaxRetries is how often the initial connection is attempted.
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the first backoff between connection attempts.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the exponential backoff.
	DefaultMaxRetryDelay = 5 * time.Second

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"
)


// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// MaxRetries bounds the connection attempts made by NewDriver.
	MaxRetries int

	// RetryDelay is the initial delay between attempts. It doubles on
	// every failure up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver. Chroma is frequently
// started alongside the service, so the collection lookup is retried with
// exponential backoff.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}
	log = logger.OrNop(log)

	if c.CollectionName == "" {
		c.CollectionName = DefaultCollectionName
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}

	d := &Driver{
		baseURL:        c.URL,
		collectionName: c.CollectionName,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: log,
	}

	var (
		collectionID string
		err          error
		delay        = c.RetryDelay
	)
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		collectionID, err = d.getOrCreateCollection(context.Background())
		if err == nil {
			break
		}
		if attempt == c.MaxRetries {
			return nil, fmt.Errorf("%w: chroma unreachable after %d attempts: %v", vector.ErrConnection, attempt, err)
		}

		log.Warn("chroma not ready, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		time.Sleep(delay)
		delay = min(delay*2, c.MaxRetryDelay)
	}
	d.collectionID = collectionID

	log.Info("connected to Chroma",
		"url", c.URL,
		"collection", c.CollectionName,
		"collection_id", collectionID,
	)

	return d, nil
}

func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var col collection
	err := d.do(ctx, http.MethodGet, collectionsPath+"/"+d.collectionName, nil, &col)
	if err == nil {
		return col.ID, nil
	}

	err = d.do(ctx, http.MethodPost, collectionsPath, createCollectionRequest{
		Name:        d.collectionName,
		Metadata:    map[string]string{"hnsw:space": "cosine"},
		GetOrCreate: true,
	}, &col)
	if err != nil {
		return "", fmt.Errorf("creating collection %q: %w", d.collectionName, err)
	}
	return col.ID, nil
}

// Add stores documents with their embeddings. Ids already present in the
// collection are left untouched.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s: %w", doc.ID, vector.ErrEmptyEmbedding)
		}
		ids = append(ids, doc.ID)
	}

	existing, err := d.Get(ctx, ids)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, doc := range existing {
		seen[doc.ID] = true
	}

	var req addRequest
	for _, doc := range docs {
		if seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true

		req.IDs = append(req.IDs, doc.ID)
		req.Embeddings = append(req.Embeddings, doc.Embedding)
		req.Documents = append(req.Documents, doc.Text)
		req.Metadatas = append(req.Metadatas, map[string]any{
			"scope":      doc.Scope,
			"created_at": strconv.FormatInt(doc.CreatedAt.UnixNano(), 10),
			"embedding":  vector.EncodeBase64(doc.Embedding),
		})
	}
	if len(req.IDs) == 0 {
		return nil
	}

	if err := d.do(ctx, http.MethodPost, d.collectionPath("add"), req, nil); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	d.logger.Debug("added documents to chroma", "count", len(req.IDs))
	return nil
}

// Query finds the topK most similar documents of a scope.
func (d *Driver) Query(ctx context.Context, embedding []float32, scope string, topK int) ([]vector.QueryResult, error) {
	if len(embedding) == 0 {
		return nil, vector.ErrEmptyEmbedding
	}
	if topK <= 0 {
		topK = 10
	}

	var resp queryResponse
	err := d.do(ctx, http.MethodPost, d.collectionPath("query"), queryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Where:           map[string]any{"scope": scope},
		Include:         []string{"metadatas", "documents", "distances"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("querying chroma: %w", err)
	}

	results := []vector.QueryResult{}
	if len(resp.IDs) == 0 {
		return results, nil
	}

	for i, id := range resp.IDs[0] {
		doc, err := toDocument(id, at(resp.Documents, i), atMeta(resp.Metadatas, i))
		if err != nil {
			d.logger.Warn("skipping unreadable chroma document", "id", id, "error", err)
			continue
		}

		var distance float32
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			distance = resp.Distances[0][i]
		}

		// Cosine space: distance is 1 - similarity.
		results = append(results, vector.QueryResult{Document: doc, Score: 1 - distance})
	}

	d.logger.Debug("queried chroma", "scope", scope, "results", len(results))
	return vector.Top(results, topK), nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var resp getResponse
	err := d.do(ctx, http.MethodPost, d.collectionPath("get"), getRequest{
		IDs:     ids,
		Include: []string{"metadatas", "documents"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("getting documents: %w", err)
	}

	docs := make([]vector.Document, 0, len(resp.IDs))
	for i, id := range resp.IDs {
		var meta map[string]any
		if i < len(resp.Metadatas) {
			meta = resp.Metadatas[i]
		}
		var text string
		if i < len(resp.Documents) {
			text = resp.Documents[i]
		}
		doc, err := toDocument(id, text, meta)
		if err != nil {
			return nil, fmt.Errorf("reading document %s: %w", id, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

func (d *Driver) collectionPath(op string) string {
	return collectionsPath + "/" + d.collectionID + "/" + op
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, vector.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func at(groups [][]string, i int) string {
	if len(groups) == 0 || i >= len(groups[0]) {
		return ""
	}
	return groups[0][i]
}

func atMeta(groups [][]map[string]any, i int) map[string]any {
	if len(groups) == 0 || i >= len(groups[0]) {
		return nil
	}
	return groups[0][i]
}

func toDocument(id, text string, meta map[string]any) (vector.Document, error) {
	doc := vector.Document{ID: id, Text: text}

	doc.Scope, _ = meta["scope"].(string)

	if raw, ok := meta["created_at"].(string); ok {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return vector.Document{}, fmt.Errorf("parsing created_at: %w", err)
		}
		doc.CreatedAt = time.Unix(0, nanos).UTC()
	}

	if raw, ok := meta["embedding"].(string); ok {
		embedding, err := vector.DecodeBase64(raw)
		if err != nil {
			return vector.Document{}, err
		}
		doc.Embedding = embedding
	}
	return doc, nil
}
