// Package chromem provides an embedded vector driver on top of chromem-go.
// Each scope lives in its own collection; with a path configured the
// database persists every write to disk.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/vector"
)

const (
	// DefaultIndex prefixes collection names when Config.Index is empty.
	DefaultIndex = "cogniweave"

	metaScope     = "scope"
	metaCreatedAt = "created_at"

	// chromem normalizes stored vectors, so the caller's embedding is kept
	// verbatim in metadata.
	metaEmbedding = "embedding"
)

// Config holds configuration for the chromem driver.
type Config struct {
	// Path is the directory of the persistent database. Empty keeps
	// everything in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Index namespaces the collections of this driver.
	Index string
}

// Driver implements vector.Driver using chromem-go.
type Driver struct {
	db     *chromem.DB
	index  string
	logger *slog.Logger

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewDriver opens (or creates) the chromem database.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	log = logger.OrNop(log)

	var (
		db  *chromem.DB
		err error
	)
	if c.Path != "" {
		db, err = chromem.NewPersistentDB(c.Path, c.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database %s: %w", c.Path, err)
		}
	} else {
		db = chromem.NewDB()
	}

	index := c.Index
	if index == "" {
		index = DefaultIndex
	}

	log.Info("chromem vector driver initialized", "path", c.Path, "index", index)

	return &Driver{
		db:          db,
		index:       index,
		logger:      log,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (d *Driver) collectionName(scope string) string {
	if scope == "" {
		return d.index + "/global"
	}
	return d.index + "/scope/" + scope
}

// collection returns the collection of a scope, creating it on first use.
func (d *Driver) collection(scope string) (*chromem.Collection, error) {
	d.mu.RLock()
	col, ok := d.collections[scope]
	d.mu.RUnlock()
	if ok {
		return col, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Double-check after acquiring write lock
	if col, ok := d.collections[scope]; ok {
		return col, nil
	}

	// Embeddings are always supplied, so no embedding func is needed.
	col, err := d.db.GetOrCreateCollection(d.collectionName(scope), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	d.collections[scope] = col
	return col, nil
}

// Add stores documents. Ids already present in their scope are skipped.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s: %w", doc.ID, vector.ErrEmptyEmbedding)
		}

		col, err := d.collection(doc.Scope)
		if err != nil {
			return err
		}

		if _, err := col.GetByID(ctx, doc.ID); err == nil {
			continue
		}

		embedding := make([]float32, len(doc.Embedding))
		copy(embedding, doc.Embedding)

		err = col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Embedding: embedding,
			Metadata: map[string]string{
				metaScope:     doc.Scope,
				metaCreatedAt: strconv.FormatInt(doc.CreatedAt.UnixNano(), 10),
				metaEmbedding: vector.EncodeBase64(doc.Embedding),
			},
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}

	d.logger.Debug("added documents to chromem", "count", len(docs))
	return nil
}

// Query scores every document of the scope and returns the best topK.
func (d *Driver) Query(ctx context.Context, embedding []float32, scope string, topK int) ([]vector.QueryResult, error) {
	if len(embedding) == 0 {
		return nil, vector.ErrEmptyEmbedding
	}
	if topK <= 0 {
		topK = 10
	}

	col, err := d.collection(scope)
	if err != nil {
		return nil, err
	}

	// chromem-go requires nResults <= collection size. Asking for the whole
	// scope lets ties on the cut-off be broken by recency.
	n := col.Count()
	if n == 0 {
		return []vector.QueryResult{}, nil
	}

	raw, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(raw))
	for _, r := range raw {
		doc, err := toDocument(r.ID, r.Content, r.Metadata)
		if err != nil {
			d.logger.Warn("skipping unreadable chromem document", "id", r.ID, "error", err)
			continue
		}
		results = append(results, vector.QueryResult{Document: doc, Score: r.Similarity})
	}

	return vector.Top(results, topK), nil
}

// Get looks ids up across every collection of the index.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	prefix := d.index + "/"
	var docs []vector.Document
	for name, col := range d.db.ListCollections() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		for _, id := range ids {
			stored, err := col.GetByID(ctx, id)
			if err != nil {
				continue
			}
			doc, err := toDocument(stored.ID, stored.Content, stored.Metadata)
			if err != nil {
				return nil, fmt.Errorf("reading document %s: %w", id, err)
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Close releases resources held by the driver. Persistent databases have
// already written every document, so there is nothing to flush.
func (d *Driver) Close() error {
	return nil
}

func toDocument(id, content string, meta map[string]string) (vector.Document, error) {
	created, err := strconv.ParseInt(meta[metaCreatedAt], 10, 64)
	if err != nil {
		return vector.Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	embedding, err := vector.DecodeBase64(meta[metaEmbedding])
	if err != nil {
		return vector.Document{}, err
	}
	return vector.Document{
		ID:        id,
		Scope:     meta[metaScope],
		Text:      content,
		Embedding: embedding,
		CreatedAt: time.Unix(0, created).UTC(),
	}, nil
}
