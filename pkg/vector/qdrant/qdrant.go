// Package qdrant provides a vector driver backed by a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/vector"
)

const (
	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	// DefaultCollectionPrefix names collections when Config.Collection is empty.
	DefaultCollectionPrefix = "cogniweave"

	payloadDocID     = "doc_id"
	payloadScope     = "scope"
	payloadText      = "text"
	payloadCreatedAt = "created_at"
	payloadEmbedding = "embedding"
)

// pointNamespace derives stable point ids from document ids, since Qdrant
// only accepts UUIDs and integers.
var pointNamespace = uuid.MustParse("6f1c2a1e-43b4-4f0a-9d8e-7a51c3c0b0de")

// Config holds configuration for the Qdrant driver.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// Collection prefixes the per-dimension collections.
	Collection string
}

// Driver implements vector.Driver using Qdrant.
type Driver struct {
	client *qdrant.Client
	prefix string
	logger *slog.Logger

	mu    sync.Mutex
	ready map[int]bool
}

// NewDriver connects to Qdrant.
func NewDriver(c Config, log *slog.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	log = logger.OrNop(log)

	if c.Port == 0 {
		c.Port = DefaultPort
	}
	prefix := c.Collection
	if prefix == "" {
		prefix = DefaultCollectionPrefix
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant %s:%d: %v", vector.ErrConnection, c.Host, c.Port, err)
	}

	log.Info("connected to Qdrant", "host", c.Host, "port", c.Port, "collection", prefix)

	return &Driver{
		client: client,
		prefix: prefix,
		logger: log,
		ready:  make(map[int]bool),
	}, nil
}

// PointID maps a document id to the UUID stored in Qdrant.
func PointID(docID string) string {
	if id, err := uuid.Parse(docID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// A collection only holds vectors of a single size.
func (d *Driver) collectionName(dims int) string {
	return fmt.Sprintf("%s_%d", d.prefix, dims)
}

func (d *Driver) ensureCollection(ctx context.Context, dims int) (string, error) {
	name := d.collectionName(dims)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready[dims] {
		return name, nil
	}

	exists, err := d.client.CollectionExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("checking collection %s: %w", name, err)
	}
	if !exists {
		err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return "", fmt.Errorf("creating collection %s: %w", name, err)
		}
		d.logger.Info("created qdrant collection", "collection", name, "dims", dims)
	}

	d.ready[dims] = true
	return name, nil
}

// Add upserts documents, skipping ids that already exist.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	byDims := make(map[int][]vector.Document)
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %s: %w", doc.ID, vector.ErrEmptyEmbedding)
		}
		byDims[len(doc.Embedding)] = append(byDims[len(doc.Embedding)], doc)
	}

	for dims, group := range byDims {
		name, err := d.ensureCollection(ctx, dims)
		if err != nil {
			return err
		}

		ids := make([]*qdrant.PointId, len(group))
		for i, doc := range group {
			ids[i] = qdrant.NewID(PointID(doc.ID))
		}
		existing, err := d.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: name,
			Ids:            ids,
		})
		if err != nil {
			return fmt.Errorf("checking existing points: %w", err)
		}
		seen := make(map[string]bool, len(existing))
		for _, p := range existing {
			seen[p.GetId().GetUuid()] = true
		}

		var points []*qdrant.PointStruct
		for _, doc := range group {
			pid := PointID(doc.ID)
			if seen[pid] {
				continue
			}
			seen[pid] = true

			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(pid),
				Vectors: qdrant.NewVectors(doc.Embedding...),
				Payload: map[string]*qdrant.Value{
					payloadDocID:     qdrant.NewValueString(doc.ID),
					payloadScope:     qdrant.NewValueString(doc.Scope),
					payloadText:      qdrant.NewValueString(doc.Text),
					payloadCreatedAt: qdrant.NewValueInt(doc.CreatedAt.UnixNano()),
					payloadEmbedding: qdrant.NewValueString(vector.EncodeBase64(doc.Embedding)),
				},
			})
		}
		if len(points) == 0 {
			continue
		}

		_, err = d.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("upserting points: %w", err)
		}
		d.logger.Debug("added documents to qdrant", "collection", name, "count", len(points))
	}
	return nil
}

// Query searches the scope's documents of the embedding's dimension.
func (d *Driver) Query(ctx context.Context, embedding []float32, scope string, topK int) ([]vector.QueryResult, error) {
	if len(embedding) == 0 {
		return nil, vector.ErrEmptyEmbedding
	}
	if topK <= 0 {
		topK = 10
	}

	name, err := d.ensureCollection(ctx, len(embedding))
	if err != nil {
		return nil, err
	}

	// Over-fetch so equal scores at the cut-off can be ordered by recency.
	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadScope, scope),
			},
		},
		Limit:       qdrant.PtrOf(uint64(topK * 2)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		doc, err := fromPayload(p.GetPayload())
		if err != nil {
			d.logger.Warn("skipping unreadable qdrant point", "id", p.GetId().GetUuid(), "error", err)
			continue
		}
		results = append(results, vector.QueryResult{Document: doc, Score: p.GetScore()})
	}
	return vector.Top(results, topK), nil
}

// Get retrieves documents by id from every collection known to this driver.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(PointID(id))
	}

	collections, err := d.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	var docs []vector.Document
	for _, name := range collections {
		if !d.owns(name) {
			continue
		}
		points, err := d.client.Get(ctx, &qdrant.GetPoints{
			CollectionName: name,
			Ids:            pointIDs,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("getting points from %s: %w", name, err)
		}
		for _, p := range points {
			doc, err := fromPayload(p.GetPayload())
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (d *Driver) owns(collection string) bool {
	var dims int
	_, err := fmt.Sscanf(collection, d.prefix+"_%d", &dims)
	return err == nil && collection == d.collectionName(dims)
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

func fromPayload(payload map[string]*qdrant.Value) (vector.Document, error) {
	embedding, err := vector.DecodeBase64(payload[payloadEmbedding].GetStringValue())
	if err != nil {
		return vector.Document{}, err
	}
	return vector.Document{
		ID:        payload[payloadDocID].GetStringValue(),
		Scope:     payload[payloadScope].GetStringValue(),
		Text:      payload[payloadText].GetStringValue(),
		Embedding: embedding,
		CreatedAt: time.Unix(0, payload[payloadCreatedAt].GetIntegerValue()).UTC(),
	}, nil
}
