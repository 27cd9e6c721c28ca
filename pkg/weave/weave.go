// Package weave assembles a ready to use pipeline, and everything it
// depends on, from a loaded config.Config.
package weave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/cogniweave/pkg/embeddings/utils"
	"github.com/papercomputeco/cogniweave/pkg/eventstream"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/memory"
	"github.com/papercomputeco/cogniweave/pkg/metrics"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/segment"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
	vectorutils "github.com/papercomputeco/cogniweave/pkg/vector/utils"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "cogniweave"

// Options carries what the config file cannot.
type Options struct {
	// Dir is the .cogniweave directory, used as the storage folder when the
	// config leaves it empty.
	Dir string

	// Registry receives the pipeline metrics. Nil disables them.
	Registry *prometheus.Registry

	// Service names the process in published turn events.
	Service string

	// Credentials fills API keys the config leaves empty.
	Credentials KeyLookup

	Logger *slog.Logger
}

// Stack owns every component built for one pipeline. Close releases them
// in reverse dependency order.
type Stack struct {
	Pipeline  *runnable.SessionPipeline
	History   storage.Driver
	Tags      *tagstore.Store
	Embedder  embeddings.Embedder
	Publisher eventstream.Publisher
	Metrics   *metrics.Metrics

	pool *memory.Pool
}

// Build wires the history store, long memory, end detector, extractor,
// event publisher and agent described by cfg into a session pipeline.
// Components built before a failure are closed before Build returns.
func Build(ctx context.Context, cfg *config.Config, opts Options) (_ *Stack, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	log := logger.OrNop(opts.Logger)

	cfg, err = WithCredentials(cfg, opts.Credentials)
	if err != nil {
		return nil, err
	}

	s := &Stack{}
	defer func() {
		if err != nil {
			_ = s.Close(context.WithoutCancel(ctx))
		}
	}()

	folder, err := ResolveFolder(cfg, opts.Dir)
	if err != nil {
		return nil, err
	}

	if opts.Registry != nil {
		s.Metrics = metrics.New(MetricsNamespace, opts.Registry)
	}

	history, err := NewHistory(ctx, cfg, folder)
	if err != nil {
		return nil, err
	}
	s.History = history
	log.Debug("history store ready", "provider", cfg.Storage.Provider)

	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: cfg.Embedding.Provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
		Dimensions:   int(cfg.Embedding.Dimensions),
		CacheEntries: int64(cfg.Embedding.CacheEntries),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	s.Embedder = embedder

	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    vectorTarget(cfg, folder),
		Index:        cfg.Index,
		APIKey:       cfg.VectorStore.APIKey,
		Logger:       log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	tags, err := tagstore.New(tagstore.Config{
		Driver:   driver,
		AutoSave: cfg.VectorStore.AutoSave,
		Logger:   log,
	})
	if err != nil {
		_ = driver.Close()
		return nil, err
	}
	s.Tags = tags
	log.Debug("tag store ready", "provider", cfg.VectorStore.Provider, "auto_save", cfg.VectorStore.AutoSave)

	extractor, err := NewExtractor(cfg, log)
	if err != nil {
		return nil, err
	}
	if extractor != nil {
		pool, err := memory.NewPool(memory.PoolConfig{
			NumWorkers: cfg.Memory.Workers,
			QueueSize:  cfg.Memory.QueueSize,
			Logger:     log,
		})
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}

	detector, err := NewDetector(cfg, log)
	if err != nil {
		return nil, err
	}

	agent, err := NewAgent(cfg, log)
	if err != nil {
		return nil, err
	}

	publisher, err := NewPublisher(cfg, log)
	if err != nil {
		return nil, err
	}
	s.Publisher = publisher

	service := opts.Service
	if service == "" {
		service = "cogniweave"
	}

	pipeline, err := runnable.NewPipeline(runnable.Config{
		Agent:         agent,
		History:       s.History,
		Tags:          s.Tags,
		Embedder:      s.Embedder,
		Extractor:     extractor,
		Pool:          s.pool,
		Detector:      detector,
		Splitter:      segment.NewSplitter(cfg.Session.GapDuration()),
		HistoryLimit:  int(cfg.Session.HistoryLimit),
		ShortMemory:   int(cfg.Memory.ShortMemory),
		TopK:          int(cfg.Memory.TopK),
		IncludeGlobal: cfg.Memory.IncludeGlobal,
		Publisher:     s.Publisher,
		Source: eventstream.EventSource{
			Service: service,
			Index:   cfg.Index,
			Agent:   cfg.Agent.Provider + "/" + cfg.Agent.Model,
		},
		Metrics: s.Metrics,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	s.Pipeline = pipeline

	return s, nil
}

// Close drains pending memory writes, flushes buffered tags and releases
// every store. All components are closed even when one of them fails.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error

	if s.pool != nil {
		s.pool.Close()
	}
	if s.Tags != nil {
		if err := s.Tags.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Embedder != nil {
		if err := s.Embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder: %w", err))
		}
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing publisher: %w", err))
		}
	}
	if s.History != nil {
		if err := s.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing history store: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ResolveFolder picks the folder holding local database files and makes
// sure it exists.
func ResolveFolder(cfg *config.Config, dir string) (string, error) {
	folder := cfg.Folder
	if folder == "" {
		folder = dir
	}
	if folder == "" {
		folder = "."
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("creating storage folder: %w", err)
	}
	return folder, nil
}

func vectorTarget(cfg *config.Config, folder string) string {
	if cfg.VectorStore.Target != "" {
		return cfg.VectorStore.Target
	}
	switch cfg.VectorStore.Provider {
	case vectorutils.ProviderSQLite, "":
		return filepath.Join(folder, cfg.Index+"_tags.sqlite")
	case vectorutils.ProviderChromem:
		return filepath.Join(folder, cfg.Index+"_tags.chromem")
	case vectorutils.ProviderQdrant:
		return "localhost"
	case vectorutils.ProviderChroma:
		return "http://localhost:8000"
	default:
		return ""
	}
}
