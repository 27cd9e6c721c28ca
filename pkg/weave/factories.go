package weave

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/eventstream"
	"github.com/papercomputeco/cogniweave/pkg/eventstream/kafka"
	"github.com/papercomputeco/cogniweave/pkg/eventstream/nop"
	"github.com/papercomputeco/cogniweave/pkg/llm"
	"github.com/papercomputeco/cogniweave/pkg/llm/anthropic"
	"github.com/papercomputeco/cogniweave/pkg/llm/ollama"
	"github.com/papercomputeco/cogniweave/pkg/memory"
	"github.com/papercomputeco/cogniweave/pkg/memory/local"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/storage/inmemory"
	"github.com/papercomputeco/cogniweave/pkg/storage/postgres"
	"github.com/papercomputeco/cogniweave/pkg/storage/sqlite"
)

// kafkaWriteTimeout bounds a single publish.
const kafkaWriteTimeout = 5 * time.Second

// SQLitePath returns the history database path: the configured override,
// or <folder>/<index>.sqlite.
func SQLitePath(cfg *config.Config, folder string) string {
	if cfg.Storage.SQLitePath != "" {
		return cfg.Storage.SQLitePath
	}
	return filepath.Join(folder, cfg.Index+".sqlite")
}

// NewHistory opens the configured history store.
func NewHistory(ctx context.Context, cfg *config.Config, folder string) (storage.Driver, error) {
	switch cfg.Storage.Provider {
	case "sqlite", "":
		driver, err := sqlite.NewSQLiteDriver(ctx, SQLitePath(cfg, folder))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite history: %w", err)
		}
		return driver, nil
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage.postgres_dsn is required for the postgres history store")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres history: %w", err)
		}
		return driver, nil
	case "memory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Storage.Provider)
	}
}

func promptConfig(cfg *config.Config) llm.PromptConfig {
	return llm.PromptConfig{
		Language: llm.ParseLanguage(cfg.Language),
		Persona:  cfg.Agent.Persona,
	}
}

func anthropicConfig(cfg *config.Config, model string, log *slog.Logger) anthropic.Config {
	return anthropic.Config{
		APIKey:    cfg.Agent.APIKey,
		BaseURL:   cfg.Agent.Target,
		Model:     model,
		MaxTokens: int64(cfg.Agent.MaxTokens),
		Prompt:    promptConfig(cfg),
		Logger:    log,
	}
}

func ollamaConfig(cfg *config.Config, model string, log *slog.Logger) ollama.Config {
	target := cfg.Agent.Target
	if target == "" && cfg.Embedding.Provider == "ollama" {
		target = cfg.Embedding.Target
	}
	return ollama.Config{
		BaseURL: target,
		Model:   model,
		Prompt:  promptConfig(cfg),
		Logger:  log,
	}
}

// helperModel is the model used by model-backed detectors and extractors:
// the detector override when set, otherwise the agent model when both use
// the same provider.
func helperModel(cfg *config.Config, provider string) string {
	if cfg.EndDetector.Model != "" {
		return cfg.EndDetector.Model
	}
	if cfg.Agent.Provider == provider {
		return cfg.Agent.Model
	}
	return ""
}

// NewAgent builds the model that answers.
func NewAgent(cfg *config.Config, log *slog.Logger) (runnable.Agent, error) {
	switch cfg.Agent.Provider {
	case "ollama", "":
		return ollama.NewAgent(ollamaConfig(cfg, cfg.Agent.Model, log)), nil
	case "anthropic":
		return anthropic.NewAgent(anthropicConfig(cfg, cfg.Agent.Model, log)), nil
	default:
		return nil, fmt.Errorf("unsupported agent provider: %s", cfg.Agent.Provider)
	}
}

// NewDetector builds the end-of-turn detector with its failure policy and
// fragment separator.
func NewDetector(cfg *config.Config, log *slog.Logger) (*enddetect.Detector, error) {
	var classifier enddetect.Classifier
	switch cfg.EndDetector.Provider {
	case "rules", "":
		classifier = enddetect.NewRules()
	case "off":
		classifier = enddetect.Always(enddetect.Complete)
	case "ollama":
		classifier = ollama.NewClassifier(ollamaConfig(cfg, helperModel(cfg, "ollama"), log))
	case "anthropic":
		classifier = anthropic.NewClassifier(anthropicConfig(cfg, helperModel(cfg, "anthropic"), log))
	default:
		return nil, fmt.Errorf("unsupported end detector: %s", cfg.EndDetector.Provider)
	}

	opts := []enddetect.Option{
		enddetect.WithSeparator(cfg.EndDetector.Separator),
		enddetect.WithLogger(log),
	}
	switch cfg.EndDetector.Policy {
	case "open", "":
	case "closed":
		opts = append(opts, enddetect.WithFailClosed())
	case "strict":
		opts = append(opts, enddetect.WithStrict())
	default:
		return nil, fmt.Errorf("unsupported end detector policy: %s", cfg.EndDetector.Policy)
	}

	return enddetect.New(classifier, opts...), nil
}

// NewExtractor builds the fact extractor. "none" disables memory
// write-back and returns nil.
func NewExtractor(cfg *config.Config, log *slog.Logger) (memory.Extractor, error) {
	switch cfg.Memory.Extractor {
	case "local", "":
		return local.NewExtractor(local.Config{}), nil
	case "none":
		return nil, nil
	case "ollama":
		return ollama.NewExtractor(ollamaConfig(cfg, helperModel(cfg, "ollama"), log)), nil
	case "anthropic":
		return anthropic.NewExtractor(anthropicConfig(cfg, helperModel(cfg, "anthropic"), log)), nil
	default:
		return nil, fmt.Errorf("unsupported memory extractor: %s", cfg.Memory.Extractor)
	}
}

// NewPublisher builds the turn event publisher.
func NewPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "none", "":
		return nop.NewPublisher(), nil
	case "kafka":
		publisher, err := kafka.NewPublisher(kafka.Config{
			Brokers:      cfg.EventStream.BrokerList(),
			Topic:        cfg.EventStream.Topic,
			WriteTimeout: kafkaWriteTimeout,
			Logger:       log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return publisher, nil
	default:
		return nil, fmt.Errorf("unsupported event stream provider: %s", cfg.EventStream.Provider)
	}
}
