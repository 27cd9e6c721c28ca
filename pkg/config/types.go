package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent cogniweave configuration stored as
// config.toml in the .cogniweave/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int `toml:"version"`

	// Index names the history database, the vector collection and the
	// Kafka message key prefix.
	Index string `toml:"index,omitempty"`

	// Folder holds the SQLite files. Empty means the .cogniweave/ directory.
	Folder string `toml:"folder,omitempty"`

	// Language selects the prompt templates ("zh" or "en").
	Language string `toml:"language,omitempty"`

	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Agent       AgentConfig       `toml:"agent"`
	EndDetector EndDetectorConfig `toml:"end_detector"`
	Memory      MemoryConfig      `toml:"memory"`
	Session     SessionConfig     `toml:"session"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// StorageConfig selects the history store.
type StorageConfig struct {
	Provider string `toml:"provider,omitempty"`

	// SQLitePath overrides <folder>/<index>.sqlite.
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Target is a file path for sqlite, a directory for chromem, host:port
	// for qdrant and a URL for chroma. Empty selects a path under the folder.
	Target   string `toml:"target,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	AutoSave bool   `toml:"auto_save"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider     string `toml:"provider,omitempty"`
	Target       string `toml:"target,omitempty"`
	Model        string `toml:"model,omitempty"`
	Dimensions   uint   `toml:"dimensions,omitempty"`
	APIKey       string `toml:"api_key,omitempty"`
	CacheEntries uint   `toml:"cache_entries"`
}

// AgentConfig selects the model that answers.
type AgentConfig struct {
	Provider  string `toml:"provider,omitempty"`
	Target    string `toml:"target,omitempty"`
	Model     string `toml:"model,omitempty"`
	APIKey    string `toml:"api_key,omitempty"`
	MaxTokens uint   `toml:"max_tokens,omitempty"`

	// Persona replaces the built-in system prompt persona.
	Persona string `toml:"persona,omitempty"`
}

// EndDetectorConfig selects how the end gate judges buffered input.
type EndDetectorConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Model overrides the agent model for model-backed detectors.
	Model     string `toml:"model,omitempty"`
	Policy    string `toml:"policy,omitempty"`
	Separator string `toml:"separator,omitempty"`
}

// MemoryConfig holds memory layer settings.
type MemoryConfig struct {
	Extractor     string `toml:"extractor,omitempty"`
	Workers       uint   `toml:"workers"`
	QueueSize     uint   `toml:"queue_size,omitempty"`
	TopK          uint   `toml:"top_k,omitempty"`
	ShortMemory   uint   `toml:"short_memory"`
	IncludeGlobal bool   `toml:"include_global"`
}

// SessionConfig holds history and segmentation settings.
type SessionConfig struct {
	// Gap is a Go duration string, e.g. "30m".
	Gap          string `toml:"gap,omitempty"`
	HistoryLimit uint   `toml:"history_limit,omitempty"`
}

// GapDuration parses Gap, returning zero when it is malformed.
func (s SessionConfig) GapDuration() time.Duration {
	d, err := time.ParseDuration(s.Gap)
	if err != nil {
		return 0
	}
	return d
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen  string `toml:"listen,omitempty"`
	Metrics bool   `toml:"metrics"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// API server (e.g. cogniweave chat). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// EventStreamConfig selects where turn events are published.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated host:port list.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// BrokerList splits Brokers on commas.
func (e EventStreamConfig) BrokerList() []string {
	var out []string
	for b := range strings.SplitSeq(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

// enumKey accepts one of allowed. An empty value falls back to the default
// on the next load.
func enumKey(name string, field func(c *Config) *string, allowed ...string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			v = strings.ToLower(strings.TrimSpace(v))
			if v != "" && !slices.Contains(allowed, v) {
				return fmt.Errorf("invalid value for %s: %q (allowed: %s)", name, v, strings.Join(allowed, ", "))
			}
			*field(c) = v
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatUint(uint64(*field(c)), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			v = strings.TrimSpace(v)
			if v == "" {
				*field(c) = ""
				return nil
			}
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if d < 0 {
				return fmt.Errorf("invalid value for %s: negative duration", name)
			}
			*field(c) = v
			return nil
		},
	}
}

// Allowed provider names per section.
var (
	LanguageNames        = []string{"zh", "en"}
	StorageProviders     = []string{"sqlite", "postgres", "memory"}
	VectorStoreProviders = []string{"sqlite", "chromem", "qdrant", "chroma"}
	EmbeddingProviders   = []string{"ollama", "openai"}
	AgentProviders       = []string{"ollama", "anthropic"}
	EndDetectorProviders = []string{"rules", "ollama", "anthropic", "off"}
	EndDetectorPolicies  = []string{"open", "closed", "strict"}
	ExtractorProviders   = []string{"local", "ollama", "anthropic", "none"}
	EventStreamProviders = []string{"none", "kafka"}
)

// keyOrder lists every supported key in the TOML section layout order.
var keyOrder = []string{
	"index",
	"folder",
	"language",
	"storage.provider",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.api_key",
	"vector_store.auto_save",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.api_key",
	"embedding.cache_entries",
	"agent.provider",
	"agent.target",
	"agent.model",
	"agent.api_key",
	"agent.max_tokens",
	"agent.persona",
	"end_detector.provider",
	"end_detector.model",
	"end_detector.policy",
	"end_detector.separator",
	"memory.extractor",
	"memory.workers",
	"memory.queue_size",
	"memory.top_k",
	"memory.short_memory",
	"memory.include_global",
	"session.gap",
	"session.history_limit",
	"api.listen",
	"api.metrics",
	"client.api_target",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
}

// secretKeys are masked by "config list".
var secretKeys = map[string]bool{
	"vector_store.api_key": true,
	"embedding.api_key":    true,
	"agent.api_key":        true,
	"storage.postgres_dsn": true,
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"index":    stringKey(func(c *Config) *string { return &c.Index }),
	"folder":   stringKey(func(c *Config) *string { return &c.Folder }),
	"language": enumKey("language", func(c *Config) *string { return &c.Language }, LanguageNames...),

	"storage.provider":     enumKey("storage.provider", func(c *Config) *string { return &c.Storage.Provider }, StorageProviders...),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"vector_store.provider":  enumKey("vector_store.provider", func(c *Config) *string { return &c.VectorStore.Provider }, VectorStoreProviders...),
	"vector_store.target":    stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.api_key":   stringKey(func(c *Config) *string { return &c.VectorStore.APIKey }),
	"vector_store.auto_save": boolKey("vector_store.auto_save", func(c *Config) *bool { return &c.VectorStore.AutoSave }),

	"embedding.provider":      enumKey("embedding.provider", func(c *Config) *string { return &c.Embedding.Provider }, EmbeddingProviders...),
	"embedding.target":        stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":         stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":    uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"embedding.api_key":       stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.cache_entries": uintKey("embedding.cache_entries", func(c *Config) *uint { return &c.Embedding.CacheEntries }),

	"agent.provider":   enumKey("agent.provider", func(c *Config) *string { return &c.Agent.Provider }, AgentProviders...),
	"agent.target":     stringKey(func(c *Config) *string { return &c.Agent.Target }),
	"agent.model":      stringKey(func(c *Config) *string { return &c.Agent.Model }),
	"agent.api_key":    stringKey(func(c *Config) *string { return &c.Agent.APIKey }),
	"agent.max_tokens": uintKey("agent.max_tokens", func(c *Config) *uint { return &c.Agent.MaxTokens }),
	"agent.persona":    stringKey(func(c *Config) *string { return &c.Agent.Persona }),

	"end_detector.provider":  enumKey("end_detector.provider", func(c *Config) *string { return &c.EndDetector.Provider }, EndDetectorProviders...),
	"end_detector.model":     stringKey(func(c *Config) *string { return &c.EndDetector.Model }),
	"end_detector.policy":    enumKey("end_detector.policy", func(c *Config) *string { return &c.EndDetector.Policy }, EndDetectorPolicies...),
	"end_detector.separator": stringKey(func(c *Config) *string { return &c.EndDetector.Separator }),

	"memory.extractor":      enumKey("memory.extractor", func(c *Config) *string { return &c.Memory.Extractor }, ExtractorProviders...),
	"memory.workers":        uintKey("memory.workers", func(c *Config) *uint { return &c.Memory.Workers }),
	"memory.queue_size":     uintKey("memory.queue_size", func(c *Config) *uint { return &c.Memory.QueueSize }),
	"memory.top_k":          uintKey("memory.top_k", func(c *Config) *uint { return &c.Memory.TopK }),
	"memory.short_memory":   uintKey("memory.short_memory", func(c *Config) *uint { return &c.Memory.ShortMemory }),
	"memory.include_global": boolKey("memory.include_global", func(c *Config) *bool { return &c.Memory.IncludeGlobal }),

	"session.gap":           durationKey("session.gap", func(c *Config) *string { return &c.Session.Gap }),
	"session.history_limit": uintKey("session.history_limit", func(c *Config) *uint { return &c.Session.HistoryLimit }),

	"api.listen":  stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.metrics": boolKey("api.metrics", func(c *Config) *bool { return &c.API.Metrics }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"eventstream.provider": enumKey("eventstream.provider", func(c *Config) *string { return &c.EventStream.Provider }, EventStreamProviders...),
	"eventstream.brokers":  stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
}
