package config

const (
	defaultIndex    = "demo"
	defaultLanguage = "zh"

	defaultStorageProvider = "sqlite"

	defaultVectorProvider = "sqlite"

	defaultOllamaTarget        = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingCache      = 4096

	defaultAgentProvider  = "ollama"
	defaultAgentModel     = "qwen3:8b"
	defaultAgentMaxTokens = 1024

	defaultDetectorProvider = "rules"
	defaultDetectorPolicy   = "open"

	defaultExtractor   = "local"
	defaultWorkers     = 2
	defaultQueueSize   = 256
	defaultTopK        = 3
	defaultShortMemory = 4

	defaultGap          = "30m"
	defaultHistoryLimit = 40

	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultEventStreamProvider = "none"
	defaultEventStreamTopic    = "cogniweave.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version:  CurrentV,
		Index:    defaultIndex,
		Language: defaultLanguage,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
			AutoSave: true,
		},
		Embedding: EmbeddingConfig{
			Provider:     "ollama",
			Target:       defaultOllamaTarget,
			Model:        defaultEmbeddingModel,
			Dimensions:   defaultEmbeddingDimensions,
			CacheEntries: defaultEmbeddingCache,
		},
		Agent: AgentConfig{
			Provider:  defaultAgentProvider,
			Target:    defaultOllamaTarget,
			Model:     defaultAgentModel,
			MaxTokens: defaultAgentMaxTokens,
		},
		EndDetector: EndDetectorConfig{
			Provider: defaultDetectorProvider,
			Policy:   defaultDetectorPolicy,
		},
		Memory: MemoryConfig{
			Extractor:   defaultExtractor,
			Workers:     defaultWorkers,
			QueueSize:   defaultQueueSize,
			TopK:        defaultTopK,
			ShortMemory: defaultShortMemory,
		},
		Session: SessionConfig{
			Gap:          defaultGap,
			HistoryLimit: defaultHistoryLimit,
		},
		API: APIConfig{
			Listen:  defaultAPIListen,
			Metrics: true,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}
