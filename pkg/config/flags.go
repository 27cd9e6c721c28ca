package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --index
// on "cogniweave serve", "cogniweave demo" and "cogniweave history").
type Flag struct {
	// Name is the long flag name (e.g. "index").
	Name string

	// Shorthand is the one-letter short flag (e.g. "i"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "index").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag, AddBoolFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagIndex           = "index"
	FlagFolder          = "folder"
	FlagLanguage        = "language"
	FlagStorage         = "storage"
	FlagSQLite          = "sqlite"
	FlagPostgres        = "postgres"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingTgt    = "embedding-target"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagAgentProvider   = "agent-provider"
	FlagAgentTarget     = "agent-target"
	FlagAgentModel      = "agent-model"
	FlagEndDetector     = "end-detector"
	FlagDetectorPolicy  = "detector-policy"
	FlagExtractor       = "extractor"
	FlagGap             = "gap"
	FlagHistoryLimit    = "history-limit"
	FlagTopK            = "top-k"
	FlagListen          = "listen"
	FlagMetrics         = "metrics"
	FlagAPITarget       = "api-target"
	FlagEventStream     = "eventstream"
	FlagKafkaBrokers    = "kafka-brokers"
)

// Flags is the registry shared by every cogniweave command.
var Flags = FlagSet{
	FlagIndex:           {Name: "index", Shorthand: "i", ViperKey: "index", Description: "Index name for the history database and vector collection"},
	FlagFolder:          {Name: "folder", Shorthand: "f", ViperKey: "folder", Description: "Folder holding the SQLite files (default: the .cogniweave directory)"},
	FlagLanguage:        {Name: "language", ViperKey: "language", Description: "Prompt language (zh, en)"},
	FlagStorage:         {Name: "storage", ViperKey: "storage.provider", Description: "History store (sqlite, postgres, memory)"},
	FlagSQLite:          {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite history database"},
	FlagPostgres:        {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string for the history store"},
	FlagVectorStoreProv: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store (sqlite, chromem, qdrant, chroma)"},
	FlagVectorStoreTgt:  {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store path, address or URL"},
	FlagEmbeddingProv:   {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, openai)"},
	FlagEmbeddingTgt:    {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:  {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:   {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensionality"},
	FlagAgentProvider:   {Name: "agent-provider", ViperKey: "agent.provider", Description: "Agent provider (ollama, anthropic)"},
	FlagAgentTarget:     {Name: "agent-target", ViperKey: "agent.target", Description: "Agent provider URL"},
	FlagAgentModel:      {Name: "agent-model", Shorthand: "m", ViperKey: "agent.model", Description: "Agent model name"},
	FlagEndDetector:     {Name: "end-detector", ViperKey: "end_detector.provider", Description: "End-of-turn detector (rules, ollama, anthropic, off)"},
	FlagDetectorPolicy:  {Name: "detector-policy", ViperKey: "end_detector.policy", Description: "Behavior when the detector fails (open, closed, strict)"},
	FlagExtractor:       {Name: "extractor", ViperKey: "memory.extractor", Description: "Long memory extractor (local, ollama, anthropic, none)"},
	FlagGap:             {Name: "gap", ViperKey: "session.gap", Description: "Silence that starts a new conversation segment"},
	FlagHistoryLimit:    {Name: "history-limit", ViperKey: "session.history_limit", Description: "Turns of history loaded per invocation"},
	FlagTopK:            {Name: "top-k", Shorthand: "k", ViperKey: "memory.top_k", Description: "Long memory facts recalled per invocation"},
	FlagListen:          {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagMetrics:         {Name: "metrics", ViperKey: "api.metrics", Description: "Expose prometheus metrics on /metrics"},
	FlagAPITarget:       {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "Cogniweave API server URL"},
	FlagEventStream:     {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Turn event publisher (none, kafka)"},
	FlagKafkaBrokers:    {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

func defaultsViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	return defaultsViper().GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	return defaultsViper().GetUint(viperKey)
}

func defaultBool(viperKey string) bool {
	return defaultsViper().GetBool(viperKey)
}

// PipelineFlags are the registry keys of every flag that shapes the
// pipeline built by "cogniweave serve" and "cogniweave demo".
var PipelineFlags = []string{
	FlagIndex,
	FlagFolder,
	FlagLanguage,
	FlagStorage,
	FlagSQLite,
	FlagPostgres,
	FlagVectorStoreProv,
	FlagVectorStoreTgt,
	FlagEmbeddingProv,
	FlagEmbeddingTgt,
	FlagEmbeddingModel,
	FlagEmbeddingDims,
	FlagAgentProvider,
	FlagAgentTarget,
	FlagAgentModel,
	FlagEndDetector,
	FlagDetectorPolicy,
	FlagExtractor,
	FlagGap,
	FlagHistoryLimit,
	FlagTopK,
	FlagEventStream,
	FlagKafkaBrokers,
}

var (
	uintFlags = map[string]bool{FlagEmbeddingDims: true, FlagHistoryLimit: true, FlagTopK: true}
	boolFlags = map[string]bool{FlagMetrics: true}
)

// AddFlags registers the given registry keys on cmd with the flag type of
// their config key. Values are read back through viper once bound with
// BindRegisteredFlags, so the flag targets are not exposed.
func AddFlags(cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, key := range registryKeys {
		switch {
		case uintFlags[key]:
			AddUintFlag(cmd, fs, key, new(uint))
		case boolFlags[key]:
			AddBoolFlag(cmd, fs, key, new(bool))
		default:
			AddStringFlag(cmd, fs, key, new(string))
		}
	}
}
