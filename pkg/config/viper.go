package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/cogniweave/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. COGNIWEAVE_API_LISTEN.
const EnvPrefix = "COGNIWEAVE"

// Provider/model reference variables.
const (
	EnvAgentModel      = "AGENT_MODEL"
	EnvChatModel       = "CHAT_MODEL"
	EnvEmbeddingsModel = "EMBEDDINGS_MODEL"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), layers the provider/model reference
// variables over the file and binds environment variables with the
// COGNIWEAVE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (COGNIWEAVE_API_LISTEN, COGNIWEAVE_AGENT_MODEL, etc.)
//  3. AGENT_MODEL / CHAT_MODEL / EMBEDDINGS_MODEL references
//  4. config.toml file values
//  5. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.MergeConfigMap(modelRefOverrides(os.Getenv)); err != nil {
		return nil, fmt.Errorf("applying model references: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// modelRefOverrides maps provider/model references onto config sections.
// AGENT_MODEL wins over CHAT_MODEL for the answering agent.
func modelRefOverrides(getenv func(string) string) map[string]any {
	out := map[string]any{}

	for _, key := range []string{EnvChatModel, EnvAgentModel} {
		if provider, model, ok := ParseModelRef(getenv(key)); ok {
			out["agent"] = map[string]any{"provider": provider, "model": model}
		}
	}
	if provider, model, ok := ParseModelRef(getenv(EnvEmbeddingsModel)); ok {
		out["embedding"] = map[string]any{"provider": provider, "model": model}
	}

	return out
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	for _, key := range keyOrder {
		v.SetDefault(key, configKeys[key].get(d))
	}
}

// FromViper resolves every config key through the viper precedence chain
// into a Config. Values that fail to parse are reported with their key.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()

	for _, key := range keyOrder {
		if err := configKeys[key].set(cfg, v.GetString(key)); err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)

	return cfg, nil
}

// Load resolves the config for a command: defaults, config.toml, the
// environment and the given registered flags of cmd, in increasing order
// of precedence.
func Load(cmd *cobra.Command, configDir string, flagKeys []string) (*Config, error) {
	v, err := InitViper(configDir)
	if err != nil {
		return nil, err
	}
	BindRegisteredFlags(v, cmd, Flags, flagKeys)
	return FromViper(v)
}
