// Package credentials stores provider API keys in credentials.toml inside the
// .cogniweave/ directory, so they stay out of config.toml.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"maps"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/cogniweave/pkg/dotdir"
)

const (
	currentVersion = 0
)

// providerEnvVars maps provider names to the environment variable that can
// carry their key instead.
var providerEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"qdrant":    "QDRANT_API_KEY",
}

// Credentials is the content of credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential holds the API key of one provider.
type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}

// Manager reads and writes credentials.toml.
type Manager struct {
	targetPath string
	getenv     func(string) string
}

// NewManager creates a Manager for the .cogniweave/ directory resolved from
// override the same way every command resolves it.
func NewManager(override string) (*Manager, error) {
	path, err := dotdir.NewManager().Path(override, dotdir.CredentialsFile)
	if err != nil {
		return nil, err
	}

	return &Manager{
		targetPath: path,
		getenv:     os.Getenv,
	}, nil
}

// Load reads credentials.toml from the target directory.
// Returns an empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{
				Version:   currentVersion,
				Providers: make(map[string]ProviderCredential),
			}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetKey stores an API key for a supported provider.
func (m *Manager) SetKey(provider, key string) error {
	if !IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider %q", provider)
	}
	return m.update(func(c *Credentials) {
		c.Providers[provider] = ProviderCredential{APIKey: key}
	})
}

// update applies fn to the stored credentials and writes them back.
func (m *Manager) update(fn func(*Credentials)) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}
	fn(creds)
	return m.Save(creds)
}

// GetKey returns the stored API key for the given provider, or an empty
// string when none is stored.
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Providers[provider].APIKey, nil
}

// Lookup returns the key to use for a provider: its environment variable
// when set, otherwise the stored key.
func (m *Manager) Lookup(provider string) (string, error) {
	if env := EnvVarForProvider(provider); env != "" {
		if v := m.getenv(env); v != "" {
			return v, nil
		}
	}
	return m.GetKey(provider)
}

// RemoveKey deletes the stored credential for a provider.
func (m *Manager) RemoveKey(provider string) error {
	return m.update(func(c *Credentials) { delete(c.Providers, provider) })
}

// ListProviders returns the names of providers that have stored
// credentials, sorted.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(creds.Providers)), nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// EnvVarForProvider returns the environment variable name for a given provider.
// Returns an empty string for unknown providers.
func EnvVarForProvider(provider string) string {
	return providerEnvVars[provider]
}

// SupportedProviders returns the list of providers that take API keys.
func SupportedProviders() []string {
	return []string{"anthropic", "openai", "qdrant"}
}

// IsSupportedProvider returns true if the given provider is supported.
func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}
