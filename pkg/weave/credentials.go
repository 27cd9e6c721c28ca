package weave

import (
	"fmt"

	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/credentials"
)

// KeyLookup resolves a provider's API key. credentials.Manager implements it.
type KeyLookup interface {
	Lookup(provider string) (string, error)
}

var _ KeyLookup = (*credentials.Manager)(nil)

// WithCredentials returns a copy of cfg in which every API key left empty
// for a keyed provider is filled from keys. Keys set in the config win.
func WithCredentials(cfg *config.Config, keys KeyLookup) (*config.Config, error) {
	out := *cfg
	if keys == nil {
		return &out, nil
	}

	fill := func(provider string, target *string) error {
		if *target != "" || !credentials.IsSupportedProvider(provider) {
			return nil
		}
		key, err := keys.Lookup(provider)
		if err != nil {
			return fmt.Errorf("looking up %s credentials: %w", provider, err)
		}
		*target = key
		return nil
	}

	if err := fill(out.Agent.Provider, &out.Agent.APIKey); err != nil {
		return nil, err
	}
	if err := fill(out.Embedding.Provider, &out.Embedding.APIKey); err != nil {
		return nil, err
	}
	if err := fill(out.VectorStore.Provider, &out.VectorStore.APIKey); err != nil {
		return nil, err
	}
	return &out, nil
}
