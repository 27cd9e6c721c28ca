// Package configcmder provides the config command for managing persistent
// cogniweave configuration stored in the .cogniweave/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/cogniweave/pkg/config"
)

const configLongDesc string = `Manage persistent cogniweave configuration.

Configuration is stored as config.toml in the .cogniweave/ directory and
provides default values for command flags. CLI flags and COGNIWEAVE_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  index, folder, language,
  storage.provider, storage.sqlite_path,
  agent.provider, agent.model,
  end_detector.provider, end_detector.policy,
  memory.top_k, session.gap, api.listen

Use subcommands to get, set, or list configuration values:
  cogniweave config set <key> <value>    Set a configuration value
  cogniweave config get <key>            Get a configuration value
  cogniweave config list                 List all configuration values

Examples:
  cogniweave config set agent.provider anthropic
  cogniweave config set session.gap 45m
  cogniweave config get memory.top_k
  cogniweave config list`

const configShortDesc string = "Manage persistent cogniweave configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// display renders a value for output, hiding credentials.
func display(key, value string) string {
	if value != "" && config.IsSecretKey(key) {
		return "********"
	}
	return value
}
