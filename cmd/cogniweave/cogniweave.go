// Package cogniweavecmder is the root of the cogniweave command tree.
package cogniweavecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/cogniweave/cmd/cogniweave/auth"
	chatcmder "github.com/papercomputeco/cogniweave/cmd/cogniweave/chat"
	configcmder "github.com/papercomputeco/cogniweave/cmd/cogniweave/config"
	democmder "github.com/papercomputeco/cogniweave/cmd/cogniweave/demo"
	historycmder "github.com/papercomputeco/cogniweave/cmd/cogniweave/history"
	initcmder "github.com/papercomputeco/cogniweave/cmd/cogniweave/init"
	servecmder "github.com/papercomputeco/cogniweave/cmd/cogniweave/serve"
	versioncmder "github.com/papercomputeco/cogniweave/cmd/version"
)

const cogniweaveLongDesc string = `Cogniweave is conversational memory for your chat agents.

It waits for the user to finish a thought, remembers what was said,
splits history into sessions by idle time and recalls relevant facts
before every answer.

Get started using:
  cogniweave init          Create a local .cogniweave/ directory
  cogniweave demo          Chat with the agent in this terminal
  cogniweave serve         Run the HTTP API server
  cogniweave chat          Chat through a running API server
  cogniweave history       Show the stored turns of a session
  cogniweave auth          Store provider API keys`

const cogniweaveShortDesc string = "Cogniweave - conversational memory for agents"

func NewCogniweaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cogniweave",
		Short:        cogniweaveShortDesc,
		Long:         cogniweaveLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .cogniweave/ directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(democmder.NewDemoCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
