// Package initcmder provides the init command for initializing a local
// .cogniweave directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/cogniweave/pkg/cliui"
	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .cogniweave/ directory in the current working directory.

Creates a local .cogniweave/ directory that takes precedence over the
default ~/.cogniweave/ directory for configuration, history databases and
console state.

With --preset, a config.toml for the named provider stack is written as
well. An existing config.toml is only replaced with --force.

Available presets: ollama, anthropic.

Examples:
  cogniweave init
  cogniweave init --preset anthropic`

const initShortDesc string = "Initialize a local .cogniweave/ directory"

type initCommander struct {
	preset string
	force  bool
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Write a config.toml for a provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+")")
	cmd.Flags().BoolVar(&cmder.force, "force", false, "Replace an existing config.toml")

	return cmd
}

func (c *initCommander) run(out io.Writer) error {
	var cfg *config.Config
	if c.preset != "" {
		var err error
		cfg, err = config.PresetConfig(c.preset)
		if err != nil {
			return err
		}
	}

	dir, exists, err := dotdir.NewManager().Local()
	if err != nil {
		return err
	}

	if exists {
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .cogniweave directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .cogniweave directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	_, err = os.Stat(cfger.GetTarget())
	switch {
	case err == nil && !c.force:
		fmt.Fprintf(out, "  %s config.toml exists, keeping it (use --force to replace)\n", cliui.DimStyle.Render("•"))
		return nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("reading config: %w", err)
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Wrote %s preset to %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(c.preset),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	return nil
}
