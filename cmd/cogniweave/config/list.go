package configcmder

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/cogniweave/pkg/cliui"
	"github.com/papercomputeco/cogniweave/pkg/config"
)

const listLongDesc string = `List configuration values.

Prints every key of config.toml grouped by section, with defaults for the
keys the file does not set. Give a section name to print only that section.
Top-level keys such as index and folder live in the "general" section.
Credentials are masked.

Examples:
  cogniweave config list
  cogniweave config list end_detector`

const listShortDesc string = "List configuration values"

// generalSection groups the keys that have no TOML table.
const generalSection = "general"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [section]",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			section := ""
			if len(args) == 1 {
				section = args[0]
			}
			return runList(cmd.OutOrStdout(), configDir, section)
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return sectionNames(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	return cmd
}

func runList(out io.Writer, configDir, only string) error {
	if only != "" && !slices.Contains(sectionNames(), only) {
		return fmt.Errorf("unknown config section: %q\n\nValid sections: %s",
			only, strings.Join(sectionNames(), ", "))
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s %s\n", cliui.KeyStyle.Render("Config file:"), cfger.GetTarget())

	width := 0
	for _, key := range config.ValidConfigKeys() {
		width = max(width, len(key))
	}

	current := ""
	for _, key := range config.ValidConfigKeys() {
		section := sectionOf(key)
		if only != "" && section != only {
			continue
		}
		if section != current {
			current = section
			fmt.Fprintf(out, "\n%s\n", cliui.NameStyle.Render("["+section+"]"))
		}

		value, err := cfg.Value(key)
		if err != nil {
			return err
		}
		shown := cliui.DimStyle.Render("<not set>")
		if value != "" {
			shown = fmt.Sprintf("%q", display(key, value))
		}
		fmt.Fprintf(out, "  %-*s = %s\n", width, key, shown)
	}

	return nil
}

func sectionOf(key string) string {
	section, _, found := strings.Cut(key, ".")
	if !found {
		return generalSection
	}
	return section
}

// sectionNames lists the sections in the order their keys appear.
func sectionNames() []string {
	var names []string
	for _, key := range config.ValidConfigKeys() {
		if s := sectionOf(key); !slices.Contains(names, s) {
			names = append(names, s)
		}
	}
	return names
}
