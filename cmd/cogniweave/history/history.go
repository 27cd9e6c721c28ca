// Package historycmder provides the history command, which prints the
// stored turns of a session grouped into time segments.
package historycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/cogniweave/pkg/cliui"
	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/dotdir"
	"github.com/papercomputeco/cogniweave/pkg/segment"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/utils"
	"github.com/papercomputeco/cogniweave/pkg/weave"
)

// previewWidth caps how much of a turn is printed per line.
const previewWidth = 120

type historyCommander struct {
	configDir string
	limit     int
	sessions  bool
	jsonOut   bool
	full      bool
}

const historyLongDesc string = `Show the stored turns of a session.

Turns are read straight from the configured history store and grouped
into the time segments they were assigned when they were written. Without
a session id, the session last used by "cogniweave demo" or
"cogniweave chat" is shown.

Use --sessions to list the known sessions instead, most recently active
first.

Examples:
  cogniweave history
  cogniweave history alice --limit 20
  cogniweave history --sessions
  cogniweave history alice --json`

const historyShortDesc string = "Show the stored turns of a session"

var historyFlags = []string{
	config.FlagIndex,
	config.FlagFolder,
	config.FlagStorage,
	config.FlagSQLite,
	config.FlagPostgres,
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history [session]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			session := ""
			if len(args) == 1 {
				session = args[0]
			}
			return cmder.run(cmd, session)
		},
	}

	config.AddFlags(cmd, config.Flags, historyFlags)
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 0, "Show only the most recent turns (0 for all)")
	cmd.Flags().BoolVar(&cmder.sessions, "sessions", false, "List known sessions instead of turns")
	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print JSON instead of formatted output")
	cmd.Flags().BoolVar(&cmder.full, "full", false, "Do not truncate long turns")

	return cmd
}

func (c *historyCommander) run(cmd *cobra.Command, session string) error {
	if c.limit < 0 {
		return errors.New("--limit must not be negative")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(cmd, c.configDir, historyFlags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ddm := dotdir.NewManager()
	dir, err := ddm.Target(c.configDir)
	if err != nil {
		return err
	}

	folder, err := weave.ResolveFolder(cfg, dir)
	if err != nil {
		return err
	}

	history, err := weave.NewHistory(ctx, cfg, folder)
	if err != nil {
		return err
	}
	defer history.Close()

	out := cmd.OutOrStdout()
	if c.sessions {
		return c.printSessions(ctx, out, history)
	}

	if session == "" {
		state, err := ddm.LoadConsoleState(c.configDir)
		if err != nil {
			return err
		}
		if state == nil {
			return errors.New("no session given and no console session to resume")
		}
		session = state.SessionID
	}

	turns, err := history.History(ctx, session, c.limit)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if c.jsonOut {
		return writeJSON(out, turns)
	}
	c.printTurns(out, session, turns, time.Now())
	return nil
}

func (c *historyCommander) printSessions(ctx context.Context, out io.Writer, history storage.Driver) error {
	sessions, err := history.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if c.jsonOut {
		return writeJSON(out, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintln(out, s)
	}
	return nil
}

func (c *historyCommander) printTurns(out io.Writer, session string, turns []storage.Turn, now time.Time) {
	if len(turns) == 0 {
		fmt.Fprintf(out, "No turns stored for session %s.\n", session)
		return
	}

	fmt.Fprintf(out, "\n  %s %s %s\n",
		cliui.KeyStyle.Render("Session:"),
		cliui.NameStyle.Render(session),
		cliui.DimStyle.Render(fmt.Sprintf("(%d turns)", len(turns))),
	)

	for _, seg := range segment.Segments(turns) {
		fmt.Fprintf(out, "\n  %s %s\n",
			cliui.ValueStyle.Render(fmt.Sprintf("Segment %d", seg[0].SegmentID)),
			cliui.DimStyle.Render("started "+utils.FormatRelative(seg[0].CreatedAt, now)),
		)
		for _, t := range seg {
			content := t.Content
			if !c.full {
				content = utils.Truncate(content, previewWidth)
			}
			fmt.Fprintf(out, "    %s %s %s\n",
				cliui.DimStyle.Render(t.CreatedAt.Local().Format("15:04")),
				roleLabel(t.Role),
				content,
			)
		}
	}
	fmt.Fprintln(out)
}

func roleLabel(r storage.Role) string {
	if r == storage.RoleAgent {
		return cliui.NameStyle.Render("agent:")
	}
	return cliui.KeyStyle.Render("you:")
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
