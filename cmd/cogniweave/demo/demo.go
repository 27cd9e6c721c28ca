// Package democmder provides the demo command: an interactive console that
// talks to a locally built pipeline.
package democmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/cogniweave/pkg/cliui"
	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/credentials"
	"github.com/papercomputeco/cogniweave/pkg/dotdir"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/utils"
	"github.com/papercomputeco/cogniweave/pkg/weave"
)

// recentTurns is how much history the console shows on start.
const recentTurns = 10

type demoCommander struct {
	configDir string
	debug     bool
	fresh     bool
}

const demoLongDesc string = `Chat with the agent in this terminal.

The demo builds the configured pipeline in process: messages are held
until the end-of-turn detector decides the thought is complete, history is
stored and split into segments by idle time, and facts are recalled from
long memory before every answer.

The console resumes the last session unless a session id is given or
--new is set. It prints the last 10 messages, then reads one message per
line. Type "exit" or press Ctrl+D to quit.

Examples:
  cogniweave demo
  cogniweave demo alice --index support
  cogniweave demo --new --end-detector off`

const demoShortDesc string = "Chat with the agent in this terminal"

func NewDemoCmd() *cobra.Command {
	cmder := &demoCommander{}

	cmd := &cobra.Command{
		Use:   "demo [session]",
		Short: demoShortDesc,
		Long:  demoLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			session := ""
			if len(args) == 1 {
				session = args[0]
			}
			return cmder.run(cmd, session)
		},
	}

	config.AddFlags(cmd, config.Flags, config.PipelineFlags)
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new session instead of resuming the last one")

	return cmd
}

func (c *demoCommander) run(cmd *cobra.Command, explicit string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.Nop()
	if c.debug {
		log = logger.New(logger.WithDebug(true), logger.WithPretty(true), logger.WithWriter(cmd.ErrOrStderr()))
	}

	cfg, err := config.Load(cmd, c.configDir, config.PipelineFlags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ddm := dotdir.NewManager()
	dir, err := ddm.Target(c.configDir)
	if err != nil {
		return err
	}

	session, resumed, err := ddm.ResumeSession(c.configDir, explicit, c.fresh, uuid.NewString)
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}

	keys, err := credentials.NewManager(dir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	out := cmd.OutOrStdout()
	var stack *weave.Stack
	err = cliui.Step(out, "Building pipeline", func() error {
		var buildErr error
		stack, buildErr = weave.Build(ctx, cfg, weave.Options{
			Dir:         dir,
			Service:     "cogniweave-demo",
			Credentials: keys,
			Logger:      log,
		})
		return buildErr
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error("closing pipeline", "error", err)
		}
	}()

	status := "New session"
	if resumed {
		status = "Resuming"
	}
	fmt.Fprintf(out, "\n  %s %s\n", cliui.DimStyle.Render(status), cliui.NameStyle.Render(session))
	fmt.Fprintf(out, "  %s %s  %s %s\n\n",
		cliui.KeyStyle.Render("Index:"), cliui.ValueStyle.Render(cfg.Index),
		cliui.KeyStyle.Render("Agent:"), cliui.ValueStyle.Render(cfg.Agent.Provider+"/"+cfg.Agent.Model),
	)

	con := &console{
		pipeline:    stack.Pipeline,
		history:     stack.History,
		session:     session,
		in:          cmd.InOrStdin(),
		out:         out,
		interactive: isTerminal(cmd.InOrStdin()) && isTerminal(out),
		logger:      log,
		now:         time.Now,
	}
	return con.run(ctx)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// console is the read-answer loop of the demo.
type console struct {
	pipeline runnable.Runnable
	history  storage.Driver
	session  string

	in  io.Reader
	out io.Writer

	// interactive renders answers as markdown panels instead of streaming
	// plain text.
	interactive bool

	logger *slog.Logger
	now    func() time.Time
}

func (c *console) run(ctx context.Context) error {
	if err := c.printRecent(ctx); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render(`Type your message and press Enter. "exit" or Ctrl+D to quit.`))

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, cliui.PromptMark)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" {
			break
		}

		if err := c.ask(ctx, input); err != nil {
			fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

func (c *console) printRecent(ctx context.Context) error {
	turns, err := c.history.History(ctx, c.session, recentTurns)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if len(turns) == 0 {
		return nil
	}

	now := c.now()
	for _, t := range turns {
		fmt.Fprintf(c.out, "  %s %s %s\n",
			cliui.DimStyle.Render(utils.FormatRelative(t.CreatedAt, now)),
			roleLabel(t.Role),
			t.Content,
		)
	}
	fmt.Fprintln(c.out)
	return nil
}

func roleLabel(r storage.Role) string {
	if r == storage.RoleAgent {
		return cliui.NameStyle.Render("agent:")
	}
	return cliui.KeyStyle.Render("you:")
}

// ask sends one line through the pipeline. A held line prints nothing but
// a hint that more input is expected.
func (c *console) ask(ctx context.Context, input string) error {
	stream, err := c.pipeline.Stream(ctx, runnable.Input{SessionID: c.session, Text: input})
	if err != nil {
		return err
	}
	defer stream.Close()

	var answer strings.Builder
	for stream.Next() {
		text := stream.Chunk().Text
		answer.WriteString(text)
		if !c.interactive {
			fmt.Fprint(c.out, text)
		}
	}
	if err := stream.Err(); err != nil {
		if !c.interactive && answer.Len() > 0 {
			fmt.Fprintln(c.out)
		}
		return err
	}

	if !runnable.Forwarded(stream) {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("…"))
		return nil
	}

	if c.interactive {
		fmt.Fprintln(c.out, cliui.Bubble(answer.String()))
	} else {
		fmt.Fprintln(c.out)
	}
	fmt.Fprintln(c.out)
	return nil
}
