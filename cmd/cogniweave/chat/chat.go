// Package chatcmder provides the chat command for interactive chat through
// a running cogniweave API server.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/cogniweave/api"
	"github.com/papercomputeco/cogniweave/pkg/cliui"
	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/dotdir"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/sse"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/utils"
)

// recentTurns is how much history is shown when a session resumes.
const recentTurns = 10

// errIncompleteStream is returned when the server closes the stream without
// a done or error event.
var errIncompleteStream = errors.New("stream ended before the answer was complete")

type chatCommander struct {
	configDir  string
	debug      bool
	fresh      bool
	apiTarget  string
	transcript string
}

const chatLongDesc string = `Start an interactive chat session through a running cogniweave server.

Each line is sent to the server's streaming endpoint and the answer is
printed as it arrives. When the server holds a message back because the
thought is not finished yet, "…" is printed and the next line continues it.

The last session is resumed unless a session id is given or --new is set.
With --transcript, the raw Server-Sent Events stream of every answer is
appended to the given file.

Examples:
  cogniweave chat
  cogniweave chat alice --api-target http://localhost:9000
  cogniweave chat --new --transcript chat.sse`

const chatShortDesc string = "Interactive chat through the cogniweave server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [session]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
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

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new session instead of resuming the last one")
	cmd.Flags().StringVar(&cmder.transcript, "transcript", "", "Append the raw SSE stream of every answer to this file")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command, explicit string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.Nop()
	if c.debug {
		log = logger.New(logger.WithDebug(true), logger.WithPretty(true), logger.WithWriter(cmd.ErrOrStderr()))
	}

	cfg, err := config.Load(cmd, c.configDir, []string{config.FlagAPITarget})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	session, resumed, err := dotdir.NewManager().ResumeSession(c.configDir, explicit, c.fresh, uuid.NewString)
	if err != nil {
		return fmt.Errorf("resolving session: %w", err)
	}

	var transcript io.Writer = io.Discard
	if c.transcript != "" {
		f, err := os.OpenFile(c.transcript, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening transcript: %w", err)
		}
		defer f.Close()
		transcript = f
	}

	out := cmd.OutOrStdout()
	status := "New session"
	if resumed {
		status = "Resuming"
	}
	fmt.Fprintf(out, "\n  %s %s\n", cliui.DimStyle.Render(status), cliui.NameStyle.Render(session))
	fmt.Fprintf(out, "  %s %s\n\n", cliui.KeyStyle.Render("Server:"), cliui.ValueStyle.Render(cfg.Client.APITarget))

	r := &remote{
		target: strings.TrimSuffix(cfg.Client.APITarget, "/"),
		client: &http.Client{
			// Answers can be slow; the server bounds them itself.
			Timeout: 10 * time.Minute,
		},
		session:    session,
		in:         cmd.InOrStdin(),
		out:        out,
		transcript: transcript,
		logger:     log,
		now:        time.Now,
	}
	return r.run(ctx)
}

// remote is the read-answer loop against the API server.
type remote struct {
	target  string
	client  *http.Client
	session string

	in         io.Reader
	out        io.Writer
	transcript io.Writer

	logger *slog.Logger
	now    func() time.Time
}

func (r *remote) run(ctx context.Context) error {
	if err := r.printRecent(ctx); err != nil {
		// Chatting works without it.
		r.logger.Debug("could not load history", "error", err)
	}

	fmt.Fprintf(r.out, "  %s\n\n", cliui.DimStyle.Render(`Type your message and press Enter. "exit" or Ctrl+D to quit.`))

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, cliui.PromptMark)
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

		if err := r.send(ctx, input); err != nil {
			fmt.Fprintf(r.out, "  %s %v\n\n", cliui.FailMark, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(r.out)
	return nil
}

func (r *remote) sessionURL(suffix string) string {
	return r.target + "/v1/sessions/" + url.PathEscape(r.session) + suffix
}

func (r *remote) printRecent(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?limit=%d", r.sessionURL("/history"), recentTurns), nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	var history api.HistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return fmt.Errorf("decoding history: %w", err)
	}
	if len(history.Turns) == 0 {
		return nil
	}

	now := r.now()
	for _, t := range history.Turns {
		label := cliui.KeyStyle.Render("you:")
		if t.Role == storage.RoleAgent {
			label = cliui.NameStyle.Render("agent:")
		}
		fmt.Fprintf(r.out, "  %s %s %s\n", cliui.DimStyle.Render(utils.FormatRelative(t.CreatedAt, now)), label, t.Content)
	}
	fmt.Fprintln(r.out)
	return nil
}

// send posts one line to the streaming endpoint and prints the answer as
// it arrives.
func (r *remote) send(ctx context.Context, input string) error {
	body, err := json.Marshal(api.InvokeRequest{Input: input})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.sessionURL("/stream"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	r.logger.Debug("sending message", "target", r.target, "session", r.session)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	printed := false
	reader := sse.NewTeeReader(resp.Body, r.transcript)
	for {
		ev, err := reader.Next()
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
		if ev == nil {
			if printed {
				fmt.Fprintln(r.out)
			}
			return errIncompleteStream
		}

		switch ev.Type {
		case sse.TypeDone:
			var done api.StreamDone
			if err := json.Unmarshal([]byte(ev.Data), &done); err != nil {
				return fmt.Errorf("decoding done event: %w", err)
			}
			if !done.Forwarded {
				fmt.Fprintf(r.out, "  %s\n", cliui.DimStyle.Render("…"))
				return nil
			}
			fmt.Fprint(r.out, "\n\n")
			return nil

		case sse.TypeError:
			if printed {
				fmt.Fprintln(r.out)
			}
			var failure api.ErrorResponse
			if err := json.Unmarshal([]byte(ev.Data), &failure); err != nil || failure.Error == "" {
				return fmt.Errorf("server error: %s", ev.Data)
			}
			return errors.New(failure.Error)

		default:
			var chunk api.StreamChunk
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				r.logger.Debug("failed to parse stream chunk", "error", err, "data", ev.Data)
				continue
			}
			if chunk.Output != "" {
				fmt.Fprint(r.out, chunk.Output)
				printed = true
			}
		}
	}
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)
	var failure api.ErrorResponse
	if err := json.Unmarshal(raw, &failure); err == nil && failure.Error != "" {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, failure.Error)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
