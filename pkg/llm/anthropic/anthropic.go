// Package anthropic implements the agent, end-of-turn classifier and fact
// extractor on top of the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/llm"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/memory"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
)

// Config configures the Anthropic client shared by the agent, classifier
// and extractor.
type Config struct {
	// APIKey defaults to the ANTHROPIC_API_KEY environment variable.
	APIKey  string
	BaseURL string
	Model   string

	MaxTokens int64

	// MaxRetries overrides the client's retry count when positive. A
	// negative value disables retries.
	MaxRetries int

	Prompt llm.PromptConfig
	Logger *slog.Logger
}

type client struct {
	api       sdk.Client
	model     sdk.Model
	maxTokens int64
	logger    *slog.Logger
}

func newClient(c Config) *client {
	var opts []option.RequestOption
	if c.APIKey != "" {
		opts = append(opts, option.WithAPIKey(c.APIKey))
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	switch {
	case c.MaxRetries > 0:
		opts = append(opts, option.WithMaxRetries(c.MaxRetries))
	case c.MaxRetries < 0:
		opts = append(opts, option.WithMaxRetries(0))
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}

	return &client{
		api:       sdk.NewClient(opts...),
		model:     sdk.Model(c.Model),
		maxTokens: c.MaxTokens,
		logger:    logger.OrNop(c.Logger),
	}
}

func (c *client) params(system string, msgs []llm.Message, maxTokens int64) sdk.MessageNewParams {
	conv := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llm.RoleAssistant {
			conv = append(conv, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		} else {
			conv = append(conv, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return sdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  conv,
		System:    []sdk.TextBlockParam{{Text: system}},
	}
}

// complete sends a single user message and returns the text of the reply.
func (c *client) complete(ctx context.Context, system, text string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, c.params(system, []llm.Message{{Role: llm.RoleUser, Content: text}}, maxTokens))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// Agent answers pipeline inputs with streamed Claude messages.
type Agent struct {
	*client
	prompt llm.PromptConfig
}

// NewAgent creates an Agent.
func NewAgent(c Config) *Agent {
	return &Agent{client: newClient(c), prompt: c.Prompt}
}

// Invoke runs the agent to completion.
func (a *Agent) Invoke(ctx context.Context, in runnable.Input) (runnable.Output, error) {
	return runnable.InvokeStream(ctx, a, in)
}

// Stream starts a streamed message. Request failures surface through the
// stream's Err.
func (a *Agent) Stream(ctx context.Context, in runnable.Input) (runnable.Stream, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, errors.New("anthropic agent: empty input")
	}
	p := llm.Build(a.prompt, in)
	a.logger.Debug("anthropic request", "model", a.model, "messages", len(p.Messages))
	return &textStream{events: a.api.Messages.NewStreaming(ctx, a.params(p.System, p.Messages, a.maxTokens))}, nil
}

// eventStream is the part of the SDK's SSE stream the agent reads.
type eventStream interface {
	Next() bool
	Current() sdk.MessageStreamEventUnion
	Err() error
	Close() error
}

// textStream yields the text deltas of a message stream.
type textStream struct {
	events eventStream
	chunk  string
}

func (s *textStream) Next() bool {
	for s.events.Next() {
		delta, ok := s.events.Current().AsAny().(sdk.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if text, ok := delta.Delta.AsAny().(sdk.TextDelta); ok && text.Text != "" {
			s.chunk = text.Text
			return true
		}
	}
	return false
}

func (s *textStream) Chunk() runnable.Chunk { return runnable.Chunk{Text: s.chunk} }
func (s *textStream) Err() error            { return s.events.Err() }
func (s *textStream) Close() error          { return s.events.Close() }

// Classifier judges end of turn with a short Claude completion.
type Classifier struct {
	*client
}

func NewClassifier(c Config) *Classifier {
	return &Classifier{client: newClient(c)}
}

func (c *Classifier) Classify(ctx context.Context, text string) (enddetect.Verdict, error) {
	answer, err := c.complete(ctx, llm.ClassifierSystem, text, 8)
	if err != nil {
		return "", err
	}
	return llm.ParseVerdict(answer)
}

// Extractor asks Claude for the facts worth remembering from an exchange.
type Extractor struct {
	*client
}

func NewExtractor(c Config) *Extractor {
	return &Extractor{client: newClient(c)}
}

func (e *Extractor) Extract(ctx context.Context, ex memory.Exchange) ([]string, error) {
	answer, err := e.complete(ctx, llm.ExtractorSystem, llm.ExtractorInput(ex), 512)
	if err != nil {
		return nil, err
	}
	return llm.ParseFacts(answer)
}

var (
	_ runnable.Agent       = (*Agent)(nil)
	_ enddetect.Classifier = (*Classifier)(nil)
	_ memory.Extractor     = (*Extractor)(nil)
)
