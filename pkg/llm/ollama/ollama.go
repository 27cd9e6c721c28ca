// Package ollama implements the agent, end-of-turn classifier and fact
// extractor on top of Ollama's /api/chat endpoint.
package ollama

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
	"strings"
	"time"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/llm"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/memory"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "qwen3:8b"
)

// Config configures the Ollama client shared by the agent, classifier and
// extractor.
type Config struct {
	BaseURL string
	Model   string

	// Temperature is passed through when set.
	Temperature *float64

	// KeepAlive controls how long Ollama keeps the model loaded, e.g. "5m".
	KeepAlive string

	// Timeout bounds non-streaming calls. Streams are bounded by the
	// caller's context only.
	Timeout time.Duration

	Prompt llm.PromptConfig
	Logger *slog.Logger
}

type client struct {
	baseURL     string
	model       string
	temperature *float64
	keepAlive   string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

func newClient(c Config) *client {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return &client{
		baseURL:     strings.TrimSuffix(c.BaseURL, "/"),
		model:       c.Model,
		temperature: c.Temperature,
		keepAlive:   c.KeepAlive,
		timeout:     c.Timeout,
		httpClient:  &http.Client{},
		logger:      logger.OrNop(c.Logger),
	}
}

func (c *client) post(ctx context.Context, system string, msgs []llm.Message, stream bool) (*http.Response, error) {
	req := chatRequest{
		Model:     c.model,
		Messages:  make([]chatMessage, 0, len(msgs)+1),
		Stream:    &stream,
		KeepAlive: c.keepAlive,
	}
	if c.temperature != nil {
		req.Options = &chatOptions{Temperature: c.temperature}
	}
	if system != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling ollama chat: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama chat returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// complete sends a single user message without streaming.
func (c *client) complete(ctx context.Context, system, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, system, []llm.Message{{Role: llm.RoleUser, Content: text}}, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if out.Error != "" {
		return "", errors.New(out.Error)
	}
	return out.Message.Content, nil
}

// Agent answers pipeline inputs with streamed Ollama chat completions.
type Agent struct {
	*client
	prompt llm.PromptConfig
}

func NewAgent(c Config) *Agent {
	return &Agent{client: newClient(c), prompt: c.Prompt}
}

// Invoke runs the agent to completion.
func (a *Agent) Invoke(ctx context.Context, in runnable.Input) (runnable.Output, error) {
	return runnable.InvokeStream(ctx, a, in)
}

// Stream starts a streamed chat completion.
func (a *Agent) Stream(ctx context.Context, in runnable.Input) (runnable.Stream, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, errors.New("ollama agent: empty input")
	}
	p := llm.Build(a.prompt, in)
	a.logger.Debug("ollama request", "model", a.model, "messages", len(p.Messages))

	resp, err := a.post(ctx, p.System, p.Messages, true)
	if err != nil {
		return nil, err
	}
	return &lineStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// lineStream decodes the NDJSON chat stream.
type lineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	chunk   string
	done    bool
	err     error
}

func (s *lineStream) Next() bool {
	for !s.done && s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp chatResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			s.err = fmt.Errorf("decoding chat stream: %w", err)
			s.done = true
			return false
		}
		if resp.Error != "" {
			s.err = errors.New(resp.Error)
			s.done = true
			return false
		}
		if resp.Done {
			s.done = true
		}
		if resp.Message.Content != "" {
			s.chunk = resp.Message.Content
			return true
		}
	}

	if !s.done {
		s.done = true
		if err := s.scanner.Err(); err != nil {
			s.err = fmt.Errorf("reading chat stream: %w", err)
		} else {
			s.err = io.ErrUnexpectedEOF
		}
	}
	return false
}

func (s *lineStream) Chunk() runnable.Chunk { return runnable.Chunk{Text: s.chunk} }
func (s *lineStream) Err() error            { return s.err }
func (s *lineStream) Close() error          { return s.body.Close() }

// Classifier judges end of turn with a short Ollama completion.
type Classifier struct {
	*client
}

func NewClassifier(c Config) *Classifier {
	return &Classifier{client: newClient(c)}
}

func (c *Classifier) Classify(ctx context.Context, text string) (enddetect.Verdict, error) {
	answer, err := c.complete(ctx, llm.ClassifierSystem, text)
	if err != nil {
		return "", err
	}
	return llm.ParseVerdict(answer)
}

// Extractor asks an Ollama model for the facts worth remembering.
type Extractor struct {
	*client
}

func NewExtractor(c Config) *Extractor {
	return &Extractor{client: newClient(c)}
}

func (e *Extractor) Extract(ctx context.Context, ex memory.Exchange) ([]string, error) {
	answer, err := e.complete(ctx, llm.ExtractorSystem, llm.ExtractorInput(ex))
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
