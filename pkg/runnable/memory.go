package runnable

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/cogniweave/pkg/embeddings"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/memory"
	"github.com/papercomputeco/cogniweave/pkg/metrics"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
	"github.com/papercomputeco/cogniweave/pkg/vector"
)

const (
	// DefaultShortMemory is how many recent turns the memory stage injects.
	DefaultShortMemory = 10

	// DefaultTopK is how many tags the memory stage recalls.
	DefaultTopK = 3
)

// MemoryConfig configures a MemoryMaker.
type MemoryConfig struct {
	// History backs short memory. Without it short memory is taken from
	// Input.History.
	History storage.Driver

	// Tags, Embedder and Extractor back long memory. Long memory is off
	// unless Tags and Embedder are set; write-back also needs Extractor.
	Tags      *tagstore.Store
	Embedder  embeddings.Embedder
	Extractor memory.Extractor

	// Pool runs write-back in the background. Without it write-back runs
	// inline once the answer is complete.
	Pool *memory.Pool

	ShortMemory int
	TopK        int

	// Scope maps a session to the tag scope it reads and writes. Defaults
	// to the session id.
	Scope func(sessionID string) string

	// IncludeGlobal also recalls tags of the global scope.
	IncludeGlobal bool

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// MemoryMaker injects short and long memory into the input before calling
// the next stage, and turns complete answers into new tags.
type MemoryMaker struct {
	next      Runnable
	history   storage.Driver
	tags      *tagstore.Store
	embedder  embeddings.Embedder
	extractor memory.Extractor
	pool      *memory.Pool
	short     int
	topK      int
	scope     func(string) string
	global    bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewMemoryMaker wraps next.
func NewMemoryMaker(next Runnable, c MemoryConfig) (*MemoryMaker, error) {
	if next == nil {
		return nil, errors.New("memory maker: next stage is required")
	}
	if c.ShortMemory <= 0 {
		c.ShortMemory = DefaultShortMemory
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.Scope == nil {
		c.Scope = func(sessionID string) string { return sessionID }
	}

	return &MemoryMaker{
		next:      next,
		history:   c.History,
		tags:      c.Tags,
		embedder:  c.Embedder,
		extractor: c.Extractor,
		pool:      c.Pool,
		short:     c.ShortMemory,
		topK:      c.TopK,
		scope:     c.Scope,
		global:    c.IncludeGlobal,
		metrics:   c.Metrics,
		logger:    logger.OrNop(c.Logger),
	}, nil
}

// Invoke runs the stage to completion.
func (m *MemoryMaker) Invoke(ctx context.Context, in Input) (Output, error) {
	return InvokeStream(ctx, m, in)
}

// Stream recalls memory, calls the next stage and writes memory back once
// the answer stream is exhausted without error.
func (m *MemoryMaker) Stream(ctx context.Context, in Input) (Stream, error) {
	in, err := m.recall(ctx, in)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	s, err := m.next.Stream(ctx, in)
	if err != nil {
		return nil, asAgentError(err)
	}

	return &observedStream{
		inner:  s,
		mapErr: asAgentError,
		onComplete: func(text string) {
			m.metrics.ObserveAgentLatency(time.Since(started))
			m.remember(ctx, in, text)
		},
	}, nil
}

func (m *MemoryMaker) recall(ctx context.Context, in Input) (Input, error) {
	var (
		short []storage.Turn
		long  []tagstore.Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if m.history == nil {
			short = tail(in.History, m.short)
			return nil
		}
		turns, err := m.history.History(gctx, in.SessionID, m.short)
		if err != nil {
			return asStorageError("short memory", in.SessionID, err)
		}
		short = turns
		return nil
	})

	if m.tags != nil && m.embedder != nil && strings.TrimSpace(in.Text) != "" {
		g.Go(func() error {
			long = m.searchLong(gctx, in)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return in, err
	}

	in.ShortMemory = short
	in.LongMemory = long
	return in, nil
}

// searchLong degrades to no long memory on any failure.
func (m *MemoryMaker) searchLong(ctx context.Context, in Input) []tagstore.Result {
	emb, err := m.embedder.Embed(ctx, in.Text)
	if err != nil {
		m.logger.Warn("long memory unavailable, embedding failed", "session_id", in.SessionID, "error", err)
		m.metrics.RetrievalFailed("embed")
		return nil
	}

	scopes := []string{m.scope(in.SessionID)}
	if m.global && scopes[0] != tagstore.GlobalScope {
		scopes = append(scopes, tagstore.GlobalScope)
	}

	var results []tagstore.Result
	for _, scope := range scopes {
		found, err := m.tags.Search(ctx, emb, scope, m.topK)
		if err != nil {
			m.logger.Warn("long memory unavailable, search failed", "session_id", in.SessionID, "scope", scope, "error", err)
			m.metrics.RetrievalFailed("search")
			return nil
		}
		results = append(results, found...)
	}
	return vector.Top(results, m.topK)
}

func (m *MemoryMaker) remember(ctx context.Context, in Input, output string) {
	if m.extractor == nil || m.tags == nil || m.embedder == nil {
		return
	}

	ex := memory.Exchange{
		SessionID: in.SessionID,
		Input:     in.Text,
		Output:    output,
		History:   in.History,
	}

	if m.pool != nil {
		err := m.pool.Enqueue(memory.Job{
			Name:      "extract",
			SessionID: in.SessionID,
			Run:       func(ctx context.Context) { m.extract(ctx, ex) },
		})
		if err != nil {
			m.logger.Warn("memory write-back skipped", "session_id", in.SessionID, "error", err)
			m.metrics.ExtractionFailed("enqueue")
		}
		return
	}

	m.extract(context.WithoutCancel(ctx), ex)
}

// extract never fails the exchange: every error is logged and counted.
func (m *MemoryMaker) extract(ctx context.Context, ex memory.Exchange) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("memory extraction panicked", "session_id", ex.SessionID, "panic", r)
			m.metrics.ExtractionFailed("panic")
		}
	}()

	facts, err := m.extractor.Extract(ctx, ex)
	if err != nil {
		m.logger.Warn("memory extraction failed", "session_id", ex.SessionID, "error", err)
		m.metrics.ExtractionFailed("extract")
		return
	}

	scope := m.scope(ex.SessionID)
	for _, fact := range memory.Dedupe(facts) {
		emb, err := m.embedder.Embed(ctx, fact)
		if err != nil {
			m.logger.Warn("memory fact not embedded", "session_id", ex.SessionID, "error", err)
			m.metrics.ExtractionFailed("embed")
			continue
		}
		id, err := m.tags.Add(ctx, fact, emb, scope)
		if err != nil {
			m.logger.Warn("memory fact not stored", "session_id", ex.SessionID, "error", err)
			m.metrics.ExtractionFailed("store")
			continue
		}
		m.metrics.TagWritten()
		m.logger.Debug("memory fact stored", "session_id", ex.SessionID, "tag_id", id)
	}
}

func tail(turns []storage.Turn, n int) []storage.Turn {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]storage.Turn, len(turns))
	copy(out, turns)
	return out
}

func asStorageError(op, sessionID string, err error) error {
	var storageErr *storage.Error
	if errors.As(err, &storageErr) {
		return err
	}
	return &storage.Error{Op: op, SessionID: sessionID, Err: err}
}
