package runnable

import (
	"errors"
	"log/slog"
	"time"

	"github.com/papercomputeco/cogniweave/pkg/embeddings"
	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/eventstream"
	"github.com/papercomputeco/cogniweave/pkg/memory"
	"github.com/papercomputeco/cogniweave/pkg/metrics"
	"github.com/papercomputeco/cogniweave/pkg/segment"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
)

// Config wires the full pipeline.
type Config struct {
	Agent   Agent
	History storage.Driver

	Tags      *tagstore.Store
	Embedder  embeddings.Embedder
	Extractor memory.Extractor
	Pool      *memory.Pool

	Detector *enddetect.Detector
	Splitter *segment.Splitter

	HistoryLimit  int
	ShortMemory   int
	TopK          int
	Scope         func(sessionID string) string
	IncludeGlobal bool

	// HeldOutput is returned while the end gate holds input back.
	HeldOutput Output

	Publisher eventstream.Publisher
	Source    eventstream.EventSource

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewPipeline builds SessionPipeline(EndGate(MemoryMaker(agent))).
func NewPipeline(c Config) (*SessionPipeline, error) {
	if c.Agent == nil {
		return nil, errors.New("pipeline: agent is required")
	}

	mem, err := NewMemoryMaker(c.Agent, MemoryConfig{
		History:       c.History,
		Tags:          c.Tags,
		Embedder:      c.Embedder,
		Extractor:     c.Extractor,
		Pool:          c.Pool,
		ShortMemory:   c.ShortMemory,
		TopK:          c.TopK,
		Scope:         c.Scope,
		IncludeGlobal: c.IncludeGlobal,
		Metrics:       c.Metrics,
		Logger:        c.Logger,
	})
	if err != nil {
		return nil, err
	}

	gate, err := NewEndGate(mem, GateConfig{
		Detector: c.Detector,
		Default:  c.HeldOutput,
		Metrics:  c.Metrics,
		Logger:   c.Logger,
	})
	if err != nil {
		return nil, err
	}

	return NewSessionPipeline(gate, SessionConfig{
		History:      c.History,
		Splitter:     c.Splitter,
		HistoryLimit: c.HistoryLimit,
		Publisher:    c.Publisher,
		Source:       c.Source,
		Metrics:      c.Metrics,
		Logger:       c.Logger,
		Now:          c.Now,
	})
}
