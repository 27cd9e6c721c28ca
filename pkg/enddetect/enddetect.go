// Package enddetect decides whether buffered user input forms a finished
// turn that the agent should answer.
package enddetect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/cogniweave/pkg/logger"
)

// Verdict is the outcome of classifying the buffered input.
type Verdict string

const (
	// Complete means the user finished the turn.
	Complete Verdict = "complete"

	// Incomplete means more input is expected.
	Incomplete Verdict = "incomplete"
)

// State of a session's pending buffer.
type State string

const (
	StateIdle      State = "idle"
	StateBuffering State = "buffering"
)

// Classifier judges whether text is a finished turn.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string) (Verdict, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (Verdict, error) {
	return f(ctx, text)
}

// Always returns a classifier with a fixed verdict. Always(Complete)
// disables end detection.
func Always(v Verdict) Classifier {
	return ClassifierFunc(func(context.Context, string) (Verdict, error) {
		return v, nil
	})
}

// DetectionError wraps a classifier failure.
type DetectionError struct {
	Input string
	Err   error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("end detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

type failurePolicy int

const (
	failOpen failurePolicy = iota
	failClosed
	failStrict
)

// Result of evaluating a buffer.
type Result struct {
	Verdict Verdict

	// Input is the joined text that was classified.
	Input string

	// Err holds a *DetectionError that a fail-open or fail-closed policy
	// absorbed.
	Err error
}

// Option configures a Detector.
type Option func(*Detector)

// WithSeparator sets the string placed between buffered fragments.
func WithSeparator(sep string) Option {
	return func(d *Detector) { d.separator = sep }
}

// WithFailClosed keeps input buffered when the classifier fails.
func WithFailClosed() Option {
	return func(d *Detector) { d.policy = failClosed }
}

// WithStrict makes Evaluate return classifier failures.
func WithStrict() Option {
	return func(d *Detector) { d.policy = failStrict }
}

// WithLogger sets the logger used to report absorbed failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = logger.OrNop(l) }
}

// Detector joins buffered fragments and classifies them.
type Detector struct {
	classifier Classifier
	separator  string
	policy     failurePolicy
	logger     *slog.Logger
}

// New creates a Detector. A nil classifier uses the rule-based default.
func New(c Classifier, opts ...Option) *Detector {
	if c == nil {
		c = NewRules()
	}
	d := &Detector{
		classifier: c,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Join concatenates fragments with the configured separator.
func (d *Detector) Join(fragments []string) string {
	return strings.Join(fragments, d.separator)
}

// Evaluate classifies the joined fragments. Blank input is Incomplete
// without consulting the classifier.
func (d *Detector) Evaluate(ctx context.Context, fragments []string) (Result, error) {
	input := d.Join(fragments)
	if strings.TrimSpace(input) == "" {
		return Result{Verdict: Incomplete, Input: input}, nil
	}

	verdict, err := d.classifier.Classify(ctx, input)
	if err == nil && verdict != Complete && verdict != Incomplete {
		err = fmt.Errorf("unknown verdict %q", verdict)
	}
	if err == nil {
		return Result{Verdict: verdict, Input: input}, nil
	}

	detErr := &DetectionError{Input: input, Err: err}
	switch d.policy {
	case failStrict:
		return Result{Input: input}, detErr
	case failClosed:
		d.logger.Warn("end detection failed, holding input", "error", err)
		return Result{Verdict: Incomplete, Input: input, Err: detErr}, nil
	default:
		d.logger.Warn("end detection failed, forwarding input", "error", err)
		return Result{Verdict: Complete, Input: input, Err: detErr}, nil
	}
}
