// Package local provides a heuristic memory.Extractor that needs no model.
//
// It picks first-person statements out of the user input ("I like ...",
// "my name is ...", "I live in ...") and rewrites them as facts about the
// user. The agent answer is ignored.
package local

import (
	"context"
	"regexp"
	"strings"

	"github.com/papercomputeco/cogniweave/pkg/memory"
)

// DefaultMaxFacts bounds the facts proposed per exchange.
const DefaultMaxFacts = 5

// Config holds configuration for the local extractor.
type Config struct {
	// MaxFacts caps the facts returned per exchange. Zero uses
	// DefaultMaxFacts.
	MaxFacts int
}

type pattern struct {
	re     *regexp.Regexp
	format func(m []string) string
}

// A capture stops at clause punctuation.
const clause = `([^.,!?;:。，！？；：]+)`

var patterns = []pattern{
	{
		re:     regexp.MustCompile(`(?i)\bmy name is ` + clause),
		format: func(m []string) string { return "User's name is " + m[1] },
	},
	{
		re:     regexp.MustCompile(`(?i)\bcall me ` + clause),
		format: func(m []string) string { return "User likes to be called " + m[1] },
	},
	{
		re:     regexp.MustCompile(`(?i)\bi(?:'m| am) from ` + clause),
		format: func(m []string) string { return "User is from " + m[1] },
	},
	{
		re:     regexp.MustCompile(`(?i)\bi live in ` + clause),
		format: func(m []string) string { return "User lives in " + m[1] },
	},
	{
		re:     regexp.MustCompile(`(?i)\bi work (as|at|for|on) ` + clause),
		format: func(m []string) string { return "User works " + strings.ToLower(m[1]) + " " + m[2] },
	},
	{
		re: regexp.MustCompile(`(?i)\bi (?:really )?(like|love|enjoy|prefer|hate|dislike) ` + clause),
		format: func(m []string) string {
			return "User " + strings.ToLower(m[1]) + "s " + m[2]
		},
	},
	{
		re:     regexp.MustCompile(`(?i)\bi(?:'m| am) (?:a|an) ` + clause),
		format: func(m []string) string { return "User is a " + m[1] },
	},
	{
		re:     regexp.MustCompile(`(?i)\bi(?:'m| am) allergic to ` + clause),
		format: func(m []string) string { return "User is allergic to " + m[1] },
	},
	{
		re:     regexp.MustCompile(`我叫` + clause),
		format: func(m []string) string { return "用户的名字是" + m[1] },
	},
	{
		re:     regexp.MustCompile(`我(喜欢|爱|讨厌)` + clause),
		format: func(m []string) string { return "用户" + m[1] + m[2] },
	},
	{
		re:     regexp.MustCompile(`我(?:住在|来自)` + clause),
		format: func(m []string) string { return "用户住在" + m[1] },
	},
}

// Extractor implements memory.Extractor with regular expressions.
type Extractor struct {
	maxFacts int
}

// NewExtractor creates a local extractor.
func NewExtractor(c Config) *Extractor {
	maxFacts := c.MaxFacts
	if maxFacts <= 0 {
		maxFacts = DefaultMaxFacts
	}
	return &Extractor{maxFacts: maxFacts}
}

// Extract never fails.
func (e *Extractor) Extract(_ context.Context, ex memory.Exchange) ([]string, error) {
	var facts []string
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatch(ex.Input, -1) {
			if strings.TrimSpace(m[len(m)-1]) == "" {
				continue
			}
			for i := range m {
				m[i] = strings.TrimSpace(m[i])
			}
			facts = append(facts, p.format(m))
		}
	}

	facts = memory.Dedupe(facts)
	if len(facts) > e.maxFacts {
		facts = facts[:e.maxFacts]
	}
	return facts, nil
}

var _ memory.Extractor = (*Extractor)(nil)
