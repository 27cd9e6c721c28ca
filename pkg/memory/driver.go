// Package memory turns finished exchanges into long-term memory facts.
//
// An [Extractor] reads the user input and the agent answer of one exchange
// and proposes short, durable facts ("likes green tea", "lives in Berlin").
// The runnable memory stage embeds each fact and stores it as a tag, and
// later recalls the closest tags for new inputs. Extraction runs after the
// answer has been produced, either inline or on a [Pool].
//
// Extractors are pluggable via configuration:
//
//	[memory]
//	extractor = "local"   # or "anthropic", "none"
package memory

import (
	"context"
	"regexp"
	"strings"

	"github.com/papercomputeco/cogniweave/pkg/storage"
)

// Exchange is one answered turn.
type Exchange struct {
	SessionID string

	// Input is the user text forwarded to the agent.
	Input string

	// Output is the complete agent answer.
	Output string

	// History holds the turns that preceded the exchange, oldest first.
	History []storage.Turn
}

// Extractor proposes memory facts for an exchange.
type Extractor interface {
	Extract(ctx context.Context, ex Exchange) ([]string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, ex Exchange) ([]string, error)

func (f ExtractorFunc) Extract(ctx context.Context, ex Exchange) ([]string, error) {
	return f(ctx, ex)
}

// Nop never proposes facts.
var Nop Extractor = ExtractorFunc(func(context.Context, Exchange) ([]string, error) {
	return nil, nil
})

var spaceRe = regexp.MustCompile(`\s+`)

// Normalize trims, collapses whitespace and drops trailing punctuation.
func Normalize(fact string) string {
	fact = spaceRe.ReplaceAllString(strings.TrimSpace(fact), " ")
	return strings.TrimRight(fact, ".!?,;:。！？，；： ")
}

// Dedupe normalizes facts and removes blanks and case-insensitive repeats,
// keeping first occurrences in order.
func Dedupe(facts []string) []string {
	seen := make(map[string]bool, len(facts))
	out := make([]string, 0, len(facts))
	for _, f := range facts {
		f = Normalize(f)
		key := strings.ToLower(f)
		if f == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	return out
}
