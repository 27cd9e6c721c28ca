package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/memory"
)

// ClassifierSystem instructs a model to judge whether the user finished
// their turn.
const ClassifierSystem = `You watch a chat where the user types in bursts. Decide whether the user's message below is a complete turn that deserves a reply now, or whether they are likely still typing.
Answer with exactly one word: "complete" or "incomplete".`

// ExtractorSystem instructs a model to pull durable facts out of an
// exchange.
const ExtractorSystem = `You maintain long-term memory about a user. From the exchange below, list the facts about the user worth remembering across conversations: identity, preferences, plans, relationships. Skip small talk and anything about the assistant.
Answer with a JSON array of short strings, written in the user's language. Answer [] when there is nothing to remember.`

// ExtractorInput renders an exchange for the extractor prompt.
func ExtractorInput(ex memory.Exchange) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", ex.Input, ex.Output)
}

// ParseVerdict reads a classifier answer. Anything other than a clear
// complete or incomplete is an error.
func ParseVerdict(answer string) (enddetect.Verdict, error) {
	a := strings.ToLower(strings.Trim(strings.TrimSpace(answer), `."'`))
	switch {
	case strings.HasPrefix(a, string(enddetect.Incomplete)):
		return enddetect.Incomplete, nil
	case strings.HasPrefix(a, string(enddetect.Complete)):
		return enddetect.Complete, nil
	default:
		return "", fmt.Errorf("unexpected classifier answer %q", answer)
	}
}

// ParseFacts reads an extractor answer: a JSON array of strings, possibly
// wrapped in a markdown code fence.
func ParseFacts(answer string) ([]string, error) {
	a := strings.TrimSpace(answer)
	a = strings.TrimPrefix(a, "```json")
	a = strings.TrimPrefix(a, "```")
	a = strings.TrimSuffix(a, "```")
	a = strings.TrimSpace(a)

	if start, end := strings.Index(a, "["), strings.LastIndex(a, "]"); start >= 0 && end > start {
		a = a[start : end+1]
	}

	var facts []string
	if err := json.Unmarshal([]byte(a), &facts); err != nil {
		return nil, fmt.Errorf("parsing extracted facts: %w", err)
	}
	return memory.Dedupe(facts), nil
}
