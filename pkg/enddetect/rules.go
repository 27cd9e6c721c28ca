package enddetect

import (
	"context"
	"regexp"
	"strings"
)

var (
	continuationTailRe   = regexp.MustCompile(`(?i)\b(and|but|because|so|then|which|that|if|when|while|as|to|for|or|with)\s*$`)
	continuationPhraseRe = regexp.MustCompile(`(?i)\b(i mean|for example|for instance|in order to)\s*$`)
	terminalTailRe       = regexp.MustCompile(`(?i)([.!?。！？]["'」』)）]?\s*$|\b(done|thanks|thank you|that's all|thats all)\s*$)`)
	openTailRe           = regexp.MustCompile(`([,;:\-、，；：]|\.\.\.|…)\s*$`)
)

// Rules is a classifier built from textual cues: terminal punctuation
// (including CJK terminators) completes a turn; an open tail such as a
// trailing comma, dash or ellipsis, or a dangling conjunction, keeps it
// open. Text with no cue gets Default.
type Rules struct {
	Default Verdict
}

// NewRules returns Rules that treat neutral text as Complete.
func NewRules() *Rules {
	return &Rules{Default: Complete}
}

// Classify never fails.
func (r *Rules) Classify(_ context.Context, text string) (Verdict, error) {
	normalized := strings.TrimSpace(strings.ToLower(text))
	switch {
	case normalized == "":
		return Incomplete, nil
	case openTailRe.MatchString(normalized):
		return Incomplete, nil
	case terminalTailRe.MatchString(normalized):
		return Complete, nil
	case continuationTailRe.MatchString(normalized), continuationPhraseRe.MatchString(normalized):
		return Incomplete, nil
	}

	if r.Default == "" {
		return Complete, nil
	}
	return r.Default, nil
}
