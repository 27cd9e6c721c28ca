package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/utils"
)

// Language selects the prompt language.
type Language string

const (
	LanguageZH Language = "zh"
	LanguageEN Language = "en"
)

// DefaultLanguage matches the default persona of the original deployment.
const DefaultLanguage = LanguageZH

// ParseLanguage maps a configured language onto a supported one, falling
// back to DefaultLanguage.
func ParseLanguage(s string) Language {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguageEN:
		return LanguageEN
	case LanguageZH:
		return LanguageZH
	default:
		return DefaultLanguage
	}
}

var personas = map[Language]string{
	LanguageZH: "你是一个友好、体贴的聊天伙伴。请用自然、简洁的中文回复，记住用户告诉过你的事情，并在合适的时候自然地提起。",
	LanguageEN: "You are a friendly and attentive chat companion. Reply naturally and concisely, remember what the user has told you and bring it up when it fits.",
}

var headings = map[Language]struct {
	now, memory, last string
}{
	LanguageZH: {now: "当前时间", memory: "你记得的关于用户的事情", last: "上一条消息的时间"},
	LanguageEN: {now: "Current time", memory: "Things you remember about the user", last: "Time of the previous message"},
}

// PromptConfig configures how inputs are rendered.
type PromptConfig struct {
	Language Language

	// Persona replaces the built-in persona of the language.
	Persona string

	// Now overrides the clock used for relative timestamps.
	Now func() time.Time
}

// Prompt is a rendered system prompt plus the conversation to send.
type Prompt struct {
	System   string
	Messages []Message
}

// Build renders in. The system prompt carries the persona, the current
// time, the long memory tags and the time of the last turn; the messages
// carry the recent turns and the input.
func Build(c PromptConfig, in runnable.Input) Prompt {
	lang := c.Language
	if _, ok := personas[lang]; !ok {
		lang = DefaultLanguage
	}
	persona := c.Persona
	if persona == "" {
		persona = personas[lang]
	}
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	h := headings[lang]

	var b strings.Builder
	b.WriteString(persona)
	fmt.Fprintf(&b, "\n\n%s: %s", h.now, now.Format("2006/01/02 15:04"))

	if len(in.LongMemory) > 0 {
		fmt.Fprintf(&b, "\n\n%s:", h.memory)
		for _, tag := range in.LongMemory {
			fmt.Fprintf(&b, "\n- [%s] %s", utils.FormatRelative(tag.CreatedAt, now), tag.Text)
		}
	}

	recent := in.ShortMemory
	if len(recent) == 0 {
		recent = in.History
	}
	if n := len(recent); n > 0 {
		fmt.Fprintf(&b, "\n\n%s: %s", h.last, utils.FormatRelative(recent[n-1].CreatedAt, now))
	}

	return Prompt{
		System:   b.String(),
		Messages: Conversation(in),
	}
}
