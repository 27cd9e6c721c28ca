// Package llm renders pipeline inputs into chat prompts and holds the
// prompt text shared by the model-backed agent, classifier and extractor
// implementations in its subpackages.
package llm

import (
	"strings"

	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/storage"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message in provider-neutral form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FromTurns converts stored turns into chat messages. Consecutive turns of
// the same role are merged and leading assistant turns are dropped, so the
// result always starts with a user message and alternates roles.
func FromTurns(turns []storage.Turn) []Message {
	var out []Message
	for _, t := range turns {
		role := RoleUser
		if t.Role == storage.RoleAgent {
			role = RoleAssistant
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		if len(out) == 0 && role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + t.Content
			continue
		}
		out = append(out, Message{Role: role, Content: t.Content})
	}
	return out
}

// Conversation returns the messages to send for in: the recent turns
// followed by the user input. Short memory is preferred over the loaded
// history. The last in.Held user turns are the fragments the end gate
// joined into the input and are not repeated.
func Conversation(in runnable.Input) []Message {
	turns := in.ShortMemory
	if len(turns) == 0 {
		turns = in.History
	}

	end := len(turns)
	for held := in.Held; held > 0 && end > 0 && turns[end-1].Role == storage.RoleUser; held-- {
		end--
	}

	msgs := FromTurns(turns[:end])
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleUser {
		msgs[n-1].Content += "\n" + in.Text
		return msgs
	}
	return append(msgs, Message{Role: RoleUser, Content: in.Text})
}
