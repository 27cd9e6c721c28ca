package llm_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/llm"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
	"github.com/papercomputeco/cogniweave/pkg/vector"
)

func turn(role storage.Role, content string, at time.Time) storage.Turn {
	return storage.Turn{SessionID: "s1", Role: role, Content: content, CreatedAt: at, SegmentID: 1}
}

var _ = Describe("Messages", func() {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	It("merges consecutive roles and drops a leading assistant turn", func() {
		msgs := llm.FromTurns([]storage.Turn{
			turn(storage.RoleAgent, "welcome", at),
			turn(storage.RoleUser, "hi", at),
			turn(storage.RoleUser, "anyone?", at),
			turn(storage.RoleAgent, "yes", at),
		})
		Expect(msgs).To(Equal([]llm.Message{
			{Role: llm.RoleUser, Content: "hi\nanyone?"},
			{Role: llm.RoleAssistant, Content: "yes"},
		}))
	})

	It("appends the input after the recent turns", func() {
		msgs := llm.Conversation(runnable.Input{
			Text: "and you?",
			ShortMemory: []storage.Turn{
				turn(storage.RoleUser, "I'm fine", at),
				turn(storage.RoleAgent, "glad to hear", at),
			},
		})
		Expect(msgs).To(HaveLen(3))
		Expect(msgs[2]).To(Equal(llm.Message{Role: llm.RoleUser, Content: "and you?"}))
	})

	It("does not repeat held fragments joined into the input", func() {
		msgs := llm.Conversation(runnable.Input{
			Text: "Hello there",
			Held: 1,
			History: []storage.Turn{
				turn(storage.RoleUser, "hey", at),
				turn(storage.RoleAgent, "hi!", at),
				turn(storage.RoleUser, "Hel", at),
			},
		})
		Expect(msgs).To(Equal([]llm.Message{
			{Role: llm.RoleUser, Content: "hey"},
			{Role: llm.RoleAssistant, Content: "hi!"},
			{Role: llm.RoleUser, Content: "Hello there"},
		}))
	})

	It("keeps an earlier user turn that the input happens to contain", func() {
		msgs := llm.Conversation(runnable.Input{
			Text: "yes please",
			History: []storage.Turn{
				turn(storage.RoleAgent, "more tea?", at),
				turn(storage.RoleUser, "yes", at),
			},
		})
		Expect(msgs).To(Equal([]llm.Message{{Role: llm.RoleUser, Content: "yes\nyes please"}}))
	})

	It("drops only as many turns as fragments were held", func() {
		msgs := llm.Conversation(runnable.Input{
			Text: "so, the tea, is great",
			Held: 2,
			History: []storage.Turn{
				turn(storage.RoleUser, "tea", at),
				turn(storage.RoleAgent, "what about it?", at),
				turn(storage.RoleUser, "tea", at),
				turn(storage.RoleUser, "so, the tea,", at),
			},
		})
		Expect(msgs).To(Equal([]llm.Message{
			{Role: llm.RoleUser, Content: "tea"},
			{Role: llm.RoleAssistant, Content: "what about it?"},
			{Role: llm.RoleUser, Content: "so, the tea, is great"},
		}))
	})

	It("merges the input into an unanswered user turn", func() {
		msgs := llm.Conversation(runnable.Input{
			Text: "second",
			History: []storage.Turn{
				turn(storage.RoleUser, "first", at),
			},
		})
		Expect(msgs).To(Equal([]llm.Message{{Role: llm.RoleUser, Content: "first\nsecond"}}))
	})
})

var _ = Describe("Build", func() {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	config := llm.PromptConfig{
		Language: llm.LanguageEN,
		Now:      func() time.Time { return now },
	}

	It("renders long memory with relative timestamps", func() {
		p := llm.Build(config, runnable.Input{
			Text: "what do I drink?",
			LongMemory: []tagstore.Result{
				{Document: vector.Document{Text: "likes green tea", CreatedAt: now.Add(-24 * time.Hour)}, Score: 0.9},
			},
			ShortMemory: []storage.Turn{
				turn(storage.RoleUser, "morning", time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)),
			},
		})

		Expect(p.System).To(HavePrefix("You are a friendly"))
		Expect(p.System).To(ContainSubstring("Current time: 2026/03/10 14:30"))
		Expect(p.System).To(ContainSubstring("- [Yesterday 14:30] likes green tea"))
		Expect(p.System).To(ContainSubstring("Time of the previous message: 08:00"))
		Expect(p.Messages).To(Equal([]llm.Message{{Role: llm.RoleUser, Content: "morning\nwhat do I drink?"}}))
	})

	It("omits empty sections", func() {
		p := llm.Build(config, runnable.Input{Text: "hi"})
		Expect(p.System).NotTo(ContainSubstring("Things you remember"))
		Expect(p.System).NotTo(ContainSubstring("previous message"))
	})

	It("uses a custom persona", func() {
		c := config
		c.Persona = "You are a pirate."
		Expect(llm.Build(c, runnable.Input{Text: "hi"}).System).To(HavePrefix("You are a pirate."))
	})

	It("falls back to the default language", func() {
		Expect(llm.ParseLanguage("fr")).To(Equal(llm.DefaultLanguage))
		Expect(llm.ParseLanguage(" EN ")).To(Equal(llm.LanguageEN))
	})
})

var _ = Describe("Judging", func() {
	DescribeTable("ParseVerdict",
		func(answer string, want enddetect.Verdict) {
			v, err := llm.ParseVerdict(answer)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(want))
		},
		Entry("plain", "complete", enddetect.Complete),
		Entry("capitalized with period", "Incomplete.", enddetect.Incomplete),
		Entry("quoted", `"complete"`, enddetect.Complete),
	)

	It("rejects an unclear verdict", func() {
		_, err := llm.ParseVerdict("maybe")
		Expect(err).To(HaveOccurred())
	})

	It("parses fenced fact arrays and dedupes them", func() {
		facts, err := llm.ParseFacts("```json\n[\"likes tea\", \"Likes tea.\", \"lives in Oslo\"]\n```")
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(Equal([]string{"likes tea", "lives in Oslo"}))
	})

	It("finds the array inside surrounding prose", func() {
		facts, err := llm.ParseFacts(`Sure: ["has a cat"]`)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(Equal([]string{"has a cat"}))
	})

	It("rejects answers without an array", func() {
		_, err := llm.ParseFacts("nothing to remember")
		Expect(err).To(HaveOccurred())
	})
})
