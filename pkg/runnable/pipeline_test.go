package runnable_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/segment"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/storage/inmemory"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
	testutils "github.com/papercomputeco/cogniweave/pkg/utils/test"
)

var _ = Describe("Pipeline", func() {
	var (
		ctx     context.Context
		agent   *testutils.MockAgent
		history *inmemory.Driver
		clock   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		agent = testutils.NewMockAgent("")
		history = inmemory.NewDriver()
		clock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	})

	It("requires an agent", func() {
		_, err := runnable.NewPipeline(runnable.Config{History: history})
		Expect(err).To(HaveOccurred())
	})

	It("splits a session into segments by inactivity", func() {
		start := clock
		p, err := runnable.NewPipeline(runnable.Config{
			Agent:    agent,
			History:  history,
			Detector: enddetect.New(enddetect.Always(enddetect.Complete)),
			Splitter: segment.NewSplitter(60 * time.Second),
			Now:      func() time.Time { return clock },
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = p.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "first"})
		Expect(err).NotTo(HaveOccurred())

		clock = start.Add(30 * time.Second)
		_, err = p.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "second"})
		Expect(err).NotTo(HaveOccurred())

		turns, err := p.History(ctx, "s1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(turns).To(HaveLen(2))
		Expect(turns[0].Content).To(Equal("first"))
		Expect(turns[1].Content).To(Equal("second"))
		Expect(turns[0].SegmentID).To(Equal(turns[1].SegmentID))

		clock = start.Add(200 * time.Second)
		_, err = p.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "third"})
		Expect(err).NotTo(HaveOccurred())

		turns, err = p.History(ctx, "s1", 0)
		Expect(err).NotTo(HaveOccurred())
		ids := make([]int64, len(turns))
		for i, t := range turns {
			ids[i] = t.SegmentID
		}
		Expect(ids).To(Equal([]int64{1, 1, 2}))
	})

	It("records held fragments without an agent turn", func() {
		classifier := testutils.NewScriptedClassifier(enddetect.Incomplete, enddetect.Complete)
		agent.Reply = "hi!"
		p, err := runnable.NewPipeline(runnable.Config{
			Agent:      agent,
			History:    history,
			Detector:   enddetect.New(classifier),
			HeldOutput: runnable.Output{Text: "..."},
			Now:        func() time.Time { return clock },
		})
		Expect(err).NotTo(HaveOccurred())

		out, err := p.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "Hel"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(runnable.Output{Text: "...", Forwarded: false}))

		out, err = p.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "lo there"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(runnable.Output{Text: "hi!", Forwarded: true}))

		Expect(agent.Inputs()).To(HaveLen(1))
		Expect(agent.Inputs()[0].Text).To(Equal("Hello there"))

		turns, err := p.History(ctx, "s1", 0)
		Expect(err).NotTo(HaveOccurred())
		roles := make([]storage.Role, len(turns))
		contents := make([]string, len(turns))
		for i, t := range turns {
			roles[i] = t.Role
			contents[i] = t.Content
		}
		Expect(roles).To(Equal([]storage.Role{storage.RoleUser, storage.RoleUser, storage.RoleAgent}))
		Expect(contents).To(Equal([]string{"Hel", "lo there", "hi!"}))
	})

	It("remembers facts across sessions sharing a scope", func() {
		agent.Reply = "noted"
		vectors := testutils.NewMockVectorDriver()
		tags, err := tagstore.New(tagstore.Config{Driver: vectors, AutoSave: true})
		Expect(err).NotTo(HaveOccurred())

		p, err := runnable.NewPipeline(runnable.Config{
			Agent:     agent,
			History:   history,
			Tags:      tags,
			Embedder:  testutils.NewMockEmbedder(),
			Extractor: testutils.NewMockExtractor("likes green tea"),
			Detector:  enddetect.New(enddetect.Always(enddetect.Complete)),
			Scope:     func(string) string { return "user-1" },
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = p.Invoke(ctx, runnable.Input{SessionID: "monday", Text: "I like green tea."})
		Expect(err).NotTo(HaveOccurred())
		_, err = p.Invoke(ctx, runnable.Input{SessionID: "tuesday", Text: "What should I drink?"})
		Expect(err).NotTo(HaveOccurred())

		inputs := agent.Inputs()
		Expect(inputs[0].LongMemory).To(BeEmpty())
		Expect(inputs[1].LongMemory).To(HaveLen(1))
		Expect(inputs[1].LongMemory[0].Text).To(Equal("likes green tea"))
		Expect(inputs[1].ShortMemory).To(BeEmpty())
	})
})
