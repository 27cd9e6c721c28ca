package chromem_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/vector"
	"github.com/papercomputeco/cogniweave/pkg/vector/chromem"
)

var _ = Describe("Driver", func() {
	var (
		ctx  context.Context
		base time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)
	})

	It("implements vector.Driver", func() {
		var _ vector.Driver = (*chromem.Driver)(nil)
	})

	It("returns nothing for an empty scope", func() {
		d, err := chromem.NewDriver(chromem.Config{}, nil)
		Expect(err).NotTo(HaveOccurred())

		results, err := d.Query(ctx, []float32{1, 0}, "s1", 5)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("queries within a scope and breaks ties by recency", func() {
		d, err := chromem.NewDriver(chromem.Config{Index: "test"}, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(d.Add(ctx, []vector.Document{
			{ID: "older", Scope: "s1", Text: "likes jazz", Embedding: []float32{1, 0}, CreatedAt: base},
			{ID: "newer", Scope: "s1", Text: "loves jazz", Embedding: []float32{2, 0}, CreatedAt: base.Add(time.Minute)},
			{ID: "other", Scope: "s1", Text: "hates rain", Embedding: []float32{0, 1}, CreatedAt: base},
			{ID: "elsewhere", Scope: "s2", Text: "not here", Embedding: []float32{1, 0}, CreatedAt: base},
		})).To(Succeed())

		results, err := d.Query(ctx, []float32{1, 0}, "s1", 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0].ID).To(Equal("newer"))
		Expect(results[1].ID).To(Equal("older"))
	})

	It("reloads raw embeddings exactly from disk", func() {
		dir := GinkgoT().TempDir()
		emb := []float32{3, 4}

		first, err := chromem.NewDriver(chromem.Config{Path: dir, Index: "demo"}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Add(ctx, []vector.Document{
			{ID: "t1", Scope: "s1", Text: "runs marathons", Embedding: emb, CreatedAt: base},
		})).To(Succeed())

		second, err := chromem.NewDriver(chromem.Config{Path: dir, Index: "demo"}, nil)
		Expect(err).NotTo(HaveOccurred())

		docs, err := second.Get(ctx, []string{"t1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(1))
		Expect(docs[0].Embedding).To(Equal(emb))
		Expect(docs[0].CreatedAt).To(Equal(base))

		results, err := second.Query(ctx, emb, "s1", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].ID).To(Equal("t1"))
	})
})
