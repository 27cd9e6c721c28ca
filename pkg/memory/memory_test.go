package memory_test

import (
	"context"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/memory"
)

var _ = Describe("Dedupe", func() {
	It("normalizes and drops case-insensitive repeats", func() {
		Expect(memory.Dedupe([]string{
			"  likes   tea. ",
			"Likes tea",
			"",
			"lives in Berlin!",
		})).To(Equal([]string{"likes tea", "lives in Berlin"}))
	})
})

var _ = Describe("Pool", func() {
	It("runs every queued job before Close returns", func() {
		pool, err := memory.NewPool(memory.PoolConfig{NumWorkers: 3})
		Expect(err).NotTo(HaveOccurred())

		var ran atomic.Int32
		for range 20 {
			Expect(pool.Enqueue(memory.Job{
				Name: "count",
				Run:  func(context.Context) { ran.Add(1) },
			})).To(Succeed())
		}

		pool.Close()
		Expect(ran.Load()).To(Equal(int32(20)))
	})

	It("survives a panicking job", func() {
		pool, err := memory.NewPool(memory.PoolConfig{NumWorkers: 1})
		Expect(err).NotTo(HaveOccurred())

		var ran atomic.Bool
		Expect(pool.Enqueue(memory.Job{Name: "boom", Run: func(context.Context) { panic("boom") }})).To(Succeed())
		Expect(pool.Enqueue(memory.Job{Name: "after", Run: func(context.Context) { ran.Store(true) }})).To(Succeed())

		pool.Close()
		Expect(ran.Load()).To(BeTrue())
	})

	It("drops jobs when the queue is full", func() {
		pool, err := memory.NewPool(memory.PoolConfig{NumWorkers: 1, QueueSize: 1})
		Expect(err).NotTo(HaveOccurred())

		release := make(chan struct{})
		started := make(chan struct{})
		Expect(pool.Enqueue(memory.Job{Name: "block", Run: func(context.Context) {
			close(started)
			<-release
		}})).To(Succeed())
		Eventually(started).Should(BeClosed())

		Expect(pool.Enqueue(memory.Job{Name: "queued", Run: func(context.Context) {}})).To(Succeed())
		Expect(pool.Enqueue(memory.Job{Name: "dropped", Run: func(context.Context) {}})).To(MatchError(memory.ErrQueueFull))

		close(release)
		pool.Close()
	})

	It("rejects jobs after Close", func() {
		pool, err := memory.NewPool(memory.PoolConfig{})
		Expect(err).NotTo(HaveOccurred())
		pool.Close()
		pool.Close()

		Expect(pool.Enqueue(memory.Job{Name: "late", Run: func(context.Context) {}})).To(MatchError(memory.ErrPoolClosed))
	})
})
