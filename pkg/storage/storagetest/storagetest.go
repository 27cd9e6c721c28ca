// Package storagetest holds the behaviors every storage.Driver must satisfy.
// Driver test suites call DescribeDriver with a factory for their backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/storage"
)

// NewTurn builds a turn at base+offset for tests.
func NewTurn(sessionID string, role storage.Role, content string, at time.Time, segment int64) storage.Turn {
	return storage.Turn{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
		SegmentID: segment,
	}
}

// DescribeDriver registers the shared history store specs. newDriver is
// called before each test; the returned driver is closed after it.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
		base   time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			_ = driver.Close()
		}
	})

	Describe("Append and History", func() {
		It("returns an empty slice for an unknown session", func() {
			turns, err := driver.History(ctx, "nobody", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).NotTo(BeNil())
			Expect(turns).To(BeEmpty())
		})

		It("round-trips turns in chronological order", func() {
			for i := range 5 {
				role := storage.RoleUser
				if i%2 == 1 {
					role = storage.RoleAgent
				}
				t := NewTurn("s1", role, fmt.Sprintf("message %d", i), base.Add(time.Duration(i)*time.Second), 1)
				Expect(driver.Append(ctx, t)).To(Succeed())
			}

			turns, err := driver.History(ctx, "s1", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(5))
			for i, t := range turns {
				Expect(t.Content).To(Equal(fmt.Sprintf("message %d", i)))
				Expect(t.CreatedAt.Equal(base.Add(time.Duration(i) * time.Second))).To(BeTrue())
				Expect(t.SessionID).To(Equal("s1"))
				Expect(t.SegmentID).To(Equal(int64(1)))
				Expect(t.ID).NotTo(BeEmpty())
			}
			Expect(turns[0].Role).To(Equal(storage.RoleUser))
			Expect(turns[1].Role).To(Equal(storage.RoleAgent))
		})

		It("returns everything for a non-positive limit", func() {
			for i := range 3 {
				Expect(driver.Append(ctx, NewTurn("s1", storage.RoleUser, fmt.Sprint(i), base, 1))).To(Succeed())
			}

			turns, err := driver.History(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
		})

		It("returns only the most recent turns when limited", func() {
			for i := range 6 {
				Expect(driver.Append(ctx, NewTurn("s1", storage.RoleUser, fmt.Sprint(i), base.Add(time.Duration(i)*time.Minute), 1))).To(Succeed())
			}

			turns, err := driver.History(ctx, "s1", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Content).To(Equal("4"))
			Expect(turns[1].Content).To(Equal("5"))
		})

		It("orders by insertion, not by timestamp", func() {
			Expect(driver.Append(ctx, NewTurn("s1", storage.RoleUser, "first", base.Add(time.Minute), 1))).To(Succeed())
			Expect(driver.Append(ctx, NewTurn("s1", storage.RoleAgent, "second", base, 1))).To(Succeed())

			turns, err := driver.History(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns[0].Content).To(Equal("first"))
			Expect(turns[1].Content).To(Equal("second"))
		})

		It("keeps sessions apart", func() {
			Expect(driver.Append(ctx, NewTurn("a", storage.RoleUser, "for a", base, 1))).To(Succeed())
			Expect(driver.Append(ctx, NewTurn("b", storage.RoleUser, "for b", base, 1))).To(Succeed())

			turns, err := driver.History(ctx, "a", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(1))
			Expect(turns[0].Content).To(Equal("for a"))
		})

		It("appends a batch in argument order", func() {
			err := driver.Append(ctx,
				NewTurn("s1", storage.RoleUser, "question", base, 1),
				NewTurn("s1", storage.RoleAgent, "answer", base, 1),
			)
			Expect(err).NotTo(HaveOccurred())

			turns, err := driver.History(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Role).To(Equal(storage.RoleUser))
			Expect(turns[1].Role).To(Equal(storage.RoleAgent))
		})

		It("writes nothing when any turn of a batch is invalid", func() {
			err := driver.Append(ctx,
				NewTurn("s1", storage.RoleUser, "question", base, 1),
				NewTurn("s1", storage.Role("robot"), "answer", base, 1),
			)
			Expect(err).To(MatchError(storage.ErrInvalidTurn))

			turns, err := driver.History(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(BeEmpty())
		})

		It("rejects turns without a session", func() {
			err := driver.Append(ctx, NewTurn("", storage.RoleUser, "x", base, 1))
			Expect(errors.Is(err, storage.ErrInvalidTurn)).To(BeTrue())
		})

		It("is safe for concurrent appends across sessions", func() {
			var wg sync.WaitGroup
			for s := range 4 {
				wg.Add(1)
				go func(session string) {
					defer GinkgoRecover()
					defer wg.Done()
					for i := range 10 {
						Expect(driver.Append(ctx, NewTurn(session, storage.RoleUser, fmt.Sprint(i), base, 1))).To(Succeed())
					}
				}(fmt.Sprintf("session-%d", s))
			}
			wg.Wait()

			for s := range 4 {
				turns, err := driver.History(ctx, fmt.Sprintf("session-%d", s), 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(turns).To(HaveLen(10))
				Expect(turns[9].Content).To(Equal("9"))
			}
		})
	})

	Describe("Sessions", func() {
		It("lists sessions by most recent activity", func() {
			Expect(driver.Append(ctx, NewTurn("old", storage.RoleUser, "x", base, 1))).To(Succeed())
			Expect(driver.Append(ctx, NewTurn("new", storage.RoleUser, "y", base, 1))).To(Succeed())

			sessions, err := driver.Sessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(Equal([]string{"new", "old"}))
		})
	})

	Describe("Close", func() {
		It("reports the store as unreachable afterwards", func() {
			Expect(driver.Close()).To(Succeed())

			_, err := driver.History(ctx, "s1", 0)
			Expect(storage.IsUnreachable(err)).To(BeTrue())

			var storeErr *storage.Error
			Expect(errors.As(err, &storeErr)).To(BeTrue())
			Expect(storeErr.Op).To(Equal("history"))

			err = driver.Append(ctx, NewTurn("s1", storage.RoleUser, "x", base, 1))
			Expect(storage.IsUnreachable(err)).To(BeTrue())

			driver = nil
		})
	})
}
