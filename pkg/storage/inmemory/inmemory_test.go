package inmemory_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/storage/inmemory"
	"github.com/papercomputeco/cogniweave/pkg/storage/storagetest"
)

var _ = Describe("Driver", func() {
	storagetest.DescribeDriver(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("returns copies that callers cannot mutate", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		Expect(d.Append(ctx, storagetest.NewTurn("s1", storage.RoleUser, "original", time.Now(), 1))).To(Succeed())

		turns, err := d.History(ctx, "s1", 0)
		Expect(err).NotTo(HaveOccurred())
		turns[0].Content = "changed"

		again, err := d.History(ctx, "s1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(again[0].Content).To(Equal("original"))
		Expect(d.Count()).To(Equal(1))
	})
})
