package nop_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/eventstream"
	"github.com/papercomputeco/cogniweave/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	var (
		ctx   context.Context
		p     *nop.Publisher
		event *eventstream.TurnEvent
	)

	BeforeEach(func() {
		ctx = context.Background()
		p = nop.NewPublisher()
		event = eventstream.NewTurnEvent(
			eventstream.EventTypeTurnPersisted,
			eventstream.EventSource{Service: "cogniweave"},
			eventstream.ExchangeMeta{SessionID: "s1", Forwarded: true},
			nil,
			time.Now(),
		)
	})

	It("accepts and counts events", func() {
		Expect(p.PublishTurn(ctx, event)).To(Succeed())
		Expect(p.PublishTurn(ctx, event)).To(Succeed())
		Expect(p.Published()).To(Equal(int64(2)))
	})

	It("rejects nil events", func() {
		Expect(p.PublishTurn(ctx, nil)).To(MatchError(eventstream.ErrNilTurnEvent))
		Expect(p.Published()).To(BeZero())
	})

	It("rejects events after Close", func() {
		Expect(p.Close()).To(Succeed())
		Expect(p.PublishTurn(ctx, event)).To(MatchError(eventstream.ErrPublisherClosed))
	})
})
