package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/cogniweave/pkg/eventstream"
	"github.com/papercomputeco/cogniweave/pkg/eventstream/kafka"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		writer    *fakeWriter
		publisher *kafka.Publisher
		event     *eventstream.TurnEvent
	)

	BeforeEach(func() {
		writer = &fakeWriter{}
		publisher = kafka.NewTestPublisher(writer)
		event = eventstream.NewTurnEvent(
			eventstream.EventTypeTurnPersisted,
			eventstream.EventSource{Service: "cogniweave"},
			eventstream.ExchangeMeta{SessionID: "s1"},
			nil,
			time.Now(),
		)
	})

	It("requires brokers", func() {
		_, err := kafka.NewPublisher(kafka.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects nil events", func() {
		Expect(publisher.PublishTurn(context.Background(), nil)).To(MatchError(eventstream.ErrNilTurnEvent))
	})

	It("keys messages by session and carries the event type header", func() {
		Expect(publisher.PublishTurn(context.Background(), event)).To(Succeed())
		Expect(writer.messages).To(HaveLen(1))

		msg := writer.messages[0]
		Expect(string(msg.Key)).To(Equal("s1"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeTurnPersisted)}))

		var decoded eventstream.TurnEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
	})

	It("wraps writer failures", func() {
		writer.err = errors.New("broker down")
		err := publisher.PublishTurn(context.Background(), event)
		Expect(err).To(MatchError(ContainSubstring("broker down")))
	})

	It("closes the writer", func() {
		Expect(publisher.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})

	It("rejects events after Close", func() {
		Expect(publisher.Close()).To(Succeed())
		Expect(publisher.Close()).To(Succeed())
		Expect(publisher.PublishTurn(context.Background(), event)).To(MatchError(eventstream.ErrPublisherClosed))
		Expect(writer.messages).To(BeEmpty())
	})
})
