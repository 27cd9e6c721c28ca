package runnable_test

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus/testutil"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/metrics"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
	testutils "github.com/papercomputeco/cogniweave/pkg/utils/test"
)

var _ = Describe("EndGate", func() {
	var (
		ctx        context.Context
		agent      *testutils.MockAgent
		classifier *testutils.ScriptedClassifier
		m          *metrics.Metrics
	)

	newGate := func(opts ...enddetect.Option) *runnable.EndGate {
		gate, err := runnable.NewEndGate(agent, runnable.GateConfig{
			Detector: enddetect.New(classifier, opts...),
			Default:  runnable.Output{Text: "..."},
			Metrics:  m,
		})
		Expect(err).NotTo(HaveOccurred())
		return gate
	}

	BeforeEach(func() {
		ctx = context.Background()
		agent = testutils.NewMockAgent("hi!")
		classifier = testutils.NewScriptedClassifier()
		m = metrics.New("test", nil)
	})

	It("requires a next stage", func() {
		_, err := runnable.NewEndGate(nil, runnable.GateConfig{})
		Expect(err).To(HaveOccurred())
	})

	It("holds an incomplete fragment without calling the agent", func() {
		classifier = testutils.NewScriptedClassifier(enddetect.Incomplete)
		gate := newGate()

		out, err := gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "Hel"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(runnable.Output{Text: "...", Forwarded: false}))
		Expect(agent.Inputs()).To(BeEmpty())

		pending, state := gate.Pending("s1")
		Expect(pending).To(Equal([]string{"Hel"}))
		Expect(state).To(Equal(enddetect.StateBuffering))
		Expect(testutil.ToFloat64(m.GateVerdicts.WithLabelValues("incomplete"))).To(Equal(1.0))
	})

	It("forwards the joined buffer exactly once when the turn completes", func() {
		classifier = testutils.NewScriptedClassifier(enddetect.Incomplete, enddetect.Complete)
		gate := newGate()

		_, err := gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "Hel"})
		Expect(err).NotTo(HaveOccurred())

		out, err := gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "lo there"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(runnable.Output{Text: "hi!", Forwarded: true}))

		inputs := agent.Inputs()
		Expect(inputs).To(HaveLen(1))
		Expect(inputs[0].Text).To(Equal("Hello there"))
		Expect(inputs[0].Held).To(Equal(1))
		Expect(classifier.Inputs()).To(Equal([]string{"Hel", "Hello there"}))

		pending, state := gate.Pending("s1")
		Expect(pending).To(BeEmpty())
		Expect(state).To(Equal(enddetect.StateIdle))
	})

	It("keeps buffers of different sessions apart", func() {
		classifier = testutils.NewScriptedClassifier(enddetect.Incomplete)
		gate := newGate()

		_, err := gate.Invoke(ctx, runnable.Input{SessionID: "a", Text: "one"})
		Expect(err).NotTo(HaveOccurred())
		_, err = gate.Invoke(ctx, runnable.Input{SessionID: "b", Text: "two"})
		Expect(err).NotTo(HaveOccurred())

		a, _ := gate.Pending("a")
		b, _ := gate.Pending("b")
		Expect(a).To(Equal([]string{"one"}))
		Expect(b).To(Equal([]string{"two"}))
	})

	It("holds blank input without consulting the classifier", func() {
		gate := newGate()

		out, err := gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "  "})
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Forwarded).To(BeFalse())
		Expect(classifier.Inputs()).To(BeEmpty())
	})

	It("keeps the buffer when the downstream call fails", func() {
		agent.StartErr = errors.New("model offline")
		gate := newGate()

		_, err := gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "Hello."})
		Expect(err).To(MatchError("model offline"))

		pending, _ := gate.Pending("s1")
		Expect(pending).To(Equal([]string{"Hello."}))

		agent.StartErr = nil
		_, err = gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: " Again."})
		Expect(err).NotTo(HaveOccurred())

		inputs := agent.Inputs()
		Expect(inputs[len(inputs)-1].Text).To(Equal("Hello. Again."))
		pending, _ = gate.Pending("s1")
		Expect(pending).To(BeEmpty())
	})

	It("keeps the buffer when the stream is closed early", func() {
		gate := newGate()

		s, err := gate.Stream(ctx, runnable.Input{SessionID: "s1", Text: "Hello."})
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Next()).To(BeTrue())
		Expect(s.Close()).To(Succeed())

		pending, _ := gate.Pending("s1")
		Expect(pending).To(Equal([]string{"Hello."}))
		Expect(gate.ActiveLocks()).To(BeZero())
	})

	Context("when the classifier fails", func() {
		BeforeEach(func() {
			classifier.Err = errors.New("classifier down")
		})

		It("forwards by default and counts the failure", func() {
			gate := newGate()

			out, err := gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "Hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Forwarded).To(BeTrue())
			Expect(testutil.ToFloat64(m.DetectionErrors)).To(Equal(1.0))
		})

		It("holds when failing closed", func() {
			gate := newGate(enddetect.WithFailClosed())

			out, err := gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "Hello"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Forwarded).To(BeFalse())
			Expect(agent.Inputs()).To(BeEmpty())
		})

		It("returns the error and drops the fragment when strict", func() {
			gate := newGate(enddetect.WithStrict())

			_, err := gate.Invoke(ctx, runnable.Input{SessionID: "s1", Text: "Hello"})
			var detErr *enddetect.DetectionError
			Expect(errors.As(err, &detErr)).To(BeTrue())
			Expect(detErr.Input).To(Equal("Hello"))

			pending, state := gate.Pending("s1")
			Expect(pending).To(BeEmpty())
			Expect(state).To(Equal(enddetect.StateIdle))
			Expect(gate.ActiveLocks()).To(BeZero())
		})
	})
})
