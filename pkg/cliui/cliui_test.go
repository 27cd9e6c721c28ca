package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/cliui"
)

var _ = Describe("cliui", func() {
	It("formats short and long durations", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("marks failures and successes differently", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark))
		Expect(cliui.Mark(errors.New("boom"))).To(Equal(cliui.FailMark))
	})

	It("returns the error of a step and prints its message", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "opening stores", func() error { return errors.New("locked") })
		Expect(err).To(MatchError("locked"))
		Expect(buf.String()).To(ContainSubstring("opening stores"))
	})

	It("prints a single plain line when the writer is not a terminal", func() {
		var buf bytes.Buffer
		Expect(cliui.Step(&buf, "building pipeline", func() error { return nil })).To(Succeed())
		Expect(buf.String()).NotTo(ContainSubstring("\r"))
		Expect(buf.String()).To(HavePrefix("  " + cliui.SuccessMark + " building pipeline"))
		Expect(strings.Count(buf.String(), "\n")).To(Equal(1))
	})

	It("keeps the answer text inside the bubble", func() {
		Expect(cliui.Bubble("hello there")).To(ContainSubstring("hello"))
	})
})
