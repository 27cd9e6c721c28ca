package sse

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WriteEvent", func() {
	It("writes a default message frame", func() {
		var buf bytes.Buffer
		Expect(WriteEvent(&buf, Event{Data: `{"output":"hi"}`})).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"output\":\"hi\"}\n\n"))
	})

	It("writes id and type before the data", func() {
		var buf bytes.Buffer
		Expect(WriteEvent(&buf, Event{ID: "3", Type: TypeDone, Data: "{}"})).To(Succeed())
		Expect(buf.String()).To(Equal("id: 3\nevent: done\ndata: {}\n\n"))
	})

	It("round trips multi-line data and keep-alives through the reader", func() {
		var buf bytes.Buffer
		Expect(WriteComment(&buf, "ping")).To(Succeed())
		Expect(WriteEvent(&buf, Event{Data: "line one\nline two"})).To(Succeed())
		Expect(WriteEvent(&buf, Event{Type: TypeError, Data: "boom"})).To(Succeed())

		r := NewReader(&buf)

		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Data).To(Equal("line one\nline two"))

		ev, err = r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Type).To(Equal(TypeError))
		Expect(ev.Data).To(Equal("boom"))

		ev, err = r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(BeNil())
	})
})
