package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/enddetect"
	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/sse"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/storage/inmemory"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
	testutils "github.com/papercomputeco/cogniweave/pkg/utils/test"
)

var _ = Describe("Server", func() {
	var (
		ctx     context.Context
		agent   *testutils.MockAgent
		history *inmemory.Driver
		server  *Server
	)

	newServer := func(mutate func(c *Config)) *Server {
		pipeline, err := runnable.NewPipeline(runnable.Config{
			Agent:    agent,
			History:  history,
			Detector: enddetect.New(enddetect.Always(enddetect.Complete)),
		})
		Expect(err).NotTo(HaveOccurred())

		c := Config{ListenAddr: ":0", Pipeline: pipeline, History: history}
		if mutate != nil {
			mutate(&c)
		}
		s, err := NewServer(c)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	do := func(method, path, body string) (*http.Response, string) {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, r)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := server.app.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, string(data)
	}

	BeforeEach(func() {
		ctx = context.Background()
		agent = testutils.NewMockAgent("Hello there")
		history = inmemory.NewDriver()
		server = newServer(nil)
	})

	Describe("NewServer", func() {
		It("requires a pipeline and a history store", func() {
			_, err := NewServer(Config{History: history})
			Expect(err).To(MatchError("pipeline is required"))

			_, err = NewServer(Config{Pipeline: agent})
			Expect(err).To(MatchError("history store is required"))
		})
	})

	It("answers ping", func() {
		resp, body := do("GET", "/ping", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(Equal(`"pong"`))
	})

	Describe("invoke", func() {
		It("returns the answer and stores both turns", func() {
			resp, body := do("POST", "/v1/sessions/s1/invoke", `{"input":"hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out runnable.Output
			Expect(json.Unmarshal([]byte(body), &out)).To(Succeed())
			Expect(out.Text).To(Equal("Hello there"))
			Expect(out.Forwarded).To(BeTrue())

			turns, err := history.History(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Content).To(Equal("hi"))
			Expect(turns[1].Role).To(Equal(storage.RoleAgent))
		})

		It("rejects a malformed body", func() {
			resp, body := do("POST", "/v1/sessions/s1/invoke", `{"input":`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body).To(ContainSubstring("invalid request body"))
		})

		It("keeps each session's turns apart across requests", func() {
			do("POST", "/v1/sessions/s1/invoke", `{"input":"first"}`)
			do("POST", "/v1/sessions/s2/invoke", `{"input":"second"}`)
			do("POST", "/v1/sessions/s3/invoke", `{"input":"third"}`)

			for session, text := range map[string]string{"s1": "first", "s2": "second", "s3": "third"} {
				turns, err := history.History(ctx, session, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(turns).To(HaveLen(2), session)
				Expect(turns[0].Content).To(Equal(text))
				Expect(turns[0].SessionID).To(Equal(session))
			}

			sessions, err := history.Sessions(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions).To(ConsistOf("s1", "s2", "s3"))
		})

		It("resumes a held session after another session answered", func() {
			pipeline, err := runnable.NewPipeline(runnable.Config{
				Agent:    agent,
				History:  history,
				Detector: enddetect.New(enddetect.NewRules()),
			})
			Expect(err).NotTo(HaveOccurred())
			server, err = NewServer(Config{Pipeline: pipeline, History: history})
			Expect(err).NotTo(HaveOccurred())

			_, body := do("POST", "/v1/sessions/s1/invoke", `{"input":"I was thinking,"}`)
			Expect(body).To(ContainSubstring(`"forwarded":false`))
			do("POST", "/v1/sessions/s2/invoke", `{"input":"Bye."}`)
			do("POST", "/v1/sessions/s1/invoke", `{"input":"that tea is great."}`)

			inputs := agent.Inputs()
			Expect(inputs).To(HaveLen(2))
			Expect(inputs[0].SessionID).To(Equal("s2"))
			Expect(inputs[1].SessionID).To(Equal("s1"))
			Expect(inputs[1].Text).To(ContainSubstring("I was thinking,"))
			Expect(inputs[1].Text).To(ContainSubstring("that tea is great."))

			turns, err := history.History(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(3))
		})

		It("maps agent failures to a bad gateway", func() {
			agent.StartErr = errors.New("model offline")
			resp, body := do("POST", "/v1/sessions/s1/invoke", `{"input":"hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(body).To(ContainSubstring("model offline"))
		})

		It("maps history failures to an internal error", func() {
			flaky := testutils.NewFlakyHistory(history)
			flaky.FailHistory.Store(true)
			pipeline, err := runnable.NewPipeline(runnable.Config{
				Agent:    agent,
				History:  flaky,
				Detector: enddetect.New(enddetect.Always(enddetect.Complete)),
			})
			Expect(err).NotTo(HaveOccurred())
			server, err = NewServer(Config{Pipeline: pipeline, History: flaky})
			Expect(err).NotTo(HaveOccurred())

			resp, _ := do("POST", "/v1/sessions/s1/invoke", `{"input":"hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("stream", func() {
		It("sends one event per chunk and a final done event", func() {
			resp, body := do("POST", "/v1/sessions/s1/stream", `{"input":"hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))

			r := sse.NewReader(strings.NewReader(body))
			var chunks []string
			var last *sse.Event
			for {
				ev, err := r.Next()
				Expect(err).NotTo(HaveOccurred())
				if ev == nil {
					break
				}
				if ev.Type == "" {
					var c StreamChunk
					Expect(json.Unmarshal([]byte(ev.Data), &c)).To(Succeed())
					chunks = append(chunks, c.Output)
				}
				last = ev
			}

			Expect(strings.Join(chunks, "")).To(Equal("Hello there"))
			Expect(last.Type).To(Equal(sse.TypeDone))
			Expect(last.Data).To(Equal(`{"forwarded":true}`))

			turns, err := history.History(ctx, "s1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(turns).To(HaveLen(2))
		})

		It("ends with an error event when the agent fails mid-stream", func() {
			agent.StreamErr = errors.New("connection reset")
			resp, body := do("POST", "/v1/sessions/s1/stream", `{"input":"hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("event: error"))
			Expect(body).To(ContainSubstring("connection reset"))
			Expect(body).NotTo(ContainSubstring("event: done"))
		})

		It("fails before streaming when the agent cannot start", func() {
			agent.StartErr = errors.New("model offline")
			resp, _ := do("POST", "/v1/sessions/s1/stream", `{"input":"hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("history and sessions", func() {
		BeforeEach(func() {
			for _, text := range []string{"one", "two"} {
				resp, _ := do("POST", "/v1/sessions/s1/invoke", `{"input":"`+text+`"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			}
			resp, _ := do("POST", "/v1/sessions/s2/invoke", `{"input":"three"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("returns the last turns of a session", func() {
			resp, body := do("GET", "/v1/sessions/s1/history?limit=2", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out HistoryResponse
			Expect(json.Unmarshal([]byte(body), &out)).To(Succeed())
			Expect(out.Count).To(Equal(2))
			Expect(out.Turns[0].Content).To(Equal("two"))
			Expect(out.Turns[1].Content).To(Equal("Hello there"))
		})

		It("returns an empty list for unknown sessions", func() {
			_, body := do("GET", "/v1/sessions/nobody/history", "")
			Expect(body).To(ContainSubstring(`"turns":[]`))
		})

		It("rejects a bad limit", func() {
			resp, _ := do("GET", "/v1/sessions/s1/history?limit=-1", "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("lists sessions", func() {
			_, body := do("GET", "/v1/sessions", "")

			var out SessionsResponse
			Expect(json.Unmarshal([]byte(body), &out)).To(Succeed())
			Expect(out.Sessions).To(ConsistOf("s1", "s2"))
		})
	})

	Describe("tags flush", func() {
		It("is unavailable without long memory", func() {
			resp, _ := do("POST", "/v1/tags/flush", "")
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})

		It("writes pending tags", func() {
			driver := testutils.NewMockVectorDriver()
			tags, err := tagstore.New(tagstore.Config{Driver: driver})
			Expect(err).NotTo(HaveOccurred())
			_, err = tags.Add(ctx, "User likes tea", []float32{1, 0}, "s1")
			Expect(err).NotTo(HaveOccurred())

			server = newServer(func(c *Config) { c.Tags = tags })
			resp, body := do("POST", "/v1/tags/flush", "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal(`{"flushed":1}`))
			Expect(driver.Documents()).To(HaveLen(1))
		})
	})

	It("mounts the metrics handler", func() {
		server = newServer(func(c *Config) {
			c.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "cogniweave_turns_persisted_total 2\n")
			})
		})
		resp, body := do("GET", "/metrics", "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("turns_persisted_total"))
	})
})
