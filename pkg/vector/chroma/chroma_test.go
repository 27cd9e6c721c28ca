package chroma_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	cwlogger "github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/vector"
	"github.com/papercomputeco/cogniweave/pkg/vector/chroma"
)

var _ = Describe("Driver", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = cwlogger.Nop()
	})

	Describe("NewDriver", func() {
		It("should return an error when URL is empty", func() {
			_, err := chroma.NewDriver(chroma.Config{URL: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
		})

		It("should create a cosine collection when none exists", func() {
			fake := newFakeChroma()
			defer fake.Close()

			_, err := chroma.NewDriver(chroma.Config{URL: fake.URL}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.created).To(HaveKeyWithValue("name", chroma.DefaultCollectionName))
			Expect(fake.created).To(HaveKeyWithValue("metadata", HaveKeyWithValue("hnsw:space", "cosine")))
		})

		It("should succeed after retrying when Chroma becomes available", func() {
			var attempts atomic.Int32

			// The GET request for the collection and the POST to create it
			// are separate requests. Each retry attempt may hit both endpoints.
			// We track total requests and fail the first few to simulate Chroma
			// still starting up.
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempt := attempts.Add(1)

				// Fail the first 4 requests (2 retry cycles: GET+POST each),
				// succeed on the 5th (the GET of the 3rd retry cycle).
				if attempt <= 4 {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}

				// Return a valid collection response
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"id":   "test-collection-id",
					"name": chroma.DefaultCollectionName,
				})
			}))
			defer server.Close()

			driver, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    5,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(attempts.Load()).To(BeNumerically(">=", int32(5)))
		})

		It("should return an error after exhausting all retries", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    3,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("after 3 attempts"))
			Expect(errors.Is(err, vector.ErrConnection)).To(BeTrue())
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			// Compile-time check that Driver implements vector.Driver
			var _ vector.Driver = (*chroma.Driver)(nil)
		})
	})

	Describe("Documents", func() {
		var (
			ctx    context.Context
			fake   *fakeChroma
			driver *chroma.Driver
			base   time.Time
		)

		BeforeEach(func() {
			ctx = context.Background()
			base = time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC)
			fake = newFakeChroma()
			DeferCleanup(fake.Close)

			var err error
			driver, err = chroma.NewDriver(chroma.Config{URL: fake.URL}, logger)
			Expect(err).NotTo(HaveOccurred())
		})

		It("skips ids that are already stored", func() {
			doc := vector.Document{ID: "t1", Scope: "s1", Text: "likes tea", Embedding: []float32{1, 0}, CreatedAt: base}
			Expect(driver.Add(ctx, []vector.Document{doc})).To(Succeed())

			doc.Text = "likes coffee"
			Expect(driver.Add(ctx, []vector.Document{doc})).To(Succeed())

			docs, err := driver.Get(ctx, []string{"t1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Text).To(Equal("likes tea"))
			Expect(docs[0].Embedding).To(Equal([]float32{1, 0}))
			Expect(docs[0].CreatedAt).To(Equal(base))
		})

		It("filters queries by scope and converts distances to scores", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "a", Scope: "s1", Text: "likes tea", Embedding: []float32{1, 0}, CreatedAt: base},
				{ID: "b", Scope: "s2", Text: "likes rain", Embedding: []float32{1, 0}, CreatedAt: base},
			})).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0}, "s1", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.lastWhere).To(HaveKeyWithValue("scope", "s1"))
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("a"))
			Expect(results[0].Score).To(BeNumerically("~", 0.75, 1e-6))
		})
	})
})

type fakeDoc struct {
	text string
	meta map[string]any
}

// fakeChroma answers the subset of the v2 API the driver uses. Every query
// hit is reported at distance 0.25.
type fakeChroma struct {
	*httptest.Server

	mu        sync.Mutex
	docs      map[string]fakeDoc
	created   map[string]any
	lastWhere map[string]any
}

func newFakeChroma() *fakeChroma {
	f := &fakeChroma{docs: map[string]fakeDoc{}}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeChroma) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodGet:
		http.Error(w, "missing", http.StatusNotFound)

	case strings.HasSuffix(r.URL.Path, "/collections"):
		f.created = body
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": body["name"].(string)})

	case strings.HasSuffix(r.URL.Path, "/add"):
		ids := body["ids"].([]any)
		texts := body["documents"].([]any)
		metas := body["metadatas"].([]any)
		for i, id := range ids {
			f.docs[id.(string)] = fakeDoc{text: texts[i].(string), meta: metas[i].(map[string]any)}
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("{}"))

	case strings.HasSuffix(r.URL.Path, "/get"):
		resp := map[string]any{"ids": []string{}, "documents": []string{}, "metadatas": []map[string]any{}}
		for _, id := range body["ids"].([]any) {
			doc, ok := f.docs[id.(string)]
			if !ok {
				continue
			}
			resp["ids"] = append(resp["ids"].([]string), id.(string))
			resp["documents"] = append(resp["documents"].([]string), doc.text)
			resp["metadatas"] = append(resp["metadatas"].([]map[string]any), doc.meta)
		}
		_ = json.NewEncoder(w).Encode(resp)

	case strings.HasSuffix(r.URL.Path, "/query"):
		f.lastWhere, _ = body["where"].(map[string]any)
		var (
			ids       []string
			texts     []string
			metas     []map[string]any
			distances []float32
		)
		for id, doc := range f.docs {
			if doc.meta["scope"] != f.lastWhere["scope"] {
				continue
			}
			ids = append(ids, id)
			texts = append(texts, doc.text)
			metas = append(metas, doc.meta)
			distances = append(distances, 0.25)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ids":       [][]string{ids},
			"documents": [][]string{texts},
			"metadatas": [][]map[string]any{metas},
			"distances": [][]float32{distances},
		})

	default:
		http.Error(w, "unexpected", http.StatusBadRequest)
	}
}
