package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/embeddings/openai"
	"github.com/papercomputeco/cogniweave/pkg/vector"
)

var _ = Describe("Embedder", func() {
	It("sends the bearer token and returns the first vector", func() {
		var auth, path string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			auth = r.Header.Get("Authorization")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"index": 0, "embedding": []float32{0.1, 0.9}}},
			})
		}))
		DeferCleanup(server.Close)

		embedder, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: server.URL + "/v1", APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())

		emb, err := embedder.Embed(context.Background(), "likes tea")
		Expect(err).NotTo(HaveOccurred())
		Expect(emb).To(Equal([]float32{0.1, 0.9}))
		Expect(path).To(Equal("/v1/embeddings"))
		Expect(auth).To(Equal("Bearer sk-test"))
	})

	It("rejects empty input without a request", func() {
		embedder, err := openai.NewEmbedder(openai.EmbedderConfig{BaseURL: "http://127.0.0.1:1"})
		Expect(err).NotTo(HaveOccurred())

		_, err = embedder.Embed(context.Background(), "")
		Expect(errors.Is(err, vector.ErrEmbedding)).To(BeTrue())
	})
})
