package weave_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/eventstream/nop"
	"github.com/papercomputeco/cogniweave/pkg/llm/anthropic"
	"github.com/papercomputeco/cogniweave/pkg/llm/ollama"
	"github.com/papercomputeco/cogniweave/pkg/memory/local"
	"github.com/papercomputeco/cogniweave/pkg/storage/inmemory"
	"github.com/papercomputeco/cogniweave/pkg/storage/sqlite"
	"github.com/papercomputeco/cogniweave/pkg/weave"
)

var _ = Describe("Build", func() {
	var (
		ctx context.Context
		dir string
		cfg *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()

		cfg = config.NewDefaultConfig()
		cfg.Storage.Provider = "memory"
		cfg.VectorStore.Provider = "chromem"
		cfg.Memory.Extractor = "none"
	})

	It("wires a pipeline from the defaults", func() {
		stack, err := weave.Build(ctx, cfg, weave.Options{Dir: dir})
		Expect(err).NotTo(HaveOccurred())

		Expect(stack.Pipeline).NotTo(BeNil())
		Expect(stack.History).To(BeAssignableToTypeOf(&inmemory.Driver{}))
		Expect(stack.Tags).NotTo(BeNil())
		Expect(stack.Publisher).To(BeAssignableToTypeOf(&nop.Publisher{}))
		Expect(stack.Metrics).To(BeNil())

		Expect(stack.Close(ctx)).To(Succeed())
	})

	It("registers metrics when a registry is given", func() {
		reg := prometheus.NewRegistry()
		stack, err := weave.Build(ctx, cfg, weave.Options{Dir: dir, Registry: reg})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = stack.Close(ctx) })

		Expect(stack.Metrics).NotTo(BeNil())
	})

	It("stores sqlite history under the folder, named after the index", func() {
		cfg.Storage.Provider = "sqlite"
		cfg.Index = "support"

		stack, err := weave.Build(ctx, cfg, weave.Options{Dir: dir})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = stack.Close(ctx) })

		Expect(stack.History).To(BeAssignableToTypeOf(&sqlite.SQLiteDriver{}))
		_, err = os.Stat(filepath.Join(dir, "support.sqlite"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("prefers the configured folder over the options directory", func() {
		cfg.Storage.Provider = "sqlite"
		cfg.Folder = filepath.Join(dir, "data")

		stack, err := weave.Build(ctx, cfg, weave.Options{Dir: dir})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = stack.Close(ctx) })

		_, err = os.Stat(filepath.Join(dir, "data", "demo.sqlite"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails on an unsupported provider", func() {
		cfg.Agent.Provider = "openai"
		_, err := weave.Build(ctx, cfg, weave.Options{Dir: dir})
		Expect(err).To(MatchError(ContainSubstring("unsupported agent provider")))
	})

	It("requires a config", func() {
		_, err := weave.Build(ctx, nil, weave.Options{})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("SQLitePath", func() {
	It("defaults to <folder>/<index>.sqlite", func() {
		cfg := config.NewDefaultConfig()
		Expect(weave.SQLitePath(cfg, "/data")).To(Equal(filepath.Join("/data", "demo.sqlite")))
	})

	It("honors an explicit path", func() {
		cfg := config.NewDefaultConfig()
		cfg.Storage.SQLitePath = "/tmp/history.db"
		Expect(weave.SQLitePath(cfg, "/data")).To(Equal("/tmp/history.db"))
	})
})

var _ = Describe("factories", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.NewDefaultConfig()
	})

	It("requires a DSN for postgres", func() {
		cfg.Storage.Provider = "postgres"
		_, err := weave.NewHistory(context.Background(), cfg, GinkgoT().TempDir())
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
	})

	It("builds the agent of the configured provider", func() {
		agent, err := weave.NewAgent(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(agent).To(BeAssignableToTypeOf(&ollama.Agent{}))

		cfg.Agent.Provider = "anthropic"
		cfg.Agent.APIKey = "test-key"
		agent, err = weave.NewAgent(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(agent).To(BeAssignableToTypeOf(&anthropic.Agent{}))
	})

	It("builds the extractor of the configured provider", func() {
		extractor, err := weave.NewExtractor(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(extractor).To(BeAssignableToTypeOf(&local.Extractor{}))

		cfg.Memory.Extractor = "none"
		extractor, err = weave.NewExtractor(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(extractor).To(BeNil())
	})

	DescribeTable("detector policies",
		func(policy string, ok bool) {
			cfg.EndDetector.Policy = policy
			detector, err := weave.NewDetector(cfg, nil)
			if ok {
				Expect(err).NotTo(HaveOccurred())
				Expect(detector).NotTo(BeNil())
			} else {
				Expect(err).To(HaveOccurred())
			}
		},
		Entry("open", "open", true),
		Entry("closed", "closed", true),
		Entry("strict", "strict", true),
		Entry("unknown", "lenient", false),
	)

	It("joins fragments with the configured separator", func() {
		cfg.EndDetector.Separator = " "
		detector, err := weave.NewDetector(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(detector.Join([]string{"a", "b"})).To(Equal("a b"))
	})

	It("builds a kafka publisher", func() {
		cfg.EventStream.Provider = "kafka"
		cfg.EventStream.Brokers = "localhost:9092"
		publisher, err := weave.NewPublisher(cfg, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher.Close()).To(Succeed())
	})
})
