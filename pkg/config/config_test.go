package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	writeConfig := func(data string) {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
	}

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file over the defaults", func() {
			writeConfig(`version = 0
index = "support"

[agent]
provider = "anthropic"
model = "claude-sonnet-4-5"

[memory]
top_k = 7
include_global = true
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Index).To(Equal("support"))
			Expect(cfg.Agent.Provider).To(Equal("anthropic"))
			Expect(cfg.Agent.Model).To(Equal("claude-sonnet-4-5"))
			Expect(cfg.Memory.TopK).To(Equal(uint(7)))
			Expect(cfg.Memory.IncludeGlobal).To(BeTrue())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Language).To(Equal(defaults.Language))
			Expect(cfg.Memory.ShortMemory).To(Equal(defaults.Memory.ShortMemory))
			Expect(cfg.Session.Gap).To(Equal(defaults.Session.Gap))
		})

		It("keeps explicit false booleans", func() {
			writeConfig(`[vector_store]
auto_save = false

[api]
metrics = false
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.VectorStore.AutoSave).To(BeFalse())
			Expect(cfg.API.Metrics).To(BeFalse())
		})

		It("restores required fields left empty", func() {
			writeConfig(`index = ""

[storage]
provider = ""
`)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Index).To(Equal("demo"))
			Expect(cfg.Storage.Provider).To(Equal("sqlite"))
		})

		It("rejects an unsupported version", func() {
			writeConfig("version = 9\n")
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 9")))
		})

		It("returns an error for invalid TOML", func() {
			writeConfig("this is [not toml")
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})
	})

	Describe("SaveConfig", func() {
		It("round-trips through the file", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Index = "roundtrip"
			cfg.EventStream.Provider = "kafka"
			cfg.EventStream.Brokers = "k1:9092,k2:9092"
			cfg.Memory.IncludeGlobal = true
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("rejects a nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})

		It("writes the file with owner-only permissions", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(config.NewDefaultConfig())).To(Succeed())

			info, err := os.Stat(c.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
			Expect(c.Dir()).To(Equal(tmpDir))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("persists string, number, bool and duration keys", func() {
			Expect(c.SetConfigValue("agent.model", "llama3.2")).To(Succeed())
			Expect(c.SetConfigValue("memory.top_k", "5")).To(Succeed())
			Expect(c.SetConfigValue("memory.include_global", "true")).To(Succeed())
			Expect(c.SetConfigValue("session.gap", "45m")).To(Succeed())

			for key, want := range map[string]string{
				"agent.model":           "llama3.2",
				"memory.top_k":          "5",
				"memory.include_global": "true",
				"session.gap":           "45m",
			} {
				got, err := c.GetConfigValue(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want), key)
			}

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Session.GapDuration()).To(Equal(45 * time.Minute))
		})

		It("normalizes provider names", func() {
			Expect(c.SetConfigValue("agent.provider", " Anthropic ")).To(Succeed())
			got, err := c.GetConfigValue("agent.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("anthropic"))
		})

		It("rejects values outside the allowed set", func() {
			err := c.SetConfigValue("end_detector.policy", "sometimes")
			Expect(err).To(MatchError(ContainSubstring("allowed: open, closed, strict")))
		})

		It("rejects malformed numbers, booleans and durations", func() {
			Expect(c.SetConfigValue("memory.workers", "many")).To(MatchError(ContainSubstring("memory.workers")))
			Expect(c.SetConfigValue("api.metrics", "maybe")).To(MatchError(ContainSubstring("api.metrics")))
			Expect(c.SetConfigValue("session.gap", "soon")).To(MatchError(ContainSubstring("session.gap")))
			Expect(c.SetConfigValue("session.gap", "-5m")).To(MatchError(ContainSubstring("negative")))
		})

		It("does not write the file when the value is invalid", func() {
			Expect(c.SetConfigValue("memory.workers", "many")).NotTo(Succeed())
			_, err := os.Stat(c.GetTarget())
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("rejects unknown keys", func() {
			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(`unknown config key: "proxy.upstream"`))
			_, err := c.GetConfigValue("proxy.upstream")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("lists every key in section order and each key is settable", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("index"))
		Expect(keys).To(ContainElements("session.gap", "end_detector.policy", "eventstream.brokers"))

		cfg := config.NewDefaultConfig()
		for _, k := range keys {
			Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
			v, err := cfg.Value(k)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Set(k, v)).To(Succeed(), k)
		}
	})

	It("returns a copy", func() {
		keys := config.ValidConfigKeys()
		keys[0] = "mutated"
		Expect(config.ValidConfigKeys()[0]).To(Equal("index"))
	})

	It("marks credentials as secret", func() {
		Expect(config.IsSecretKey("agent.api_key")).To(BeTrue())
		Expect(config.IsSecretKey("agent.model")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	It("builds an all-local ollama preset", func() {
		cfg, err := config.PresetConfig("ollama")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Agent.Provider).To(Equal("ollama"))
		Expect(cfg.EndDetector.Provider).To(Equal("ollama"))
		Expect(cfg.Memory.Extractor).To(Equal("ollama"))
		Expect(cfg.Embedding.Provider).To(Equal("ollama"))
	})

	It("builds the anthropic preset with openai embeddings", func() {
		cfg, err := config.PresetConfig("Anthropic")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Agent.Provider).To(Equal("anthropic"))
		Expect(cfg.Agent.Target).To(BeEmpty())
		Expect(cfg.EndDetector.Provider).To(Equal("anthropic"))
		Expect(cfg.Embedding.Provider).To(Equal("openai"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
	})

	It("rejects unknown presets", func() {
		_, err := config.PresetConfig("openai")
		Expect(err).To(MatchError(ContainSubstring("available: ollama, anthropic")))
	})
})

var _ = Describe("ParseModelRef", func() {
	DescribeTable("splits provider/model references",
		func(ref, provider, model string, ok bool) {
			p, m, got := config.ParseModelRef(ref)
			Expect(got).To(Equal(ok))
			Expect(p).To(Equal(provider))
			Expect(m).To(Equal(model))
		},
		Entry("anthropic", "anthropic/claude-sonnet-4-5", "anthropic", "claude-sonnet-4-5", true),
		Entry("lowercases", "Ollama/Qwen3:8B", "ollama", "qwen3:8b", true),
		Entry("no slash", "gpt-4.1", "", "", false),
		Entry("two slashes", "a/b/c", "", "", false),
		Entry("empty model", "openai/", "", "", false),
		Entry("empty", "", "", "", false),
	)
})

var _ = Describe("EventStreamConfig", func() {
	It("splits and trims brokers", func() {
		e := config.EventStreamConfig{Brokers: " k1:9092, ,k2:9092 "}
		Expect(e.BrokerList()).To(Equal([]string{"k1:9092", "k2:9092"}))
		Expect(config.EventStreamConfig{}.BrokerList()).To(BeEmpty())
	})
})
