package servecmder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/cogniweave/pkg/logger"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the pipeline and server flags", func() {
		cmd := NewServeCmd()
		for _, name := range []string{"listen", "metrics", "index", "agent-provider", "end-detector", "gap", "top-k", "watch", "log-file", "log-level", "stream-timeout"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("rejects positional arguments", func() {
		cmd := NewServeCmd()
		cmd.SetArgs([]string{"extra"})
		cmd.SetOut(GinkgoWriter)
		cmd.SetErr(GinkgoWriter)
		Expect(cmd.Execute()).To(HaveOccurred())
	})
})

var _ = Describe("setupLogger", func() {
	It("rejects an unknown log level", func() {
		c := &serveCommander{logLevel: "verbose"}
		_, err := c.setupLogger()
		Expect(err).To(MatchError(ContainSubstring("verbose")))
	})

	It("also writes JSON records to the log file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "serve.log")
		c := &serveCommander{logLevel: "info", logFile: path}
		closeLog, err := c.setupLogger()
		Expect(err).NotTo(HaveOccurred())

		c.logger.Info("pipeline ready", "index", "demo")
		closeLog()

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"pipeline ready"`))
		Expect(string(data)).To(ContainSubstring(`"index":"demo"`))
	})
})

var _ = Describe("watchConfig", func() {
	var (
		dir    string
		path   string
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "config.toml")
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)
	})

	It("signals once after a burst of writes", func() {
		reload, err := watchConfig(ctx, path, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			Expect(os.WriteFile(path, []byte("index = \"a\"\n"), 0o600)).To(Succeed())
		}

		Eventually(reload, 5*time.Second).Should(Receive())
		Consistently(reload, reloadDebounce*2).ShouldNot(Receive())
	})

	It("ignores other files in the directory", func() {
		reload, err := watchConfig(ctx, path, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		Expect(os.WriteFile(filepath.Join(dir, "console.json"), []byte("{}"), 0o600)).To(Succeed())
		Consistently(reload, reloadDebounce*2).ShouldNot(Receive())
	})

	It("fails for a missing directory", func() {
		_, err := watchConfig(ctx, filepath.Join(dir, "missing", "config.toml"), logger.Nop())
		Expect(err).To(HaveOccurred())
	})
})
