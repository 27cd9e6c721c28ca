// Package servecmder provides the serve command, which runs the cogniweave
// HTTP API in front of a configured pipeline.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/cogniweave/api"
	mcpapi "github.com/papercomputeco/cogniweave/api/mcp"
	"github.com/papercomputeco/cogniweave/pkg/config"
	"github.com/papercomputeco/cogniweave/pkg/credentials"
	"github.com/papercomputeco/cogniweave/pkg/dotdir"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/weave"
)

// reloadDebounce collapses the burst of events editors produce on save.
const reloadDebounce = 500 * time.Millisecond

type serveCommander struct {
	configDir     string
	debug         bool
	watch         bool
	jsonLogs      bool
	logLevel      string
	logFile       string
	streamTimeout time.Duration

	logger *slog.Logger
}

const serveLongDesc string = `Run the cogniweave API server.

The server builds the pipeline described by config.toml, flags and
COGNIWEAVE_* environment variables, then serves:
  POST /v1/sessions/:session/invoke    Answer a message
  POST /v1/sessions/:session/stream    Answer a message as Server-Sent Events
  GET  /v1/sessions/:session/history   Stored turns of a session
  GET  /v1/sessions                    Known sessions
  POST /v1/tags/flush                  Write buffered long memory
  GET  /metrics                        Prometheus metrics
       /mcp                            MCP memory tools

With --watch, edits to config.toml rebuild the pipeline and restart the
server in place.

Examples:
  cogniweave serve
  cogniweave serve --listen :9000 --agent-provider anthropic
  cogniweave serve --watch --log-file cogniweave.log`

const serveShortDesc string = "Run the cogniweave API server"

var serveFlags = append([]string{config.FlagListen, config.FlagMetrics}, config.PipelineFlags...)

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run(cmd)
		},
	}

	config.AddFlags(cmd, config.Flags, serveFlags)
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Restart with the new configuration when config.toml changes")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json", false, "Log JSON records instead of pretty console output")
	cmd.Flags().StringVar(&cmder.logLevel, "log-level", "info", "Minimum log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")
	cmd.Flags().DurationVar(&cmder.streamTimeout, "stream-timeout", 5*time.Minute, "Upper bound for a streamed answer (0 for none)")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return err
	}

	var reload <-chan struct{}
	if c.watch {
		reload, err = watchConfig(ctx, filepath.Join(dir, dotdir.ConfigFile), c.logger)
		if err != nil {
			return err
		}
	}

	for {
		cfg, err := config.Load(cmd, c.configDir, serveFlags)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		restart, err := c.serve(ctx, cfg, dir, reload)
		if err != nil || !restart {
			return err
		}
		c.logger.Info("config changed, restarting")
	}
}

func (c *serveCommander) setupLogger() (func(), error) {
	level, err := logger.ParseLevel(c.logLevel)
	if err != nil {
		return nil, err
	}

	console := logger.New(
		logger.WithLevel(level),
		logger.WithDebug(c.debug),
		logger.WithPretty(!c.jsonLogs),
		logger.WithJSON(c.jsonLogs),
	)
	if c.logFile == "" {
		c.logger = console
		return func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	c.logger = logger.Multi(console, logger.New(
		logger.WithLevel(level),
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	))
	return func() { _ = f.Close() }, nil
}

// serve runs one server generation. It reports true when the config
// changed and the caller should build the next one.
func (c *serveCommander) serve(ctx context.Context, cfg *config.Config, dir string, reload <-chan struct{}) (bool, error) {
	var reg *prometheus.Registry
	if cfg.API.Metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	keys, err := credentials.NewManager(dir)
	if err != nil {
		return false, fmt.Errorf("loading credentials: %w", err)
	}

	stack, err := weave.Build(ctx, cfg, weave.Options{
		Dir:         dir,
		Registry:    reg,
		Service:     "cogniweave-serve",
		Credentials: keys,
		Logger:      c.logger,
	})
	if err != nil {
		return false, err
	}
	defer func() {
		if err := stack.Close(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("closing pipeline", "error", err)
		}
	}()

	mcpServer, err := mcpapi.NewServer(mcpapi.Config{
		History:  stack.History,
		Tags:     stack.Tags,
		Embedder: stack.Embedder,
		Logger:   c.logger,
	})
	if err != nil {
		return false, fmt.Errorf("creating MCP server: %w", err)
	}

	apiConfig := api.Config{
		ListenAddr:    cfg.API.Listen,
		Pipeline:      stack.Pipeline,
		History:       stack.History,
		Tags:          stack.Tags,
		MCP:           mcpServer.Handler(),
		StreamTimeout: c.streamTimeout,
		Logger:        c.logger,
	}
	if stack.Metrics != nil {
		apiConfig.Metrics = stack.Metrics.Handler()
	}

	server, err := api.NewServer(apiConfig)
	if err != nil {
		return false, err
	}

	c.logger.Info("pipeline ready",
		"index", cfg.Index,
		"storage", cfg.Storage.Provider,
		"vector_store", cfg.VectorStore.Provider,
		"agent", cfg.Agent.Provider+"/"+cfg.Agent.Model,
		"end_detector", cfg.EndDetector.Provider,
		"extractor", cfg.Memory.Extractor,
	)

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	shutdown := func() {
		if err := server.Shutdown(); err != nil {
			c.logger.Error("shutting down API server", "error", err)
		}
	}

	select {
	case err := <-errChan:
		return false, err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		shutdown()
		return false, nil
	case <-reload:
		shutdown()
		return true, nil
	}
}

// watchConfig signals on the returned channel after config.toml was
// written, created or replaced. The parent directory is watched so that
// editors that save through a rename are seen too.
func watchConfig(ctx context.Context, path string, log *slog.Logger) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching config dir: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce = time.After(reloadDebounce)
			case <-debounce:
				debounce = nil
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if !errors.Is(err, fsnotify.ErrEventOverflow) {
					log.Error("config watcher error", "error", err)
				}
			}
		}
	}()

	return out, nil
}
