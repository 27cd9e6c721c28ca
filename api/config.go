// Package api serves the cogniweave pipeline over HTTP: session invoke and
// streaming endpoints, stored history, tag flushing, metrics and MCP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/cogniweave/pkg/runnable"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Pipeline answers invoke and stream requests.
	Pipeline runnable.Runnable

	// History serves the history and session listing endpoints.
	History storage.Driver

	// Tags is flushed by POST /v1/tags/flush. Optional.
	Tags *tagstore.Store

	// Metrics is mounted on /metrics when set.
	Metrics http.Handler

	// MCP is mounted on /mcp when set.
	MCP http.Handler

	// StreamTimeout bounds a streamed answer. Zero means no bound.
	StreamTimeout time.Duration

	Logger *slog.Logger
}
