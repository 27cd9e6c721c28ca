// Package mcp exposes cogniweave memory to MCP (Model Context Protocol)
// clients: long memory recall by scope and stored session history.
package mcp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/cogniweave/pkg/embeddings"
	"github.com/papercomputeco/cogniweave/pkg/logger"
	"github.com/papercomputeco/cogniweave/pkg/storage"
	"github.com/papercomputeco/cogniweave/pkg/tagstore"
	"github.com/papercomputeco/cogniweave/pkg/utils"
)

type Config struct {
	// History serves the session_history tool.
	History storage.Driver

	// Tags and Embedder serve the memory_recall tool. Both are optional;
	// without them the tool is not registered.
	Tags     *tagstore.Store
	Embedder embeddings.Embedder

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	logger    *slog.Logger
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
		logger: logger.OrNop(c.Logger),
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cogniweave",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.History == nil {
			return nil, errors.New("history store is required")
		}
		if (c.Tags == nil) != (c.Embedder == nil) {
			return nil, errors.New("tag store and embedder must be configured together")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        sessionHistoryToolName,
			Description: sessionHistoryDescription,
		}, s.handleSessionHistory)

		if c.Tags != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        memoryRecallToolName,
				Description: memoryRecallDescription,
			}, s.handleMemoryRecall)
		}
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCP returns the underlying server, e.g. to connect an in-process
// transport.
func (s *Server) MCP() *mcp.Server {
	return s.mcpServer
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}
