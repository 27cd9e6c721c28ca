package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultRecallTopK = 5

var (
	memoryRecallToolName    = "memory_recall"
	memoryRecallDescription = "Recall facts from cogniweave long memory. Given a query and a scope (usually a user or session id), returns the stored facts most similar to the query. An empty scope searches the global facts only."
)

// MemoryRecallInput represents the input arguments for the MCP memory_recall tool.
type MemoryRecallInput struct {
	Query string `json:"query" jsonschema:"the text to find related facts for"`
	Scope string `json:"scope,omitempty" jsonschema:"the memory scope to search, usually a user or session id"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of facts to return (default: 5)"`
}

// Fact is one recalled long memory entry.
type Fact struct {
	ID        string  `json:"id"`
	Scope     string  `json:"scope"`
	Text      string  `json:"text"`
	Score     float32 `json:"score"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// MemoryRecallOutput represents the structured output of a memory recall.
type MemoryRecallOutput struct {
	Query string `json:"query"`
	Facts []Fact `json:"facts"`
}

// noFacts is the output of a failed recall. Facts must stay a non-nil
// slice, the SDK validates structured output against the schema even when
// the result is a tool error.
func noFacts(query string) MemoryRecallOutput {
	return MemoryRecallOutput{Query: query, Facts: []Fact{}}
}

// handleMemoryRecall processes a memory recall request via MCP.
func (s *Server) handleMemoryRecall(ctx context.Context, _ *mcp.CallToolRequest, input MemoryRecallInput) (*mcp.CallToolResult, MemoryRecallOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return toolError("query is required"), noFacts(input.Query), nil
	}

	topK := input.TopK
	if topK <= 0 {
		topK = defaultRecallTopK
	}

	s.logger.Debug("mcp memory recall",
		"scope", input.Scope,
		"top_k", topK,
	)

	embedding, err := s.config.Embedder.Embed(ctx, input.Query)
	if err != nil {
		s.logger.Error("failed to embed recall query", "error", err)
		return toolError(fmt.Sprintf("Failed to embed query: %v", err)), noFacts(input.Query), nil
	}

	results, err := s.config.Tags.Search(ctx, embedding, input.Scope, topK)
	if err != nil {
		s.logger.Error("failed to search long memory", "error", err)
		return toolError(fmt.Sprintf("Memory recall failed: %v", err)), noFacts(input.Query), nil
	}

	output := MemoryRecallOutput{
		Query: input.Query,
		Facts: make([]Fact, 0, len(results)),
	}
	for _, r := range results {
		f := Fact{
			ID:    r.ID,
			Scope: r.Scope,
			Text:  r.Text,
			Score: r.Score,
		}
		if !r.CreatedAt.IsZero() {
			f.CreatedAt = r.CreatedAt.UTC().Format(time.RFC3339)
		}
		output.Facts = append(output.Facts, f)
	}

	return textResult(output)
}

// textResult returns the structured output together with its JSON form as
// text content for clients that ignore structured results.
func textResult[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return toolError(fmt.Sprintf("Failed to serialize results: %v", err)), output, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
