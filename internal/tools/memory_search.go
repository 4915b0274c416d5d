package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/goclaw-kernel/internal/config"
)

const defaultMemorySearchLimit = 10

// MemorySearchTool implements the memory_search tool: a hybrid vector+BM25
// query over the calling agent's long-term MEMORY.md and dated notes.
type MemorySearchTool struct {
	weights config.MemoryConfig
}

// NewMemorySearchTool builds the tool using the configured vector/text
// fusion weights (falling back to the agent loop's own defaults when the
// index is queried with an index that has none set).
func NewMemorySearchTool(weights config.MemoryConfig) *MemorySearchTool {
	return &MemorySearchTool{weights: weights}
}

func (t *MemorySearchTool) Name() string { return "memory_search" }

func (t *MemorySearchTool) Description() string {
	return "Search this agent's long-term memory and daily notes for passages relevant to a query, ranked by combined vector and keyword relevance."
}

func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Text to search memory for.",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum chunks to return (default 10, capped at 10).",
			},
		},
		"required": []string{"query"},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return ErrorResult("memory_search requires a non-empty query")
	}

	limit := defaultMemorySearchLimit
	if raw, ok := args["limit"]; ok {
		if f, ok := raw.(float64); ok && int(f) > 0 && int(f) < limit {
			limit = int(f)
		}
	}

	idx := MemoryIndexFromCtx(ctx)
	if idx == nil {
		return ErrorResult("memory_search: no memory index configured for this agent")
	}

	wVec, wText := t.weights.VectorWeight, t.weights.TextWeight
	if wVec == 0 && wText == 0 {
		wVec, wText = 0.6, 0.4
	}

	chunks, err := idx.HybridSearch(ctx, query, limit, wVec, wText)
	if err != nil {
		return ErrorResult(fmt.Sprintf("memory_search: %v", err)).WithError(err)
	}
	if len(chunks) == 0 {
		return NewResult("No relevant memory found.")
	}

	var sb strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&sb, "[%s] %s\n\n", c.Source, c.Content)
	}
	return NewResult(strings.TrimRight(sb.String(), "\n"))
}
