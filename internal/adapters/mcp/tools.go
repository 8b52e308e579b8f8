package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ymatsuda/docsearch/internal/core/domain"
)

// MCP error codes.
const (
	errorCodeInvalidParams = -32602
	errorCodeInternalError = -32603
	errorCodeEmptyQuery    = -32001
)

// handleSearchDocuments handles the search_documents tool invocation.
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(errorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(errorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param": "query",
		})
	}

	cfg := s.defaults
	if topK := getIntDefault(args, "top_k", 0); topK > 0 {
		if topK > 50 {
			return nil, newMCPError(errorCodeInvalidParams, "top_k must be between 1 and 50", map[string]interface{}{
				"param": "top_k",
				"value": topK,
			})
		}
		cfg.TopK = topK
	}
	if strategy := getStringDefault(args, "strategy", ""); strategy != "" {
		cfg.Strategy = domain.FusionStrategy(strategy)
	}
	if labels := getStringSlice(args, "exclude_labels"); len(labels) > 0 {
		cfg.ExcludeLabels = labels
	}
	if patterns := getStringSlice(args, "exclude_title_patterns"); len(patterns) > 0 {
		cfg.ExcludeTitlePatterns = patterns
	}

	results, err := s.searcher.Search(ctx, query, cfg)
	if err != nil {
		s.logger.Error("mcp_search_failed", "error", err)
		return nil, newMCPError(errorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]interface{}{
			"document_id": r.Document.ID,
			"title":       r.Document.Title,
			"score":       r.FinalScore,
			"labels":      r.Document.Labels,
			"breakdown": map[string]interface{}{
				"vector":          r.Breakdown.Vector,
				"lexical":         r.Breakdown.Lexical,
				"title":           r.Breakdown.Title,
				"label":           r.Breakdown.Label,
				"knowledge_graph": r.Breakdown.KnowledgeGraph,
				"multiplier":      r.Breakdown.Multiplier,
			},
		})
	}

	response := map[string]interface{}{
		"query":   query,
		"count":   len(items),
		"results": items,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// newMCPError creates a properly formatted MCP error.
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error.
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON.
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value.
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter.
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
