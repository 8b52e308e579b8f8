package mcpadapter

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchDocumentsTool returns the tool definition for search_documents.
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_documents",
		Description: "Search the document corpus with hybrid vector, lexical and knowledge-graph retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language, keywords, Japanese or English)",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "Score fusion strategy",
					"enum":        []string{"composite", "rrf", "blend"},
					"default":     "composite",
				},
				"exclude_labels": map[string]interface{}{
					"type":        "array",
					"description": "Drop candidates carrying any of these labels (substring match)",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"exclude_title_patterns": map[string]interface{}{
					"type":        "array",
					"description": "Drop candidates whose title matches any glob pattern (*foo*, foo*, *foo)",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"query"},
		},
	}
}
