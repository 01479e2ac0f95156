package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// retrieveTool returns the tool definition for retrieve
func retrieveTool() mcp.Tool {
	return mcp.Tool{
		Name:        "retrieve",
		Description: "Retrieve the most relevant indexed artifacts for a query using hybrid search with corrective refinement",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language or keyword query",
				},
				"token_budget": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum estimated tokens across returned artifacts",
					"default":     8000,
					"minimum":     1,
				},
				"max_artifacts": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of artifacts to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query index statistics and health for the loaded corpus",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
