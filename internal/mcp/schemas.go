package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// recommendGamesTool returns the tool definition for recommend_games
func recommendGamesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recommend_games",
		Description: "Recommend games for a natural language description, blending semantic relevance with review quality",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What the user wants to play, e.g. 'relaxing farming game with co-op'",
				},
				"alpha": map[string]interface{}{
					"type":        "number",
					"description": "Weight of semantic relevance against quality (0 = quality only, 1 = relevance only)",
					"default":     0.5,
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"top_n": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of games to return",
					"default":     10,
					"minimum":     1,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters; all set conditions must hold",
					"properties": map[string]interface{}{
						"max_price": map[string]interface{}{
							"type":    "number",
							"minimum": 0.0,
						},
						"min_price": map[string]interface{}{
							"type":    "number",
							"minimum": 0.0,
						},
						"genres": map[string]interface{}{
							"type":        "array",
							"description": "Keep games with at least one of these genres (case-insensitive)",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"windows": map[string]interface{}{
							"type":        "boolean",
							"description": "true keeps only Windows games; false does not restrict",
						},
						"mac": map[string]interface{}{
							"type":        "boolean",
							"description": "true keeps only macOS games; false does not restrict",
						},
						"linux": map[string]interface{}{
							"type":        "boolean",
							"description": "true keeps only Linux games; false does not restrict",
						},
						"min_quality": map[string]interface{}{
							"type":        "number",
							"description": "Minimum quality score (0.0-1.0)",
							"minimum":     0.0,
							"maximum":     1.0,
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// listGenresTool returns the tool definition for list_genres
func listGenresTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_genres",
		Description: "List the distinct genres in the served catalog",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the served snapshot and the state of the snapshot database",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// prepareCatalogTool returns the tool definition for prepare_catalog
func prepareCatalogTool() mcp.Tool {
	return mcp.Tool{
		Name:        "prepare_catalog",
		Description: "Build a new snapshot from a catalog CSV file and start serving it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"csv_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the catalog CSV file",
				},
				"keep": map[string]interface{}{
					"type":        "integer",
					"description": "Snapshots to retain after a successful build (0 keeps all)",
					"minimum":     0,
				},
			},
			Required: []string{"csv_path"},
		},
	}
}
