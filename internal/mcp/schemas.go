package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var categoryProperty = map[string]interface{}{
	"type":        "string",
	"description": "Restrict to sources whose name contains this value (e.g. PSE, PSC, SST)",
}

// ingestDocumentsTool returns the tool definition for ingest_documents
func ingestDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_documents",
		Description: "Split first-aid reference documents into fiches or chunks, embed them and store them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a text document or a directory of documents",
				},
				"include": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns selecting files when path is a directory (e.g. '**/*.txt')",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"category_filter": map[string]interface{}{
					"type":        "string",
					"description": "Only ingest documents whose file name contains this value",
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchFichesTool returns the tool definition for search_fiches
func searchFichesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_fiches",
		Description: "Hybrid lexical and semantic search over the ingested fiches",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Question or keywords as asked by the user",
				},
				"technical_query": map[string]interface{}{
					"type":        "string",
					"description": "Rewritten query used for the semantic pass (defaults to query)",
				},
				"category": categoryProperty,
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of fiches to return (1-100)",
					"default":     6,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getFicheTool returns the tool definition for get_fiche
func getFicheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_fiche",
		Description: "Return one fiche by its reference",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"reference": map[string]interface{}{
					"type":        "string",
					"description": "Fiche reference, e.g. 05PR08",
				},
			},
			Required: []string{"reference"},
		},
	}
}

// listChapterTool returns the tool definition for list_chapter
func listChapterTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_chapter",
		Description: "List the fiches of a chapter",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"chapter": map[string]interface{}{
					"type":        "string",
					"description": "Two-digit chapter code, e.g. 05",
				},
				"type": map[string]interface{}{
					"type":        "string",
					"description": "Only list fiches of this type",
					"enum":        []string{"knowledge", "procedure", "technique"},
				},
			},
			Required: []string{"chapter"},
		},
	}
}

// askQuestionTool returns the tool definition for ask_question
func askQuestionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a first-aid question from the ingested fiches",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question in natural language",
				},
				"category": categoryProperty,
			},
			Required: []string{"question"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report corpus statistics and store health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
