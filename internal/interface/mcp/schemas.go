package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func askQuestionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question about an indexed repository using its most relevant source files",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Project ID (UUID)",
				},
				"question": map[string]any{
					"type":        "string",
					"description": "Natural language question about the codebase",
				},
			},
			Required: []string{"project_id", "question"},
		},
	}
}

func pollCommitsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "poll_commits",
		Description: "Fetch recent commits of a project's repository and summarize the ones not stored yet",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Project ID (UUID)",
				},
			},
			Required: []string{"project_id"},
		},
	}
}

func listProjectsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_projects",
		Description: "List projects that are not archived",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}
}

func recommendFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recommend_files",
		Description: "Recommend indexed source files to start reading, easiest (smallest) first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"project_id": map[string]any{
					"type":        "string",
					"description": "Project ID (UUID)",
				},
			},
			Required: []string{"project_id"},
		},
	}
}
