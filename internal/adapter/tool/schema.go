package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"hydra/internal/domain"
)

type schemaProp struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     string   `json:"default,omitempty"`
}

type objectSchema struct {
	Type       string                `json:"type"`
	Properties map[string]schemaProp `json:"properties"`
	Required   []string              `json:"required"`
}

// BuildSchema returns the input schema advertised for t. It describes the
// call to models and MCP clients; calls are not validated against it.
func BuildSchema(t domain.Tool) json.RawMessage {
	var s objectSchema
	switch t.Kind {
	case domain.ToolFileFetch:
		s = objectSchema{
			Type: "object",
			Properties: map[string]schemaProp{
				"owner": {Type: "string", Description: "Repository owner (user or organization)"},
				"repo":  {Type: "string", Description: "Repository name"},
				"path":  {Type: "string", Description: "File path inside the repository"},
			},
			Required: []string{"owner", "repo", "path"},
		}
	case domain.ToolIssueCreate:
		s = objectSchema{
			Type: "object",
			Properties: map[string]schemaProp{
				"project_key": {Type: "string", Description: "Project key, e.g. PROJ"},
				"summary":     {Type: "string", Description: "Issue title"},
				"issuetype":   {Type: "string", Description: "Issue type name, e.g. Task or Bug"},
				"description": {Type: "string", Description: "Issue body"},
			},
			Required: []string{"project_key", "summary", "issuetype"},
		}
	default:
		s = objectSchema{
			Type: "object",
			Properties: map[string]schemaProp{
				"endpoint": {Type: "string", Description: "API endpoint: " + t.APIURL},
				"method": {
					Type:        "string",
					Enum:        []string{"GET", "POST", "PUT", "DELETE"},
					Default:     "POST",
					Description: "HTTP method to use",
				},
				"body":   {Type: "object", Description: "Request body (for POST/PUT)"},
				"params": {Type: "object", Description: "Query string parameters"},
			},
			Required: []string{"endpoint"},
		}
	}
	raw, _ := json.MarshalIndent(s, "", "  ")
	return raw
}

// UsageExample returns a flat call object for t as the model should emit it.
func UsageExample(t domain.Tool) string {
	var ex map[string]any
	switch t.Kind {
	case domain.ToolFileFetch:
		ex = map[string]any{"tool_id": t.ID, "owner": "octocat", "repo": "hello-world", "path": "README.md"}
	case domain.ToolIssueCreate:
		ex = map[string]any{
			"tool_id":     t.ID,
			"project_key": "PROJ",
			"summary":     "Short issue title",
			"issuetype":   "Task",
			"description": "What needs to be done",
		}
	default:
		ex = map[string]any{"tool_id": t.ID, "method": "GET", "params": map[string]any{"q": "search terms"}}
	}
	b, _ := json.Marshal(ex)
	return string(b)
}

// FormatForPrompt renders tools as the "Available Tools" block of a
// sub-agent system prompt.
func FormatForPrompt(tools []domain.Tool) string {
	sections := make([]string, 0, len(tools))
	for _, t := range tools {
		var sb strings.Builder
		fmt.Fprintf(&sb, "\nTool %d: %s\n", t.ID, t.Name)
		fmt.Fprintf(&sb, "Description: %s\n", t.Description)
		fmt.Fprintf(&sb, "API URL: %s\n", t.APIURL)
		sb.WriteString("MCP Capability: Available\n")
		sb.WriteString("You can call this tool using the MCP protocol with the following schema:\n")
		sb.Write(BuildSchema(t))
		sb.WriteString("\nTo call it, reply with only this JSON object:\n")
		sb.WriteString(UsageExample(t))
		sb.WriteString("\n")
		sections = append(sections, sb.String())
	}
	return strings.Join(sections, "\n")
}
