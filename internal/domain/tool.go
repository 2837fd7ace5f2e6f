package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToolKind is the execution variant of a configured tool.
type ToolKind int

const (
	ToolGeneric ToolKind = iota
	ToolFileFetch
	ToolIssueCreate
)

func (k ToolKind) String() string {
	switch k {
	case ToolFileFetch:
		return "file_fetch"
	case ToolIssueCreate:
		return "issue_create"
	default:
		return "generic"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ToolKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. Unknown values decode as generic.
func (k *ToolKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "file_fetch":
		*k = ToolFileFetch
	case "issue_create":
		*k = ToolIssueCreate
	default:
		*k = ToolGeneric
	}
	return nil
}

// Keywords that select a specialised tool variant.
var (
	fileFetchKeywords   = []string{"github"}
	issueCreateKeywords = []string{"atlassian.net", "jira"}
)

// ClassifyTool derives a tool's variant from its API URL and name only.
// File-fetch is checked before issue-create; anything else is generic.
func ClassifyTool(name, apiURL string) ToolKind {
	haystack := strings.ToLower(apiURL) + " " + strings.ToLower(name)
	for _, kw := range fileFetchKeywords {
		if strings.Contains(haystack, kw) {
			return ToolFileFetch
		}
	}
	for _, kw := range issueCreateKeywords {
		if strings.Contains(haystack, kw) {
			return ToolIssueCreate
		}
	}
	return ToolGeneric
}

// Tool is an external API a sub-agent may call.
type Tool struct {
	ID          int      `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	APIURL      string   `json:"api_url" yaml:"api_url"`
	APIKey      string   `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Email       string   `json:"email,omitempty" yaml:"email,omitempty"`
	Kind        ToolKind `json:"kind" yaml:"-"`
}

// ToolCallRequest is a tool invocation parsed from sub-agent output.
type ToolCallRequest struct {
	ToolID int
	Action string
	Params map[string]any
}

// String returns a parameter as a string; numbers are formatted, other types yield "".
func (r ToolCallRequest) String(key string) string {
	switch v := r.Params[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// ToolCallFromMap builds a request from a decoded flat call object.
// tool_id may be a JSON number or a numeric string.
func ToolCallFromMap(m map[string]any) (ToolCallRequest, error) {
	id, err := AsInt(m["tool_id"])
	if err != nil {
		return ToolCallRequest{}, fmt.Errorf("tool_id: %w", err)
	}
	req := ToolCallRequest{ToolID: id, Params: make(map[string]any, len(m))}
	for k, v := range m {
		switch k {
		case "tool_id":
		case "action":
			req.Action, _ = v.(string)
		default:
			req.Params[k] = v
		}
	}
	return req, nil
}

// AsInt converts a decoded JSON value to an int.
func AsInt(v any) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidInput, n)
		}
		return int(i), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidInput, n)
		}
		return int(n), nil
	case int:
		return n, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidInput, n)
		}
		return i, nil
	case nil:
		return 0, fmt.Errorf("%w: missing", ErrInvalidInput)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidInput, v)
	}
}

// ToolResult is the structured outcome of one tool execution.
type ToolResult struct {
	Success   bool      `json:"success"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorCode `json:"error_kind,omitempty"`
}

// NewToolResult converts a (value, error) pair into a ToolResult.
func NewToolResult(v any, err error) ToolResult {
	if err != nil {
		return ToolResult{Success: false, Error: err.Error(), ErrorKind: ErrorCodeOf(err)}
	}
	return ToolResult{Success: true, Result: v}
}

// ToolExecutor runs a tool call against its live API.
type ToolExecutor interface {
	Execute(ctx context.Context, tool Tool, call ToolCallRequest) ToolResult
}

// KnowledgeSource fetches and formats the content of a knowledge base.
type KnowledgeSource interface {
	Fetch(ctx context.Context, kb KnowledgeBase) (string, error)
}
