package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"hydra/internal/domain"
)

// MCP server identity reported during initialize.
const (
	MCPServerName    = "hydra-tools"
	MCPServerVersion = "1.0.0"
)

// NewMCPServer publishes every tool of cfg as an MCP tool backed by exec.
// Tool names fall back to tool_{id}; a repeated name gets its ID appended.
func NewMCPServer(cfg *domain.SystemConfig, exec domain.ToolExecutor) *server.MCPServer {
	s := server.NewMCPServer(MCPServerName, MCPServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	seen := make(map[string]bool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		name := MCPToolName(t)
		if seen[name] {
			name = fmt.Sprintf("%s_%d", name, t.ID)
		}
		seen[name] = true

		s.AddTool(mcp.NewToolWithRawSchema(name, t.Description, BuildSchema(t)), mcpHandler(t, exec))
	}
	return s
}

// MCPToolName is the name t is published under.
func MCPToolName(t domain.Tool) string {
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("tool_%d", t.ID)
}

func mcpHandler(t domain.Tool, exec domain.ToolExecutor) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := domain.ToolCallRequest{ToolID: t.ID, Params: map[string]any{}}
		for k, v := range req.GetArguments() {
			switch k {
			case "tool_id":
			case "action":
				call.Action, _ = v.(string)
			default:
				call.Params[k] = v
			}
		}

		res := exec.Execute(ctx, t, call)
		out, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode tool result: %w", err)
		}
		if !res.Success {
			return mcp.NewToolResultError(string(out)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
