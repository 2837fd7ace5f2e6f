package api

import (
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"hydra/internal/adapter/tool"
	"hydra/internal/domain"
)

// mcpHandlers caches one streamable MCP server per system so client
// sessions survive across requests. Configurations are immutable, so an
// entry only goes stale when its system is deleted.
type mcpHandlers struct {
	exec domain.ToolExecutor

	mu       sync.Mutex
	handlers map[string]http.Handler
}

func newMCPHandlers(exec domain.ToolExecutor) *mcpHandlers {
	return &mcpHandlers{exec: exec, handlers: make(map[string]http.Handler)}
}

func (m *mcpHandlers) handler(sys *domain.System) http.Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handlers[sys.ID]; ok {
		return h
	}
	cfg := sys.Config
	h := server.NewStreamableHTTPServer(tool.NewMCPServer(&cfg, m.exec))
	m.handlers[sys.ID] = h
	return h
}

func (m *mcpHandlers) evict(id string) {
	m.mu.Lock()
	delete(m.handlers, id)
	m.mu.Unlock()
}
