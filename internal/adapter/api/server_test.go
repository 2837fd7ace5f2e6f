package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydra/internal/domain"
	"hydra/internal/infra/config"
)

type fakeSystems struct {
	mu       sync.Mutex
	systems  map[string]*domain.System
	next     int
	answer   string
	queryErr error
	queries  []string
}

func newFakeSystems() *fakeSystems {
	return &fakeSystems{systems: make(map[string]*domain.System), answer: "42"}
}

func (f *fakeSystems) Create(_ context.Context, cfg domain.SystemConfig) (*domain.System, error) {
	if err := cfg.CheckSections(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	sys := &domain.System{ID: fmt.Sprintf("sys%d", f.next), Config: cfg, CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	f.systems[sys.ID] = sys
	return sys, nil
}

func (f *fakeSystems) Get(_ context.Context, id string) (*domain.System, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sys, ok := f.systems[id]
	if !ok {
		return nil, domain.NewDomainError("fake.Get", domain.ErrSystemNotFound, id)
	}
	return sys, nil
}

func (f *fakeSystems) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.systems[id]
	delete(f.systems, id)
	return ok, nil
}

func (f *fakeSystems) List(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for i := 1; i <= f.next; i++ {
		if _, ok := f.systems[fmt.Sprintf("sys%d", i)]; ok {
			ids = append(ids, fmt.Sprintf("sys%d", i))
		}
	}
	return ids, nil
}

func (f *fakeSystems) ProcessQuery(ctx context.Context, id, query string) (string, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return "", err
	}
	if strings.TrimSpace(query) == "" {
		return "", domain.NewDomainError("fake.ProcessQuery", domain.ErrInvalidInput, "query must not be empty")
	}
	f.mu.Lock()
	f.queries = append(f.queries, query)
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return "", f.queryErr
	}
	return f.answer, nil
}

func (f *fakeSystems) failQueries(err error) {
	f.mu.Lock()
	f.queryErr = err
	f.mu.Unlock()
}

type staticExecutor struct{}

func (staticExecutor) Execute(_ context.Context, t domain.Tool, _ domain.ToolCallRequest) domain.ToolResult {
	return domain.ToolResult{Success: true, Result: map[string]any{"tool": t.Name}}
}

const validPayload = `{
	"mission": "Help with finance",
	"models": [{"name": "Coordinator"}, {"name": "Analyst", "knowledge_bases": [1], "tools": [1]}],
	"knowledge_bases": [{"name": "Ledger", "url": "https://kb.example.com/ledger.json", "description": "Q1"}],
	"tools": [{"name": "Weather", "description": "Forecasts", "api_url": "https://w.example.com", "api_key": "secret"}]
}`

func newTestServer(t *testing.T, systems *fakeSystems) *httptest.Server {
	t.Helper()
	s, err := NewServer(ServerDeps{
		Systems: systems,
		Tools:   staticExecutor{},
		Config:  config.ServerConfig{MCPEnabled: true},
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func createSystem(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	status, out := doJSON(t, http.MethodPost, ts.URL+"/api/systems/create", validPayload)
	require.Equal(t, http.StatusOK, status, out)
	return out["system_id"].(string)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newFakeSystems())
	status, out := doJSON(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", out["status"])
}

func TestCreateSystem(t *testing.T) {
	ts := newTestServer(t, newFakeSystems())
	status, out := doJSON(t, http.MethodPost, ts.URL+"/api/systems/create", validPayload)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "sys1", out["system_id"])
	assert.Equal(t, "/api/systems/sys1/chat", out["endpoint"])
}

func TestCreateSystemRejected(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantMsg string
	}{
		{"malformed json", `{"models": [`, http.StatusBadRequest, "invalid JSON"},
		{"models not a list", `{"models": "all", "knowledge_bases": [], "tools": []}`, http.StatusBadRequest, "schema validation failed"},
		{"string model id", `{"models": [{"id": "one"}], "knowledge_bases": [], "tools": []}`, http.StatusBadRequest, "schema validation failed"},
		{"missing tools", `{"models": [{"name": "m"}], "knowledge_bases": []}`, http.StatusBadRequest, "configuration must include 'tools'"},
		{"not an object", `[1, 2]`, http.StatusBadRequest, "schema validation failed"},
	}
	ts := newTestServer(t, newFakeSystems())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, out := doJSON(t, http.MethodPost, ts.URL+"/api/systems/create", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, out["error"], tt.wantMsg)
			assert.Equal(t, string(domain.CodeConfiguration), out["code"])
		})
	}
}

func TestCreateSystemBodyTooLarge(t *testing.T) {
	s, err := NewServer(ServerDeps{Systems: newFakeSystems()})
	require.NoError(t, err)

	body := `{"mission": "` + strings.Repeat("x", maxBodyBytes) + `"}`
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/systems/create", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "too large")
}

func TestGetSystemRedacted(t *testing.T) {
	ts := newTestServer(t, newFakeSystems())
	id := createSystem(t, ts)

	status, out := doJSON(t, http.MethodGet, ts.URL+"/api/systems/"+id, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, out["system_id"])
	assert.Equal(t, "2026-01-02T03:04:05Z", out["created_at"])

	cfg := out["config"].(map[string]any)
	assert.Equal(t, "Help with finance", cfg["mission"])
	tool := cfg["tools"].([]any)[0].(map[string]any)
	assert.Equal(t, "***", tool["api_key"])

	status, out = doJSON(t, http.MethodGet, ts.URL+"/api/systems/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(domain.CodeSystemNotFound), out["code"])
}

func TestChat(t *testing.T) {
	systems := newFakeSystems()
	ts := newTestServer(t, systems)
	id := createSystem(t, ts)

	status, out := doJSON(t, http.MethodPost, ts.URL+"/api/systems/"+id+"/chat", `{"query": "What is the answer?"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "42", out["response"])
	systems.mu.Lock()
	defer systems.mu.Unlock()
	assert.Equal(t, []string{"What is the answer?"}, systems.queries)
}

func TestChatErrors(t *testing.T) {
	systems := newFakeSystems()
	ts := newTestServer(t, systems)
	id := createSystem(t, ts)

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/api/systems/missing/chat", `{"query": "q"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, out := doJSON(t, http.MethodPost, ts.URL+"/api/systems/"+id+"/chat", `{"query": ""}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, string(domain.CodeInvalidInput), out["code"])

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/api/systems/"+id+"/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	systems.failQueries(fmt.Errorf("%w: Failed to parse JSON response", domain.ErrRouting))
	status, out = doJSON(t, http.MethodPost, ts.URL+"/api/systems/"+id+"/chat", `{"query": "q"}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, string(domain.CodeRouting), out["code"])
	assert.Contains(t, out["error"], "Failed to parse JSON response")

	systems.failQueries(context.DeadlineExceeded)
	status, out = doJSON(t, http.MethodPost, ts.URL+"/api/systems/"+id+"/chat", `{"query": "q"}`)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, string(domain.CodeTimeout), out["code"])
}

func TestDeleteAndList(t *testing.T) {
	ts := newTestServer(t, newFakeSystems())
	first := createSystem(t, ts)
	second := createSystem(t, ts)

	status, out := doJSON(t, http.MethodGet, ts.URL+"/api/systems", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{first, second}, out["systems"])

	status, out = doJSON(t, http.MethodDelete, ts.URL+"/api/systems/"+first, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["deleted"])

	_, out = doJSON(t, http.MethodDelete, ts.URL+"/api/systems/"+first, "")
	assert.Equal(t, false, out["deleted"])

	_, out = doJSON(t, http.MethodGet, ts.URL+"/api/systems", "")
	assert.Equal(t, []any{second}, out["systems"])
}

func TestListEmpty(t *testing.T) {
	ts := newTestServer(t, newFakeSystems())
	_, out := doJSON(t, http.MethodGet, ts.URL+"/api/systems", "")
	assert.Equal(t, []any{}, out["systems"])
}

func TestMCPEndpoint(t *testing.T) {
	ts := newTestServer(t, newFakeSystems())
	id := createSystem(t, ts)

	c, err := mcpclient.NewStreamableHttpClient(ts.URL + "/api/systems/" + id + "/mcp")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "hydra-test", Version: "0.0.1"}
	_, err = c.Initialize(ctx, init)
	require.NoError(t, err)

	tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)
	assert.Equal(t, "Weather", tools.Tools[0].Name)

	req := mcp.CallToolRequest{}
	req.Params.Name = "Weather"
	req.Params.Arguments = map[string]any{"endpoint": "/today"}
	res, err := c.CallTool(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	assert.Contains(t, res.Content[0].(mcp.TextContent).Text, `"tool":"Weather"`)
}

func TestMCPUnknownSystem(t *testing.T) {
	ts := newTestServer(t, newFakeSystems())
	resp, err := http.Post(ts.URL+"/api/systems/none/mcp", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMCPDisabled(t *testing.T) {
	s, err := NewServer(ServerDeps{Systems: newFakeSystems(), Tools: staticExecutor{}})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/systems/x/mcp", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.CodeConfiguration))
	assert.Equal(t, http.StatusNotFound, statusFor(domain.CodeSystemNotFound))
	assert.Equal(t, http.StatusBadGateway, statusFor(domain.CodeRouting))
	assert.Equal(t, http.StatusBadGateway, statusFor(domain.CodeCircuitOpen))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.CodeUnknown))
}

func TestServerStartStop(t *testing.T) {
	s, err := NewServer(ServerDeps{Systems: newFakeSystems(), Config: config.ServerConfig{Addr: "127.0.0.1:0"}})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	resp, err := http.Get("http://" + s.BoundAddr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
