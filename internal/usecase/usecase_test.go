package usecase

import (
	"context"
	"errors"
	"sync"

	"hydra/internal/domain"
)

// --- Mocks ---

// mockChat replays scripted replies in order and records every request.
// When respond is set it answers instead of the script.
type mockChat struct {
	mu      sync.Mutex
	replies []string
	errs    map[int]error
	respond func(req domain.ChatRequest) (string, error)
	calls   []domain.ChatRequest
}

func (m *mockChat) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.calls)
	m.calls = append(m.calls, req)

	if m.respond != nil {
		content, err := m.respond(req)
		if err != nil {
			return nil, err
		}
		return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: content}}, nil
	}
	if err := m.errs[idx]; err != nil {
		return nil, err
	}
	content := "fallback"
	if idx < len(m.replies) {
		content = m.replies[idx]
	}
	return &domain.ChatResponse{Message: domain.Message{Role: domain.RoleAssistant, Content: content}}, nil
}

func (m *mockChat) Name() string { return "mock" }

func (m *mockChat) requests() []domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ChatRequest(nil), m.calls...)
}

// system returns the system message of a recorded request.
func system(req domain.ChatRequest) string {
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			return msg.Content
		}
	}
	return ""
}

// user returns the last user message of a recorded request.
func user(req domain.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}

type mockToolCaller struct {
	mu     sync.Mutex
	result domain.ToolResult
	calls  []domain.ToolCallRequest
}

func (m *mockToolCaller) Call(_ context.Context, tools []domain.Tool, call domain.ToolCallRequest) domain.ToolResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	for _, t := range tools {
		if t.ID == call.ToolID {
			return m.result
		}
	}
	return domain.NewToolResult(nil, domain.NewDomainError("test", domain.ErrToolNotFound, "no such tool"))
}

// mockKnowledge serves KB content keyed by source URL.
type mockKnowledge struct {
	content map[string]string
	errs    map[string]error
}

func (m *mockKnowledge) Fetch(_ context.Context, kb domain.KnowledgeBase) (string, error) {
	if err, ok := m.errs[kb.Source()]; ok {
		return "", err
	}
	if c, ok := m.content[kb.Source()]; ok {
		return c, nil
	}
	return "", errors.New("unexpected fetch of " + kb.Source())
}

// testConfig is a normalized three-model system: a supervisor, a ledger
// analyst with one KB and a tool user.
func testConfig() *domain.SystemConfig {
	cfg := &domain.SystemConfig{
		Mission: "Answer finance questions",
		Models: []domain.ModelSpec{
			{ID: 1, Name: "Coordinator"},
			{ID: 2, Name: "Ledger Analyst", KnowledgeBases: []int{1}},
			{ID: 3, Name: "Weather Agent", Tools: []int{1}},
		},
		KnowledgeBases: []domain.KnowledgeBase{
			{ID: 1, Name: "Ledger", URL: "https://kb.example.com/ledger.json", Description: "Q1 ledger"},
		},
		Tools: []domain.Tool{
			{ID: 1, Name: "Weather", Description: "Current weather", APIURL: "https://api.example.com/weather"},
		},
	}
	cfg.Normalize()
	return cfg
}
