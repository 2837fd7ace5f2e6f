package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydra/internal/domain"
	"hydra/internal/infra/config"
	"hydra/internal/infra/logger"
)

type mockClient struct {
	calls    map[string]int
	chatFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockClient) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[req.Endpoint]++
	return m.chatFunc(ctx, req)
}

func (m *mockClient) Name() string { return "mock" }

func TestCircuitBreakerPassesThrough(t *testing.T) {
	inner := &mockClient{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return &domain.ChatResponse{Message: domain.Message{Content: "ok"}}, nil
	}}
	cb := NewCircuitBreakerClient(inner, config.CircuitBreakerConfig{}, logger.Discard())

	resp, err := cb.Chat(context.Background(), domain.ChatRequest{Endpoint: "core"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, "mock", cb.Name())
}

func TestCircuitBreakerOpensPerEndpoint(t *testing.T) {
	inner := &mockClient{chatFunc: func(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		if req.Endpoint == "odd" {
			return nil, errors.New("backend down")
		}
		return &domain.ChatResponse{}, nil
	}}
	cb := NewCircuitBreakerClient(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     5 * time.Second,
		Interval:    time.Minute,
	}, logger.Discard())

	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{Endpoint: "odd"})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State("odd"))

	_, err := cb.Chat(context.Background(), domain.ChatRequest{Endpoint: "odd"})
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, 3, inner.calls["odd"], "open breaker must not reach the backend")

	// Other endpoints keep working.
	_, err = cb.Chat(context.Background(), domain.ChatRequest{Endpoint: "even"})
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State("even"))
}

func TestCircuitBreakerSharesResolvedEndpoint(t *testing.T) {
	inner := &mockClient{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, errors.New("fail")
	}}
	cb := NewCircuitBreakerClient(inner, config.CircuitBreakerConfig{MaxFailures: 2}, logger.Discard())

	_, _ = cb.Chat(context.Background(), domain.ChatRequest{Endpoint: "gpu"})
	_, _ = cb.Chat(context.Background(), domain.ChatRequest{Endpoint: "http://gpu:8000/v1/"})
	assert.Equal(t, gobreaker.StateOpen, cb.State("gpu"))
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	inner := &mockClient{chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, context.Canceled
	}}
	cb := NewCircuitBreakerClient(inner, config.CircuitBreakerConfig{MaxFailures: 1}, logger.Discard())

	for i := 0; i < 3; i++ {
		_, err := cb.Chat(context.Background(), domain.ChatRequest{Endpoint: "core"})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State("core"))
}

func TestNewWrapsWhenEnabled(t *testing.T) {
	cfg := testLLMConfig()
	cfg.CircuitBreaker.Enabled = true
	_, ok := New(cfg, logger.Discard()).(*CircuitBreakerClient)
	assert.True(t, ok)

	cfg.CircuitBreaker.Enabled = false
	_, ok = New(cfg, logger.Discard()).(*OpenAIClient)
	assert.True(t, ok)
}

func TestNewPooledTransport(t *testing.T) {
	tr := NewPooledTransport(0, 0, config.PoolConfig{})
	assert.Equal(t, defaultMaxIdleConns, tr.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, defaultRespTimeout, tr.ResponseHeaderTimeout)

	tr = NewPooledTransport(time.Second, 2*time.Second, config.PoolConfig{MaxIdleConns: 3, MaxConnsPerHost: 4})
	assert.Equal(t, 3, tr.MaxIdleConns)
	assert.Equal(t, 4, tr.MaxConnsPerHost)
	assert.Equal(t, 2*time.Second, tr.ResponseHeaderTimeout)

	var _ http.RoundTripper = tr
}
