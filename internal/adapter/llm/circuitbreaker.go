package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"hydra/internal/domain"
	"hydra/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerClient wraps a ChatClient with one breaker per endpoint, so
// a failing sub-agent pool does not block routing on the core endpoint.
type CircuitBreakerClient struct {
	inner  domain.ChatClient
	cfg    config.CircuitBreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewCircuitBreakerClient wraps inner. Zero-valued settings fall back to defaults.
func NewCircuitBreakerClient(inner domain.ChatClient, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultCBMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultCBTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultCBInterval
	}
	return &CircuitBreakerClient{
		inner:    inner,
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[*domain.ChatResponse]),
	}
}

func (c *CircuitBreakerClient) breaker(endpoint string) *gobreaker.CircuitBreaker[*domain.ChatResponse] {
	key := ResolveBaseURL(endpoint)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[key]; ok {
		return cb
	}

	maxFailures := c.cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[*domain.ChatResponse](gobreaker.Settings{
		Name:        "llm:" + key,
		MaxRequests: 1, // one probe in half-open state
		Interval:    c.cfg.Interval,
		Timeout:     c.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Caller cancellation says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	c.breakers[key] = cb
	return cb
}

// Chat implements domain.ChatClient.
func (c *CircuitBreakerClient) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := c.breaker(req.Endpoint).Execute(func() (*domain.ChatResponse, error) {
		return c.inner.Chat(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("endpoint %q: %w: %v", ResolveBaseURL(req.Endpoint), domain.ErrCircuitOpen, err)
		}
		return nil, err
	}
	return resp, nil
}

// Name implements domain.ChatClient.
func (c *CircuitBreakerClient) Name() string { return c.inner.Name() }

// State returns the breaker state for endpoint. Endpoints never called report closed.
func (c *CircuitBreakerClient) State(endpoint string) gobreaker.State {
	return c.breaker(endpoint).State()
}

var _ domain.ChatClient = (*CircuitBreakerClient)(nil)

// --- Connection Pooling ---

// Default connection pool settings: few hosts, long-lived connections.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second
)

// Default backend timeouts.
const (
	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second
)

// NewPooledTransport creates an http.Transport with connection pooling
// sized for chat backend calls.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxIdlePerHost := pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdleConnsPerHost
	}
	maxConnsPerHost := pool.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}
	idleTimeout := pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}

	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       idleTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// NewHTTPClient creates an *http.Client with pooled transport and timeout
// defaults suitable for chat backends.
func NewHTTPClient(cfg config.LLMConfig) *http.Client {
	connTimeout := cfg.ConnTimeout
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	respTimeout := cfg.RespTimeout
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}
	return &http.Client{
		Transport: NewPooledTransport(connTimeout, respTimeout, cfg.Pool),
		Timeout:   connTimeout + respTimeout,
	}
}

// New builds the chat client described by cfg, wrapped in per-endpoint
// circuit breakers when enabled.
func New(cfg config.LLMConfig, logger *slog.Logger) domain.ChatClient {
	var client domain.ChatClient = NewOpenAIClient(cfg, logger)
	if cfg.CircuitBreaker.Enabled {
		client = NewCircuitBreakerClient(client, cfg.CircuitBreaker, logger)
	}
	return client
}
