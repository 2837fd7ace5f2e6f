package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateOrchestrator(cfg, ve)
	validateTools(cfg, ve)
	validateStore(cfg, ve)
	validateServer(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLLM(cfg *Config, ve *ValidationError) {
	endpoints := []struct {
		name  string
		value string
	}{
		{"core", cfg.LLM.Endpoints.Core},
		{"even", cfg.LLM.Endpoints.Even},
		{"odd", cfg.LLM.Endpoints.Odd},
	}
	for _, ep := range endpoints {
		v := strings.TrimSpace(ep.value)
		if v == "" {
			ve.Add("llm.endpoints.%s must not be empty (set HYDRA_LLM_ENDPOINT_%s)", ep.name, strings.ToUpper(ep.name))
			continue
		}
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			if u, err := url.Parse(v); err != nil || u.Host == "" {
				ve.Add("llm.endpoints.%s %q is not a valid URL", ep.name, v)
			}
		}
	}
	if cfg.LLM.Model == "" {
		ve.Add("llm.model must not be empty")
	}
	if cfg.LLM.MaxTokens <= 0 {
		ve.Add("llm.max_tokens must be > 0")
	}
	if cfg.LLM.CircuitBreaker.Enabled {
		if cfg.LLM.CircuitBreaker.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cfg.LLM.CircuitBreaker.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateOrchestrator(cfg *Config, ve *ValidationError) {
	o := cfg.Orchestrator
	if o.MaxIterations <= 0 {
		ve.Add("orchestrator.max_iterations must be > 0")
	}
	if o.MaxResponseLength <= 0 {
		ve.Add("orchestrator.max_response_length must be > 0")
	}
	if o.QueryTimeout <= 0 {
		ve.Add("orchestrator.query_timeout must be > 0")
	}
	if o.KBFetchTimeout <= 0 {
		ve.Add("orchestrator.kb_fetch_timeout must be > 0")
	}
	if o.RouterMaxTokens < 0 {
		ve.Add("orchestrator.router_max_tokens must be >= 0")
	}
	if o.AgentMaxTokens < 0 {
		ve.Add("orchestrator.agent_max_tokens must be >= 0")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	if cfg.Tools.Timeout <= 0 {
		ve.Add("tools.timeout must be > 0")
	}
	if cfg.Tools.RateLimitPerMin < 0 {
		ve.Add("tools.rate_limit_per_min must be >= 0")
	}
	if u, err := url.Parse(cfg.Tools.GitHubBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("tools.github_base_url %q is not a valid URL", cfg.Tools.GitHubBaseURL)
	}
}

var validStoreBackends = map[string]bool{
	"memory": true,
	"sqlite": true,
}

func validateStore(cfg *Config, ve *ValidationError) {
	if !validStoreBackends[cfg.Store.Backend] {
		ve.Add("store.backend %q is invalid (valid: memory, sqlite)", cfg.Store.Backend)
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.Path == "" {
		ve.Add("store.path is required when store.backend is sqlite")
	}
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	}
	if cfg.Server.RateLimitPerMin < 0 {
		ve.Add("server.rate_limit_per_min must be >= 0")
	}
	if cfg.Server.RateLimitPerMin > 0 && cfg.Server.Burst <= 0 {
		ve.Add("server.burst must be > 0 when rate limiting is enabled")
	}
	for _, p := range cfg.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err == nil {
			continue
		}
		if net.ParseIP(p) == nil {
			ve.Add("server.trusted_proxies entry %q is not an IP or CIDR", p)
		}
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validLogFormats = map[string]bool{"text": true, "json": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (valid: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (valid: text, json)", cfg.Logger.Format)
	}
}
