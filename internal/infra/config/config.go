package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	LLM          LLMConfig          `yaml:"llm"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Tools        ToolsConfig        `yaml:"tools"`
	Store        StoreConfig        `yaml:"store"`
	Server       ServerConfig       `yaml:"server"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
}

// EndpointsConfig names the three chat backends. Each value is either a
// full base URL or a bare host, which expands to http://{host}:8000/v1.
type EndpointsConfig struct {
	Core string `yaml:"core"` // routing decisions and refinement
	Even string `yaml:"even"` // sub-agents with even model IDs
	Odd  string `yaml:"odd"`  // sub-agents with odd model IDs
}

// LLMConfig holds chat backend settings shared by every endpoint.
type LLMConfig struct {
	Endpoints      EndpointsConfig      `yaml:"endpoints"`
	APIKey         string               `yaml:"api_key"`
	Model          string               `yaml:"model"`
	MaxTokens      int                  `yaml:"max_tokens"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig configures per-endpoint circuit breaking.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig configures HTTP connection pooling for the chat backends.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// OrchestratorConfig holds routing, dispatch and refinement settings.
type OrchestratorConfig struct {
	MaxIterations     int           `yaml:"max_iterations"`
	MaxResponseLength int           `yaml:"max_response_length"`
	QueryTimeout      time.Duration `yaml:"query_timeout"`
	KBFetchTimeout    time.Duration `yaml:"kb_fetch_timeout"`
	RouterMaxTokens   int           `yaml:"router_max_tokens"` // 0 = llm.max_tokens
	AgentMaxTokens    int           `yaml:"agent_max_tokens"`  // 0 = llm.max_tokens
	Refine            bool          `yaml:"refine"`
	StructuredOutput  bool          `yaml:"structured_output"`
}

// ToolsConfig holds settings for tool execution.
type ToolsConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	GitHubBaseURL   string        `yaml:"github_base_url"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"` // per tool, 0 = unlimited
	// BlockPrivateNetworks refuses tool and knowledge base requests that
	// resolve to loopback, link-local or RFC 1918 addresses.
	BlockPrivateNetworks bool `yaml:"block_private_networks"`
}

// StoreConfig selects the SystemStore backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "memory" or "sqlite"
	Path    string `yaml:"path"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	Burst           int           `yaml:"burst"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
	MCPEnabled      bool          `yaml:"mcp_enabled"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.hydra/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".hydra", "data")
}

// RouterTokens is the token limit for routing calls.
func (c *Config) RouterTokens() int {
	return orTokens(c.Orchestrator.RouterMaxTokens, c.LLM.MaxTokens)
}

// AgentTokens is the token limit for sub-agent and refinement calls.
func (c *Config) AgentTokens() int {
	return orTokens(c.Orchestrator.AgentMaxTokens, c.LLM.MaxTokens)
}

func orTokens(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			Endpoints: EndpointsConfig{
				Core: "localhost",
				Even: "localhost",
				Odd:  "localhost",
			},
			APIKey:      "dummy-key",
			Model:       "nvidia/NVIDIA-Nemotron-Nano-9B-v2",
			MaxTokens:   1024,
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Orchestrator: OrchestratorConfig{
			MaxIterations:     3,
			MaxResponseLength: 2000,
			QueryTimeout:      5 * time.Minute,
			KBFetchTimeout:    30 * time.Second,
			Refine:            true,
		},
		Tools: ToolsConfig{
			Timeout:         30 * time.Second,
			GitHubBaseURL:   "https://api.github.com",
			RateLimitPerMin: 60,
		},
		Store: StoreConfig{
			Backend: "memory",
			Path:    filepath.Join(defaultDataDir(), "systems.db"),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimitPerMin: 120,
			Burst:           20,
			MCPEnabled:      true,
			ShutdownTimeout: 10 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env overrides, decrypts secrets and validates.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("HYDRA_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps HYDRA_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	setString := func(env string, dst *string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	setInt := func(env string, dst *int) {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(env string, dst *time.Duration) {
		if v := os.Getenv(env); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = d
			}
		}
	}
	setBool := func(env string, dst *bool) {
		if v := os.Getenv(env); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("HYDRA_LLM_ENDPOINT_CORE", &cfg.LLM.Endpoints.Core)
	setString("HYDRA_LLM_ENDPOINT_EVEN", &cfg.LLM.Endpoints.Even)
	setString("HYDRA_LLM_ENDPOINT_ODD", &cfg.LLM.Endpoints.Odd)
	setString("HYDRA_LLM_API_KEY", &cfg.LLM.APIKey)
	setString("HYDRA_LLM_MODEL", &cfg.LLM.Model)
	setInt("HYDRA_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	setBool("HYDRA_LLM_CIRCUIT_BREAKER_ENABLED", &cfg.LLM.CircuitBreaker.Enabled)

	setInt("HYDRA_ORCHESTRATOR_MAX_ITERATIONS", &cfg.Orchestrator.MaxIterations)
	setInt("HYDRA_ORCHESTRATOR_MAX_RESPONSE_LENGTH", &cfg.Orchestrator.MaxResponseLength)
	setDuration("HYDRA_ORCHESTRATOR_QUERY_TIMEOUT", &cfg.Orchestrator.QueryTimeout)
	setDuration("HYDRA_ORCHESTRATOR_KB_FETCH_TIMEOUT", &cfg.Orchestrator.KBFetchTimeout)
	setBool("HYDRA_ORCHESTRATOR_REFINE", &cfg.Orchestrator.Refine)
	setBool("HYDRA_ORCHESTRATOR_STRUCTURED_OUTPUT", &cfg.Orchestrator.StructuredOutput)

	setDuration("HYDRA_TOOLS_TIMEOUT", &cfg.Tools.Timeout)
	setString("HYDRA_TOOLS_GITHUB_BASE_URL", &cfg.Tools.GitHubBaseURL)
	setInt("HYDRA_TOOLS_RATE_LIMIT_PER_MIN", &cfg.Tools.RateLimitPerMin)
	setBool("HYDRA_TOOLS_BLOCK_PRIVATE_NETWORKS", &cfg.Tools.BlockPrivateNetworks)

	setString("HYDRA_STORE_BACKEND", &cfg.Store.Backend)
	setString("HYDRA_STORE_PATH", &cfg.Store.Path)

	setString("HYDRA_SERVER_ADDR", &cfg.Server.Addr)
	setInt("HYDRA_SERVER_RATE_LIMIT_PER_MIN", &cfg.Server.RateLimitPerMin)
	setBool("HYDRA_SERVER_MCP_ENABLED", &cfg.Server.MCPEnabled)
	if v := os.Getenv("HYDRA_SERVER_TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = splitAndTrim(v, ",")
	}

	setString("HYDRA_LOGGER_LEVEL", &cfg.Logger.Level)
	setString("HYDRA_LOGGER_FORMAT", &cfg.Logger.Format)
	setString("HYDRA_LOGGER_OUTPUT", &cfg.Logger.Output)
	setBool("HYDRA_TRACER_ENABLED", &cfg.Tracer.Enabled)
	setString("HYDRA_TRACER_EXPORTER", &cfg.Tracer.Exporter)
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values and decrypts them in place.
func decryptSecrets(cfg *Config, passphrase string) error {
	if strings.HasPrefix(cfg.LLM.APIKey, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.LLM.APIKey, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("llm api_key: %w", err)
		}
		cfg.LLM.APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
