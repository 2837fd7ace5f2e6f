package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hydra/internal/adapter/llm"
	"hydra/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Core endpoint", Fn: checkEndpoint(func(c *config.Config) string { return c.LLM.Endpoints.Core })},
		{Name: "Even endpoint", Fn: checkEndpoint(func(c *config.Config) string { return c.LLM.Endpoints.Even })},
		{Name: "Odd endpoint", Fn: checkEndpoint(func(c *config.Config) string { return c.LLM.Endpoints.Odd })},
		{Name: "System store", Fn: checkStore},
		{Name: "Secrets", Fn: checkSecrets},
	}

	fmt.Println("hydra doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	results := runChecks(cfg, checks)
	var pass, warn, fail int
	for _, result := range results {
		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func runChecks(cfg *config.Config, checks []Check) []CheckResult {
	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name
		results = append(results, result)
	}
	return results
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loaded.
// A missing file is only a warning: defaults and HYDRA_* apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and the values reported above",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and HYDRA_* variables", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkEndpoint probes {base}/models on the selected chat endpoint.
func checkEndpoint(pick func(*config.Config) string) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
		}
		base := llm.ResolveBaseURL(pick(cfg))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/models", nil)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid endpoint %s: %v", base, err)}
		}
		if cfg.LLM.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.LLM.APIKey)
		}

		start := time.Now()
		resp, err := http.DefaultClient.Do(req)
		latency := time.Since(start)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot reach %s: %v", base, err),
				Fix:     "Check that the model server is running and llm.endpoints is correct",
			}
		}
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s answered HTTP %d", base, resp.StatusCode),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s reachable (latency: %dms)", base, latency.Milliseconds()),
		}
	}
}

// checkStore verifies the sqlite directory is writable.
func checkStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if cfg.Store.Backend != "sqlite" {
		return CheckResult{Status: StatusPass, Message: "in-memory store (systems are lost on restart)"}
	}

	dir, _ := filepath.Abs(filepath.Dir(cfg.Store.Path))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data directory %s cannot be created: %v", dir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", dir),
		}
	}
	probe := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data directory %s is not writable: %v", dir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", dir),
		}
	}
	os.Remove(probe)
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("sqlite store at %s", cfg.Store.Path)}
}

// checkSecrets warns when the API key is stored in plain text.
func checkSecrets(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}
	}
	if cfg.LLM.APIKey == "" || cfg.LLM.APIKey == config.Defaults().LLM.APIKey {
		return CheckResult{Status: StatusPass, Message: "no real API key configured"}
	}
	if os.Getenv("HYDRA_CONFIG_KEY") == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "llm.api_key is stored in plain text",
			Fix:     "Encrypt it: echo -n $KEY | HYDRA_CONFIG_KEY=... hydra encrypt-secret",
		}
	}
	return CheckResult{Status: StatusPass, Message: "secrets decrypted with HYDRA_CONFIG_KEY"}
}
