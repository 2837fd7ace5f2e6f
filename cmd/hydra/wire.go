package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"hydra/internal/adapter/knowledge"
	"hydra/internal/adapter/llm"
	"hydra/internal/adapter/store"
	"hydra/internal/adapter/tool"
	"hydra/internal/domain"
	"hydra/internal/infra/config"
	"hydra/internal/infra/logger"
	"hydra/internal/usecase"
)

// components is the wired query pipeline.
type components struct {
	Systems *usecase.SystemService
	Tools   *tool.Executor
	store   io.Closer
}

func (c *components) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// buildComponents wires the pipeline over the given chat client.
func buildComponents(cfg *config.Config, chat domain.ChatClient, log *slog.Logger) (*components, error) {
	systems, closer, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	orch := cfg.Orchestrator
	executor := tool.NewExecutor(cfg.Tools, logger.Component(log, "tools"))

	router, err := usecase.NewCoreRouter(usecase.CoreRouterDeps{
		Chat:             chat,
		Endpoint:         cfg.LLM.Endpoints.Core,
		MaxTokens:        cfg.RouterTokens(),
		StructuredOutput: orch.StructuredOutput,
		Logger:           logger.Component(log, "router"),
	})
	if err != nil {
		closer.Close()
		return nil, err
	}

	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Chat:          chat,
		Tools:         executor,
		Knowledge:     knowledge.NewFetcher(orch.KBFetchTimeout, cfg.Tools.BlockPrivateNetworks, logger.Component(log, "knowledge")),
		FormatTools:   tool.FormatForPrompt,
		EvenEndpoint:  cfg.LLM.Endpoints.Even,
		OddEndpoint:   cfg.LLM.Endpoints.Odd,
		MaxTokens:     cfg.AgentTokens(),
		MaxIterations: orch.MaxIterations,
		Logger:        logger.Component(log, "dispatcher"),
	})

	refiner := usecase.NewRefiner(usecase.RefinerDeps{
		Chat:      chat,
		Endpoint:  cfg.LLM.Endpoints.Core,
		MaxTokens: cfg.AgentTokens(),
		Enabled:   orch.Refine,
		Logger:    logger.Component(log, "refiner"),
	})

	svc := usecase.NewSystemService(usecase.SystemServiceDeps{
		Store:             systems,
		Router:            router,
		Dispatcher:        dispatcher,
		Refiner:           refiner,
		Logger:            logger.Component(log, "systems"),
		QueryTimeout:      orch.QueryTimeout,
		MaxResponseLength: orch.MaxResponseLength,
	})

	return &components{Systems: svc, Tools: executor, store: closer}, nil
}

// newChatClient builds the production chat client.
func newChatClient(cfg *config.Config, log *slog.Logger) domain.ChatClient {
	return llm.New(cfg.LLM, logger.Component(log, "llm"))
}

// loadSystemConfig reads a SystemConfig from a JSON or YAML file.
func loadSystemConfig(path string) (domain.SystemConfig, error) {
	var cfg domain.SystemConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read system config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse system config %s: %w", path, err)
	}
	return cfg, nil
}
