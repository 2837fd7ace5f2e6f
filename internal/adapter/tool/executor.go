// Package tool executes system tools against their live APIs and describes
// them to models and MCP clients.
package tool

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"hydra/internal/domain"
	"hydra/internal/infra/config"
	"hydra/internal/infra/tracer"
	"hydra/internal/security"
)

// Executor runs tool calls. It is safe for concurrent use.
type Executor struct {
	client        *http.Client
	githubBaseURL string
	limiter       *RateLimiter
	logger        *slog.Logger
}

var _ domain.ToolExecutor = (*Executor)(nil)

// NewExecutor creates an Executor with a dedicated HTTP client.
func NewExecutor(cfg config.ToolsConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		client:        security.NewHTTPClient(cfg.Timeout, cfg.BlockPrivateNetworks),
		githubBaseURL: cfg.GitHubBaseURL,
		limiter:       NewRateLimiter(cfg.RateLimitPerMin, time.Minute),
		logger:        logger,
	}
}

// Execute runs call against t. Failures never escape as errors; they are
// reported in the result with their kind preserved.
func (e *Executor) Execute(ctx context.Context, t domain.Tool, call domain.ToolCallRequest) domain.ToolResult {
	ctx, span := tracer.StartSpan(ctx, "tool.execute")
	defer span.End()
	span.SetAttributes(
		tracer.IntAttr("tool.id", t.ID),
		tracer.StringAttr("tool.name", t.Name),
		tracer.StringAttr("tool.kind", t.Kind.String()),
	)

	start := time.Now()
	v, err := e.run(ctx, t, call)
	res := domain.NewToolResult(v, err)

	if err != nil {
		tracer.RecordError(span, err)
		e.logger.Warn("tool call failed",
			"tool_id", t.ID, "tool", t.Name, "kind", t.Kind.String(),
			"error_kind", string(res.ErrorKind), "error", err)
	} else {
		tracer.SetOK(span)
		e.logger.Debug("tool call completed",
			"tool_id", t.ID, "tool", t.Name, "kind", t.Kind.String(),
			"duration", time.Since(start))
	}
	return res
}

func (e *Executor) run(ctx context.Context, t domain.Tool, call domain.ToolCallRequest) (any, error) {
	if !e.limiter.Allow(t.ID) {
		return nil, newKindError(domain.ErrRateLimit, "tool %q rate limit exceeded", t.Name)
	}
	switch t.Kind {
	case domain.ToolFileFetch:
		return e.fetchFile(ctx, t, call)
	case domain.ToolIssueCreate:
		return e.createIssue(ctx, t, call)
	default:
		return e.callGeneric(ctx, t, call)
	}
}

// Call resolves call.ToolID against tools and executes it.
func (e *Executor) Call(ctx context.Context, tools []domain.Tool, call domain.ToolCallRequest) domain.ToolResult {
	for _, t := range tools {
		if t.ID == call.ToolID {
			return e.Execute(ctx, t, call)
		}
	}
	return domain.NewToolResult(nil, newKindError(domain.ErrToolNotFound, "Tool with ID %d not found", call.ToolID))
}
