package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel/trace"

	"hydra/internal/domain"
	"hydra/internal/infra/tracer"
	"hydra/internal/usecase/extract"
)

// decisionSchema is what an extracted routing payload must satisfy.
const decisionSchema = `{
	"type": "object",
	"required": ["model_id", "prompt"],
	"properties": {
		"model_id": {
			"anyOf": [
				{"type": "integer"},
				{"type": "string", "pattern": "^\\s*-?[0-9]+\\s*$"}
			]
		},
		"prompt": {"type": "string"}
	}
}`

// RoutingError reports a Core Router reply that held no usable decision.
type RoutingError struct {
	Reason    string
	Extracted string
	Raw       string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("%s: %s\nExtracted JSON text (first 500 chars): %s\nFull response (first 1000 chars): %s",
		domain.ErrRouting, e.Reason, truncateRunes(e.Extracted, 500), truncateRunes(e.Raw, 1000))
}

func (e *RoutingError) Unwrap() error { return domain.ErrRouting }

// CoreRouterDeps holds injected dependencies for the CoreRouter.
type CoreRouterDeps struct {
	Chat      domain.ChatClient
	Endpoint  string // core pool
	MaxTokens int
	// StructuredOutput asks the backend for a JSON object reply. Extraction
	// still runs on the result.
	StructuredOutput bool
	Logger           *slog.Logger
}

// CoreRouter picks the sub-agent for a query and rewrites the query for it.
type CoreRouter struct {
	deps   CoreRouterDeps
	schema *jsonschema.Schema
}

// NewCoreRouter creates a CoreRouter.
func NewCoreRouter(deps CoreRouterDeps) (*CoreRouter, error) {
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = 1024
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	schema, err := jsonschema.NewCompiler().Compile([]byte(decisionSchema))
	if err != nil {
		return nil, fmt.Errorf("compile decision schema: %w", err)
	}
	return &CoreRouter{deps: deps, schema: schema}, nil
}

// Route asks the core model which sub-agent should handle query. It never
// guesses: a reply without a valid decision is a *RoutingError.
func (r *CoreRouter) Route(ctx context.Context, query string, cfg *domain.SystemConfig) (*domain.RoutingDecision, error) {
	ctx, span := tracer.StartSpan(ctx, "router.route",
		trace.WithAttributes(tracer.IntAttr("router.models", len(cfg.Models))),
	)
	defer span.End()

	sup, n := Supervisor(cfg.Models)
	if n > 1 {
		r.deps.Logger.Warn("several models qualify as supervisor, using the first",
			"supervisor_id", sup.ID, "candidates", n)
	}

	req := domain.ChatRequest{
		Endpoint: r.deps.Endpoint,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: routerSystemPrompt(cfg, sup)},
			{Role: domain.RoleUser, Content: query},
		},
		MaxTokens: r.deps.MaxTokens,
	}
	if r.deps.StructuredOutput {
		req.ResponseFormat = domain.FormatJSONObject
	}

	resp, err := r.deps.Chat.Chat(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("CoreRouter.Route", err)
	}

	raw := resp.Message.Content
	decision, err := r.parse(raw)
	if err != nil {
		tracer.RecordError(span, err)
		r.deps.Logger.Warn("routing reply rejected", "error", err.(*RoutingError).Reason)
		return nil, err
	}

	span.SetAttributes(tracer.IntAttr("router.model_id", decision.ModelID))
	tracer.SetOK(span)
	r.deps.Logger.Debug("query routed", "model_id", decision.ModelID)
	return decision, nil
}

func (r *CoreRouter) parse(raw string) (*domain.RoutingDecision, error) {
	extracted := extract.Extract(raw, "model_id")
	fail := func(format string, args ...any) error {
		return &RoutingError{Reason: fmt.Sprintf(format, args...), Extracted: extracted, Raw: raw}
	}

	var doc any
	if err := json.Unmarshal([]byte(extracted), &doc); err != nil {
		return nil, fail("Failed to parse JSON response: %v", err)
	}
	if res := r.schema.Validate(doc); !res.IsValid() {
		return nil, fail("Response missing required fields: model_id or prompt (%s)", res.Error())
	}

	obj := doc.(map[string]any)
	id, err := domain.AsInt(obj["model_id"])
	if err != nil {
		return nil, fail("invalid model_id: %v", err)
	}
	prompt := strings.TrimSpace(obj["prompt"].(string))
	return &domain.RoutingDecision{ModelID: id, Prompt: prompt}, nil
}
