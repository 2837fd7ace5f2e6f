package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"hydra/internal/domain"
	"hydra/internal/infra/tracer"
	"hydra/internal/usecase/extract"
)

// ToolCaller resolves a call against a tool list and executes it.
type ToolCaller interface {
	Call(ctx context.Context, tools []domain.Tool, call domain.ToolCallRequest) domain.ToolResult
}

// dispatchState is a step of the reason/act loop.
type dispatchState int

const (
	stateAwaitingModel dispatchState = iota
	stateToolCallDetected
	stateExecutingTool
	stateTerminated
	stateMaxIterExhausted
)

func (s dispatchState) String() string {
	switch s {
	case stateAwaitingModel:
		return "awaiting_model"
	case stateToolCallDetected:
		return "tool_call_detected"
	case stateExecutingTool:
		return "executing_tool"
	case stateTerminated:
		return "terminated"
	default:
		return "max_iter_exhausted"
	}
}

// DispatcherDeps holds injected dependencies for the Dispatcher.
type DispatcherDeps struct {
	Chat          domain.ChatClient
	Tools         ToolCaller
	Knowledge     domain.KnowledgeSource
	FormatTools   func([]domain.Tool) string
	EvenEndpoint  string
	OddEndpoint   string
	MaxTokens     int
	MaxIterations int
	Logger        *slog.Logger
}

// Dispatcher runs one sub-agent's bounded reason/act loop.
type Dispatcher struct {
	deps DispatcherDeps
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 3
	}
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = 1024
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.FormatTools == nil {
		deps.FormatTools = func([]domain.Tool) string { return "" }
	}
	return &Dispatcher{deps: deps}
}

// EndpointFor returns the pool serving modelID: even IDs go to the even
// pool, odd IDs to the odd pool.
func (d *Dispatcher) EndpointFor(modelID int) string {
	if modelID%2 == 0 {
		return d.deps.EvenEndpoint
	}
	return d.deps.OddEndpoint
}

// Dispatch runs prompt through model modelID of cfg and returns its answer.
// It always returns text; failures are reported inline.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg *domain.SystemConfig, modelID int, prompt string) string {
	ctx, span := tracer.StartSpan(ctx, "dispatch.run",
		trace.WithAttributes(tracer.IntAttr("dispatch.model_id", modelID)),
	)
	defer span.End()

	model, ok := cfg.Model(modelID)
	if !ok {
		span.SetAttributes(tracer.BoolAttr("dispatch.model_found", false))
		return fmt.Sprintf("Error: Model with ID %d not found", modelID)
	}

	endpoint := d.EndpointFor(modelID)
	tools := cfg.ToolsFor(model)
	system := subAgentSystemPrompt(d.knowledgeContext(ctx, cfg.KnowledgeBasesFor(model)), d.deps.FormatTools(tools), prompt)
	log := d.deps.Logger.With("model_id", modelID, "endpoint", endpoint)

	var transcript, observations []string
	current := prompt
	last := ""
	state := stateAwaitingModel
	calls := 0

	for iter := 1; iter <= d.deps.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			log.Warn("dispatch aborted", "iteration", iter, "error", err)
			transcript = append(transcript, fmt.Sprintf("Query aborted before iteration %d: %v", iter, err))
			return strings.Join(transcript, "\n\n")
		}

		state = stateAwaitingModel
		reply, err := d.step(ctx, endpoint, system, current, iter)
		if err != nil {
			log.Warn("sub-agent call failed", "iteration", iter, "error", err)
			msg := fmt.Sprintf("Error: sub-agent model %d failed: %v", modelID, err)
			if len(transcript) == 0 {
				return msg
			}
			return withTranscript(transcript, msg)
		}
		last = reply

		call, found := parseToolCall(reply, tools)
		if !found {
			state = stateTerminated
			log.Debug("sub-agent finished", "iteration", iter, "tool_calls", calls, "state", state.String())
			tracer.SetOK(span)
			span.SetAttributes(tracer.IntAttr("dispatch.iterations", iter), tracer.IntAttr("dispatch.tool_calls", calls))
			if len(transcript) == 0 {
				return reply
			}
			return withTranscript(transcript, reply)
		}

		state = stateToolCallDetected
		log.Debug("tool call detected", "iteration", iter, "tool_id", call.ToolID, "state", state.String())

		state = stateExecutingTool
		res := d.deps.Tools.Call(ctx, tools, call)
		calls++
		obs := observation(res)
		transcript = append(transcript, fmt.Sprintf("[Iteration %d] Sub-agent response:\n%s\n\n%s", iter, reply, obs))
		observations = append(observations, obs)
		current = followUpPrompt(prompt, observations)
	}

	state = stateMaxIterExhausted
	log.Warn("max iterations reached", "iterations", d.deps.MaxIterations, "tool_calls", calls, "state", state.String())
	span.SetAttributes(tracer.IntAttr("dispatch.iterations", d.deps.MaxIterations), tracer.IntAttr("dispatch.tool_calls", calls))
	transcript = append(transcript, fmt.Sprintf(
		"Max iterations reached (%d). This is a partial result; the last sub-agent response was:\n%s",
		d.deps.MaxIterations, last))
	return strings.Join(transcript, "\n\n")
}

func (d *Dispatcher) step(ctx context.Context, endpoint, system, prompt string, iter int) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "dispatch.iteration",
		trace.WithAttributes(tracer.IntAttr("dispatch.iteration", iter)),
	)
	defer span.End()

	reply, err := domain.ChatText(ctx, d.deps.Chat, endpoint, system, prompt, d.deps.MaxTokens)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	tracer.SetOK(span)
	return reply, nil
}

// knowledgeContext fetches every KB fresh. A failed fetch is rendered as an
// unavailable marker instead of dropping the KB.
func (d *Dispatcher) knowledgeContext(ctx context.Context, kbs []domain.KnowledgeBase) string {
	sections := make([]string, 0, len(kbs))
	for _, kb := range kbs {
		if kb.Source() == "" {
			continue
		}
		var content string
		err := domain.ErrKBFetch
		if d.deps.Knowledge != nil {
			content, err = d.deps.Knowledge.Fetch(ctx, kb)
		}
		if err != nil {
			d.deps.Logger.Warn("knowledge base unavailable", "kb_id", kb.ID, "error", err)
		}
		sections = append(sections, kbSection(kb, content, err))
	}
	return strings.Join(sections, "\n")
}

func observation(res domain.ToolResult) string {
	if !res.Success {
		return "Tool execution failed: " + res.Error
	}
	b, err := json.MarshalIndent(res.Result, "", "  ")
	if err != nil {
		return fmt.Sprintf("Tool execution result: %v", res.Result)
	}
	return "Tool execution result: " + string(b)
}

func withTranscript(transcript []string, final string) string {
	if final == "" {
		return strings.Join(transcript, "\n\n")
	}
	return strings.Join(transcript, "\n\n") + "\n\nFinal response:\n" + final
}

// parseToolCall finds a tool call in a sub-agent reply. A flat object
// carrying tool_id is tried first, then a {"tool_call": {name, arguments}}
// wrapper whose name must match a tool name case-insensitively.
func parseToolCall(reply string, tools []domain.Tool) (domain.ToolCallRequest, bool) {
	if s, ok := extract.Payload(reply, "tool_id"); ok {
		if m, ok := decodeObject(s); ok {
			if _, has := m["tool_id"]; has {
				if call, err := domain.ToolCallFromMap(m); err == nil {
					return call, true
				}
			}
		}
	}

	s, ok := extract.Payload(reply, "tool_call")
	if !ok {
		return domain.ToolCallRequest{}, false
	}
	m, ok := decodeObject(s)
	if !ok {
		return domain.ToolCallRequest{}, false
	}
	wrapped, ok := m["tool_call"].(map[string]any)
	if !ok {
		return domain.ToolCallRequest{}, false
	}
	name, _ := wrapped["name"].(string)
	id, ok := ToolIDByName(tools, name)
	if !ok {
		return domain.ToolCallRequest{}, false
	}

	args, _ := wrapped["arguments"].(map[string]any)
	if str, isStr := wrapped["arguments"].(string); isStr {
		args, _ = decodeObject(str)
	}
	call := domain.ToolCallRequest{ToolID: id, Params: make(map[string]any, len(args))}
	for k, v := range args {
		switch k {
		case "tool_id":
		case "action":
			call.Action, _ = v.(string)
		default:
			call.Params[k] = v
		}
	}
	return call, true
}

// ToolIDByName resolves a tool name by case-insensitive exact match.
func ToolIDByName(tools []domain.Tool, name string) (int, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	for _, t := range tools {
		if strings.EqualFold(t.Name, name) {
			return t.ID, true
		}
	}
	return 0, false
}

func decodeObject(s string) (map[string]any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
