package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"hydra/internal/domain"
	"hydra/internal/infra/config"
	"hydra/internal/infra/tracer"
)

// ResolveBaseURL turns a configured endpoint into an OpenAI-compatible base
// URL. Full http(s) URLs are used as given; a bare host expands to
// http://{host}:8000/v1. Trailing slashes are removed.
func ResolveBaseURL(endpoint string) string {
	ep := strings.TrimSpace(endpoint)
	if !strings.HasPrefix(ep, "http://") && !strings.HasPrefix(ep, "https://") {
		ep = "http://" + ep + ":8000/v1"
	}
	return strings.TrimRight(ep, "/")
}

// OpenAIClient implements domain.ChatClient against any OpenAI-compatible
// /chat/completions endpoint. The backend is picked per request from
// ChatRequest.Endpoint.
type OpenAIClient struct {
	model     string
	maxTokens int
	apiKey    string
	client *http.Client
	logger *slog.Logger
}

// NewOpenAIClient creates a client with pooled transport and configured timeouts.
func NewOpenAIClient(cfg config.LLMConfig, logger *slog.Logger) *OpenAIClient {
	return &OpenAIClient{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		apiKey:    cfg.APIKey,
		client:    NewHTTPClient(cfg),
		logger:    logger,
	}
}

// Chat implements domain.ChatClient.
func (c *OpenAIClient) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = c.maxTokens
	}
	baseURL := ResolveBaseURL(req.Endpoint)

	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.endpoint", baseURL),
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.max_tokens", req.MaxTokens),
		),
	)
	defer span.End()

	body, err := json.Marshal(toOpenAIRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	respBody, err := doJSONRequest(ctx, c.client, baseURL+"/chat/completions", body, headers)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: unmarshal response: %v", domain.ErrProviderError, err)
	}
	if len(oaiResp.Choices) == 0 {
		err := fmt.Errorf("%w: response has no choices", domain.ErrProviderError)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromOpenAIResponse(oaiResp)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(c.logger, baseURL, result)

	return result, nil
}

// Name implements domain.ChatClient.
func (c *OpenAIClient) Name() string { return "openai-compatible" }

var _ domain.ChatClient = (*OpenAIClient)(nil)

// --- OpenAI API wire types ---

type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Temperature    *float64              `json:"temperature,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
	Created int64          `json:"created"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toOpenAIRequest(req domain.ChatRequest) openaiRequest {
	msgs := make([]openaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openaiMessage{Role: m.Role, Content: m.Content})
	}

	oaiReq := openaiRequest{
		Model:     req.Model,
		Messages:  msgs,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature > 0 {
		oaiReq.Temperature = &req.Temperature
	}
	if req.ResponseFormat != domain.FormatText {
		oaiReq.ResponseFormat = &openaiResponseFormat{Type: req.ResponseFormat}
	}
	return oaiReq
}

func fromOpenAIResponse(resp openaiResponse) *domain.ChatResponse {
	choice := resp.Choices[0]
	created := time.Now()
	if resp.Created > 0 {
		created = time.Unix(resp.Created, 0)
	}
	return &domain.ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Message: domain.Message{
			Role:    domain.RoleAssistant,
			Content: choice.Message.Content,
		},
		Usage: domain.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: created,
	}
}
