package domain

import "context"

// ChatClient is the interface for an OpenAI-compatible chat backend.
// The endpoint pool is chosen per request.
type ChatClient interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the client's identifier.
	Name() string
}

// ChatText sends a system + user prompt pair and returns the reply text.
func ChatText(ctx context.Context, c ChatClient, endpoint, systemPrompt, prompt string, maxTokens int) (string, error) {
	var msgs []Message
	if systemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})
	resp, err := c.Chat(ctx, ChatRequest{
		Endpoint:  endpoint,
		Messages:  msgs,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}
