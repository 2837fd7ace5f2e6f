package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"hydra/internal/domain"
)

// maxResponseBody caps how much of a tool response is read.
const maxResponseBody = 5 * 1024 * 1024

// RawResponse is returned for generic calls whose body is not JSON.
type RawResponse struct {
	Content    string `json:"content"`
	StatusCode int    `json:"status_code"`
}

// callGeneric performs one authenticated request against tool.APIURL.
// method defaults to POST; body is sent as JSON for POST and PUT; params
// become the query string for every method.
func (e *Executor) callGeneric(ctx context.Context, t domain.Tool, call domain.ToolCallRequest) (any, error) {
	if err := ValidateURL("api_url", t.APIURL); err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(call.String("method")))
	if method == "" {
		method = http.MethodPost
	}

	target, err := withQuery(t.APIURL, call.Params["params"])
	if err != nil {
		return nil, err
	}

	var body io.Reader
	switch method {
	case http.MethodGet, http.MethodDelete:
	case http.MethodPost, http.MethodPut:
		if b, ok := call.Params["body"]; ok && b != nil {
			raw, err := json.Marshal(b)
			if err != nil {
				return nil, newKindError(domain.ErrToolParameter, "encode body: %v", err)
			}
			body = bytes.NewReader(raw)
		}
	default:
		return nil, newKindError(domain.ErrToolValidation, "Unsupported HTTP method: %s", method)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, newKindError(domain.ErrToolValidation, "create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, newKindError(domain.ErrToolHTTP, "read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpStatusError(resp.StatusCode, t.APIURL, data)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return RawResponse{Content: string(data), StatusCode: resp.StatusCode}, nil
	}
	return parsed, nil
}

// withQuery appends params (a JSON object) to rawURL's query string.
func withQuery(rawURL string, params any) (string, error) {
	if params == nil {
		return rawURL, nil
	}
	m, ok := params.(map[string]any)
	if !ok {
		return "", newKindError(domain.ErrToolParameter, "params must be an object, got %T", params)
	}
	if len(m) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", newKindError(domain.ErrToolValidation, "invalid api_url: %v", err)
	}
	q := u.Query()
	for k, v := range m {
		q.Set(k, queryValue(v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func queryValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrBlockedAddress) {
		return newKindError(domain.ErrBlockedAddress, "request blocked: %v", err)
	}
	if ctx.Err() != nil {
		return newKindError(domain.ErrTimeout, "request aborted: %v", err)
	}
	return newKindError(domain.ErrToolHTTP, "request failed: %v", err)
}

func httpStatusError(status int, target string, body []byte) error {
	if len(body) > 512 {
		body = body[:512]
	}
	msg := fmt.Sprintf("%d %s for url: %s", status, http.StatusText(status), target)
	if len(bytes.TrimSpace(body)) > 0 {
		msg += ": " + string(bytes.TrimSpace(body))
	}
	switch status {
	case http.StatusTooManyRequests:
		return newKindError(domain.ErrRateLimit, "%s", msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return newKindError(domain.ErrAuthInvalid, "%s", msg)
	default:
		return newKindError(domain.ErrToolHTTP, "%s", msg)
	}
}
