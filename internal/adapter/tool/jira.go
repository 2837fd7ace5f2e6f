package tool

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"hydra/internal/domain"
)

// IssueCreated is the result of an issue-create call.
type IssueCreated struct {
	Key     string `json:"key"`
	ID      string `json:"id"`
	Self    string `json:"self"`
	Summary string `json:"summary"`
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

type jiraIssueRequest struct {
	Fields jiraFields `json:"fields"`
}

type jiraFields struct {
	Project     jiraKey  `json:"project"`
	Summary     string   `json:"summary"`
	IssueType   jiraName `json:"issuetype"`
	Description string   `json:"description,omitempty"`
}

type jiraKey struct {
	Key string `json:"key"`
}

type jiraName struct {
	Name string `json:"name"`
}

// createIssue files an issue through the tracker's REST v2 API.
// Credentials come from the tool definition, never from the call.
func (e *Executor) createIssue(ctx context.Context, t domain.Tool, call domain.ToolCallRequest) (any, error) {
	if err := RequireFields(call, "project_key", "summary", "issuetype"); err != nil {
		return nil, err
	}
	if t.Email == "" || t.APIKey == "" {
		return nil, newKindError(domain.ErrToolValidation, "issue tracker tool %q needs both email and api_key configured", t.Name)
	}
	if err := ValidateURL("api_url", t.APIURL); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(t.APIURL, "/")
	summary := call.String("summary")
	payload, err := json.Marshal(jiraIssueRequest{Fields: jiraFields{
		Project:     jiraKey{Key: call.String("project_key")},
		Summary:     summary,
		IssueType:   jiraName{Name: call.String("issuetype")},
		Description: call.String("description"),
	}})
	if err != nil {
		return nil, fmt.Errorf("encode issue: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/rest/api/2/issue/", bytes.NewReader(payload))
	if err != nil {
		return nil, newKindError(domain.ErrToolValidation, "create request: %v", err)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(t.Email + ":" + t.APIKey))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, newKindError(domain.ErrToolHTTP, "read response: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, newKindError(domain.ErrAuthInvalid, "Jira authentication failed. Check email and API token.")
	case resp.StatusCode == http.StatusBadRequest:
		return nil, newKindError(domain.ErrToolValidation, "Jira validation error: %s", jiraErrors(data))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, httpStatusError(resp.StatusCode, baseURL+"/rest/api/2/issue/", data)
	}

	var created struct {
		Key  string `json:"key"`
		ID   string `json:"id"`
		Self string `json:"self"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, newKindError(domain.ErrToolHTTP, "decode response: %v", err)
	}
	return IssueCreated{
		Key:     created.Key,
		ID:      created.ID,
		Self:    created.Self,
		Summary: summary,
		Success: true,
		URL:     baseURL + "/browse/" + created.Key,
	}, nil
}

// jiraErrors joins field errors as "field: message; ..." in field order, or
// returns the raw body when the response has none.
func jiraErrors(body []byte) string {
	var parsed struct {
		Errors map[string]any `json:"errors"`
	}
	if json.Unmarshal(body, &parsed) != nil || len(parsed.Errors) == 0 {
		return strings.TrimSpace(string(body))
	}
	keys := make([]string, 0, len(parsed.Errors))
	for k := range parsed.Errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, parsed.Errors[k]))
	}
	return strings.Join(parts, "; ")
}
