package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hydra/internal/domain"
)

func jiraTool(url string) domain.Tool {
	return domain.Tool{ID: 4, Name: "Jira", APIURL: url, APIKey: "tok", Email: "dev@acme.io", Kind: domain.ToolIssueCreate}
}

func issueCall(params map[string]any) domain.ToolCallRequest {
	return domain.ToolCallRequest{ToolID: 4, Params: params}
}

func TestCreateIssue(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "10001", "key": "PROJ-7", "self": "https://x/rest/api/2/issue/10001"}`))
	}))
	defer srv.Close()

	res := newTestExecutor("").Execute(context.Background(), jiraTool(srv.URL+"/"), issueCall(map[string]any{
		"project_key": "PROJ",
		"summary":     "Login broken",
		"issuetype":   "Bug",
		"description": "Steps to reproduce",
	}))
	require.True(t, res.Success, res.Error)

	assert.Equal(t, "/rest/api/2/issue/", gotPath)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("dev@acme.io:tok")), gotAuth)
	assert.Equal(t, map[string]any{
		"fields": map[string]any{
			"project":     map[string]any{"key": "PROJ"},
			"summary":     "Login broken",
			"issuetype":   map[string]any{"name": "Bug"},
			"description": "Steps to reproduce",
		},
	}, gotBody)

	issue, ok := res.Result.(IssueCreated)
	require.True(t, ok)
	assert.Equal(t, IssueCreated{
		Key:     "PROJ-7",
		ID:      "10001",
		Self:    "https://x/rest/api/2/issue/10001",
		Summary: "Login broken",
		Success: true,
		URL:     srv.URL + "/browse/PROJ-7",
	}, issue)
}

func TestCreateIssueOmitsEmptyDescription(t *testing.T) {
	var raw map[string]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write([]byte(`{"key": "P-1"}`))
	}))
	defer srv.Close()

	res := newTestExecutor("").Execute(context.Background(), jiraTool(srv.URL), issueCall(map[string]any{
		"project_key": "P", "summary": "s", "issuetype": "Task",
	}))
	require.True(t, res.Success)
	_, has := raw["fields"]["description"]
	assert.False(t, has)
}

func TestCreateIssueValidationBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	full := map[string]any{"project_key": "P", "summary": "s", "issuetype": "Task"}

	noEmail := jiraTool(srv.URL)
	noEmail.Email = ""
	res := newTestExecutor("").Execute(context.Background(), noEmail, issueCall(full))
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeToolValidation, res.ErrorKind)

	noKey := jiraTool(srv.URL)
	noKey.APIKey = ""
	res = newTestExecutor("").Execute(context.Background(), noKey, issueCall(full))
	assert.Equal(t, domain.CodeToolValidation, res.ErrorKind)

	res = newTestExecutor("").Execute(context.Background(), jiraTool(srv.URL), issueCall(map[string]any{"summary": "s"}))
	assert.Equal(t, "missing parameters: project_key, issuetype", res.Error)
	assert.Equal(t, domain.CodeToolParameter, res.ErrorKind)

	assert.Zero(t, hits.Load())
}

func TestCreateIssueErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  string
		wantKind domain.ErrorCode
	}{
		{
			name:     "unauthorized",
			status:   401,
			wantErr:  "Jira authentication failed. Check email and API token.",
			wantKind: domain.CodeAuthInvalid,
		},
		{
			name:     "field errors",
			status:   400,
			body:     `{"errorMessages": [], "errors": {"summary": "required", "project": "invalid key"}}`,
			wantErr:  "Jira validation error: project: invalid key; summary: required",
			wantKind: domain.CodeToolValidation,
		},
		{
			name:     "plain bad request",
			status:   400,
			body:     "bad payload",
			wantErr:  "Jira validation error: bad payload",
			wantKind: domain.CodeToolValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res := newTestExecutor("").Execute(context.Background(), jiraTool(srv.URL), issueCall(map[string]any{
				"project_key": "P", "summary": "s", "issuetype": "Task",
			}))
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantErr, res.Error)
			assert.Equal(t, tt.wantKind, res.ErrorKind)
		})
	}
}
