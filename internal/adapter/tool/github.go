package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"unicode/utf8"

	"hydra/internal/domain"
)

// FileContent is the result of a file-fetch call.
type FileContent struct {
	Content  string `json:"content"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
	Encoding string `json:"encoding"`
	Path     string `json:"path"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

type githubContent struct {
	Content  *string `json:"content"`
	SHA      string  `json:"sha"`
	Size     int     `json:"size"`
	Encoding string  `json:"encoding"`
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
}

// fetchFile reads one file through the repository contents API.
func (e *Executor) fetchFile(ctx context.Context, t domain.Tool, call domain.ToolCallRequest) (any, error) {
	if err := RequireFields(call, "owner", "repo", "path"); err != nil {
		return nil, err
	}
	owner, repo := call.String("owner"), call.String("repo")
	filePath := strings.Trim(call.String("path"), "/")

	target := strings.TrimRight(e.githubBaseURL, "/") +
		"/repos/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) +
		"/contents/" + escapePath(filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, newKindError(domain.ErrToolValidation, "create request: %v", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, newKindError(domain.ErrRateLimit,
			"GitHub API rate limit exceeded. Remaining: %s, Resets at: %s",
			headerOr(resp.Header, "X-RateLimit-Remaining", "unknown"),
			headerOr(resp.Header, "X-RateLimit-Reset", "unknown"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, newKindError(domain.ErrToolHTTP, "read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpStatusError(resp.StatusCode, target, data)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return nil, newKindError(domain.ErrToolValidation, "Path '%s' is a directory, not a file", filePath)
	}

	var gc githubContent
	if err := json.Unmarshal(data, &gc); err != nil {
		return nil, newKindError(domain.ErrToolHTTP, "decode response: %v", err)
	}
	if gc.Content == nil {
		return nil, newKindError(domain.ErrToolValidation, "File '%s' not found or is not a file", filePath)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(*gc.Content, "\n", ""))
	if err != nil {
		return nil, newKindError(domain.ErrToolValidation, "Failed to decode file content: %v", err)
	}
	if !utf8.Valid(decoded) {
		return nil, newKindError(domain.ErrToolValidation, "Failed to decode file content: not valid UTF-8")
	}

	fc := FileContent{
		Content:  string(decoded),
		SHA:      gc.SHA,
		Size:     gc.Size,
		Encoding: gc.Encoding,
		Path:     gc.Path,
		Name:     gc.Name,
		Type:     gc.Type,
	}
	if fc.Encoding == "" {
		fc.Encoding = "base64"
	}
	if fc.Path == "" {
		fc.Path = filePath
	}
	if fc.Name == "" {
		fc.Name = path.Base(filePath)
	}
	if fc.Type == "" {
		fc.Type = "file"
	}
	return fc, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func headerOr(h http.Header, key, fallback string) string {
	if v := h.Get(key); v != "" {
		return v
	}
	return fallback
}
