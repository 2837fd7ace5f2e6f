// Package knowledge fetches knowledge base documents and renders them for
// sub-agent prompts.
package knowledge

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hydra/internal/domain"
	"hydra/internal/infra/tracer"
	"hydra/internal/security"
)

const maxDocumentSize = 10 * 1024 * 1024

// Fetcher downloads knowledge base content on every call. Nothing is cached.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ domain.KnowledgeSource = (*Fetcher)(nil)

// NewFetcher creates a Fetcher whose requests are bounded by timeout.
func NewFetcher(timeout time.Duration, blockPrivate bool, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		client:  security.NewHTTPClient(timeout, blockPrivate),
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch downloads kb and returns its content formatted for a prompt.
// Errors wrap domain.ErrKBFetch.
func (f *Fetcher) Fetch(ctx context.Context, kb domain.KnowledgeBase) (string, error) {
	src := kb.Source()
	ctx, span := tracer.StartSpan(ctx, "kb.fetch")
	defer span.End()
	span.SetAttributes(tracer.IntAttr("kb.id", kb.ID), tracer.StringAttr("kb.url", src))

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	body, err := f.get(ctx, src)
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	tracer.SetOK(span)
	span.SetAttributes(tracer.IntAttr("kb.bytes", len(body)))
	return Format(src, body), nil
}

func (f *Fetcher) get(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrKBFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, domain.ErrBlockedAddress) {
			return nil, fmt.Errorf("%w: %w", domain.ErrKBFetch, domain.ErrBlockedAddress)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrKBFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d %s for url: %s",
			domain.ErrKBFetch, resp.StatusCode, http.StatusText(resp.StatusCode), src)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrKBFetch, err)
	}
	return body, nil
}

// Format renders a document by the extension of src: .json is
// pretty-printed, .csv becomes one "column: value" line per row. Anything
// else is tried as JSON, then CSV, then returned as text. Content that does
// not parse as its declared format is returned unchanged.
func Format(src string, body []byte) string {
	switch ext(src) {
	case ".json":
		if s, ok := formatJSON(body); ok {
			return s
		}
	case ".csv":
		if s, ok := formatCSV(body, 1); ok {
			return s
		}
	default:
		if s, ok := formatJSON(body); ok {
			return s
		}
		// Without an extension a single column is indistinguishable from prose.
		if s, ok := formatCSV(body, 2); ok {
			return s
		}
	}
	return string(body)
}

func ext(src string) string {
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	p = strings.ToLower(p)
	if i := strings.LastIndexByte(p, '.'); i >= 0 && !strings.Contains(p[i:], "/") {
		return p[i:]
	}
	return ""
}

func formatJSON(body []byte) (string, bool) {
	var out bytes.Buffer
	if err := json.Indent(&out, bytes.TrimSpace(body), "", "  "); err != nil {
		return "", false
	}
	return out.String(), true
}

func formatCSV(body []byte, minColumns int) (string, bool) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil || len(records) < 2 || len(records[0]) < minColumns {
		return "", false
	}
	header := records[0]
	lines := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		parts := make([]string, 0, len(header))
		for i, col := range header {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			parts = append(parts, col+": "+v)
		}
		lines = append(lines, strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n"), true
}
