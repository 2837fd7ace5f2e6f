package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"hydra/internal/domain"
	"hydra/internal/infra/tracer"
	"hydra/internal/usecase/extract"
)

// minRefinedLength is the shortest model rewrite accepted; anything shorter
// is treated as a degenerate rewrite.
const minRefinedLength = 50

// ellipsis marks a truncated response.
const ellipsis = "..."

// reasoningEndMarkers close a model's reasoning block.
var reasoningEndMarkers = []string{"</think>", "</thinking>", "</reasoning>"}

// reasoningPrefixes open lines that narrate reasoning rather than answer.
var reasoningPrefixes = []string{
	"okay,", "ok,", "alright", "hmm", "wait,", "let me", "let's", "i need to",
	"i should", "i will", "i'll", "i think", "first,", "now,", "so the user",
	"the user", "thinking", "reasoning:", "my task", "looking at",
}

// maxReasoningLine is the longest paragraph still dropped for a reasoning prefix.
const maxReasoningLine = 300

var (
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	spacesRe     = regexp.MustCompile(`[ \t]{2,}`)
	emptyFenceRe = regexp.MustCompile("(?m)^```[A-Za-z]*\\s*```\\s*$")
)

// RefinerDeps holds injected dependencies for the Refiner.
type RefinerDeps struct {
	Chat     domain.ChatClient
	Endpoint string // core pool
	// MaxTokens bounds the rewrite call.
	MaxTokens int
	// Enabled selects the model rewrite; when false only Clean runs.
	Enabled bool
	Logger  *slog.Logger
}

// Refiner turns a sub-agent transcript into a bounded final answer.
type Refiner struct {
	deps RefinerDeps
}

// NewRefiner creates a Refiner.
func NewRefiner(deps RefinerDeps) *Refiner {
	if deps.MaxTokens <= 0 {
		deps.MaxTokens = 1024
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Refiner{deps: deps}
}

// Refine rewrites text as the answer to query in at most maxLength runes
// (plus the ellipsis when truncated). It never fails: a failed or
// implausibly short rewrite falls back to Clean.
func (r *Refiner) Refine(ctx context.Context, text, query string, maxLength int) string {
	ctx, span := tracer.StartSpan(ctx, "refine.run")
	defer span.End()

	if r.deps.Enabled && r.deps.Chat != nil {
		out, err := r.rewrite(ctx, text, query, maxLength)
		if err == nil {
			span.SetAttributes(tracer.StringAttr("refine.path", "model"))
			tracer.SetOK(span)
			return Truncate(out, maxLength)
		}
		r.deps.Logger.Warn("refinement fell back to cleanup", "error", err)
	}

	span.SetAttributes(tracer.StringAttr("refine.path", "cleanup"))
	cleaned := Clean(text)
	if cleaned == "" {
		cleaned = strings.TrimSpace(text)
	}
	tracer.SetOK(span)
	return Truncate(cleaned, maxLength)
}

func (r *Refiner) rewrite(ctx context.Context, text, query string, maxLength int) (string, error) {
	limit := maxLength
	if limit <= 0 {
		limit = len(text)
	}
	prompt := fmt.Sprintf("Question: %s\n\nDraft answer:\n%s", query, text)
	out, err := domain.ChatText(ctx, r.deps.Chat, r.deps.Endpoint,
		fmt.Sprintf(refineSystemPrompt, limit), prompt, r.deps.MaxTokens)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrRefinement, err)
	}
	out = strings.TrimSpace(stripReasoning(out))
	if n := len([]rune(out)); n < minRefinedLength {
		return "", fmt.Errorf("%w: rewrite too short (%d chars)", domain.ErrRefinement, n)
	}
	return out, nil
}

// Clean removes reasoning and tool-call residue from text without a model.
func Clean(text string) string {
	s := stripReasoning(text)
	s = stripToolJSON(s)
	s = emptyFenceRe.ReplaceAllString(s, "")
	s = dropReasoningParagraphs(s)
	s = spacesRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// stripReasoning drops everything up to and including the last
// end-of-reasoning marker.
func stripReasoning(s string) string {
	cut := -1
	for _, m := range reasoningEndMarkers {
		if i := strings.LastIndex(s, m); i >= 0 && i+len(m) > cut {
			cut = i + len(m)
		}
	}
	if cut < 0 {
		return s
	}
	return s[cut:]
}

func stripToolJSON(s string) string {
	spans := extract.ObjectSpans(s, "tool_id", "tool_call")
	if len(spans) == 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	prev := 0
	for _, sp := range spans {
		sb.WriteString(s[prev:sp.Start])
		prev = sp.End
	}
	sb.WriteString(s[prev:])
	return sb.String()
}

func dropReasoningParagraphs(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && len(trimmed) <= maxReasoningLine && hasReasoningPrefix(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func hasReasoningPrefix(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range reasoningPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Truncate bounds s to maxLength runes. Over-long text is cut at the last
// space within the final 20% of the budget, or hard-cut when there is none,
// and the ellipsis is appended. maxLength <= 0 disables the bound.
func Truncate(s string, maxLength int) string {
	if maxLength <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLength {
		return s
	}
	floor := maxLength - maxLength/5
	cut := maxLength
	for i := maxLength; i > floor; i-- {
		if unicode.IsSpace(r[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(r[:cut]), unicode.IsSpace) + ellipsis
}
