// Package extract pulls a single JSON payload out of free-form model output.
//
// Model replies routinely wrap the payload in reasoning text, markdown fences
// or echoes of the prompt. Payload applies a fixed sequence of strategies and
// returns the first candidate that parses; it never calls a model and never
// panics on malformed input.
package extract

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// markers are tried in order when no brace strategy succeeds on the whole text.
var markers = []string{"</think>", "</reasoning>", "```json", "```", "JSON:", "Response:"}

var fenceRe = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\r?\n?(.*?)```")

// Extract returns the payload carrying key, or raw unchanged when none is found.
func Extract(raw, key string) string {
	if s, ok := Payload(raw, key); ok {
		return s
	}
	return raw
}

// Payload returns the JSON object in raw that most likely carries key.
// Strategies, first success wins:
//
//  1. narrow to a fenced block whose body is JSON containing key, or strip a
//     leading/trailing fence
//  2. longest flat {...} span containing key that parses
//  3. longest balanced object containing key at its top level
//  4. balanced span starting at the last '{'
//  5. the last '{' paired with the last '}'
//  6. strategies 4-5 (then the first '{') on the text after each marker
//
// Strategies 4-6 do not require key; callers must check the decoded object.
func Payload(raw, key string) (string, bool) {
	text := stripFence(raw, key)

	if s, ok := longestFlat(text, key); ok {
		return s, true
	}
	if s, ok := ObjectWithKey(text, key); ok {
		return s, true
	}
	if s, ok := fromLastBrace(text); ok {
		return s, true
	}
	for _, m := range markers {
		i := strings.LastIndex(text, m)
		if i < 0 {
			continue
		}
		rest := text[i+len(m):]
		if s, ok := fromLastBrace(rest); ok {
			return s, true
		}
		if s, ok := fromFirstBrace(rest); ok {
			return s, true
		}
	}
	return "", false
}

// stripFence narrows text to the body of a fenced block when that body is a
// JSON value mentioning key. Otherwise a single leading and trailing fence
// line is removed.
func stripFence(text, key string) string {
	quoted := `"` + key + `"`
	best := ""
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if strings.Contains(body, quoted) && json.Valid([]byte(body)) && len(body) > len(best) {
			best = body
		}
	}
	if best != "" {
		return best
	}

	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func longestFlat(text, key string) (string, bool) {
	re, err := regexp.Compile(`\{[^{}]*"` + regexp.QuoteMeta(key) + `"[^{}]*\}`)
	if err != nil {
		return "", false
	}
	best := ""
	for _, c := range re.FindAllString(text, -1) {
		if len(c) > len(best) && isObject(c) {
			best = c
		}
	}
	return best, best != ""
}

// Span is the byte range [Start, End) of a balanced object in a text.
type Span struct {
	Start, End int
}

// ObjectWithKey returns the longest balanced JSON object in text whose top
// level contains key.
func ObjectWithKey(text, key string) (string, bool) {
	cands := keyedSpans(text, []string{key})
	sort.Slice(cands, func(i, j int) bool {
		li, lj := cands[i].End-cands[i].Start, cands[j].End-cands[j].Start
		if li != lj {
			return li > lj
		}
		return cands[i].Start < cands[j].Start
	})
	for _, sp := range cands {
		if c := text[sp.Start:sp.End]; hasTopLevelKey(c, []string{key}) {
			return c, true
		}
	}
	return "", false
}

// ObjectSpans returns the outermost JSON objects in text whose top level
// contains any of keys, in order of appearance. Spans never overlap.
func ObjectSpans(text string, keys ...string) []Span {
	cands := keyedSpans(text, keys)
	sort.Slice(cands, func(i, j int) bool { return cands[i].Start < cands[j].Start })

	var out []Span
	covered := 0
	for _, sp := range cands {
		if sp.Start < covered {
			continue
		}
		if hasTopLevelKey(text[sp.Start:sp.End], keys) {
			out = append(out, sp)
			covered = sp.End
		}
	}
	return out
}

// keyedSpans scans text once, keeping a stack of open braces, and returns
// every balanced span whose own level holds a string equal to one of keys.
// Quotes outside any brace are prose. A raw newline ends a string, since
// JSON strings cannot contain one.
func keyedSpans(text string, keys []string) []Span {
	type frame struct {
		start int
		keyed bool
	}
	var (
		stack    []frame
		out      []Span
		inString bool
		escaped  bool
		strStart int
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '\n':
				inString = false
			case c == '"':
				inString = false
				if len(stack) > 0 && isKey(text[strStart:i], keys) {
					stack[len(stack)-1].keyed = true
				}
			}
			continue
		}
		switch c {
		case '"':
			if len(stack) > 0 {
				inString = true
				strStart = i + 1
			}
		case '{':
			stack = append(stack, frame{start: i})
		case '}':
			if len(stack) == 0 {
				continue
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if f.keyed {
				out = append(out, Span{Start: f.start, End: i + 1})
			}
		}
	}
	return out
}

func isKey(s string, keys []string) bool {
	for _, k := range keys {
		if s == k {
			return true
		}
	}
	return false
}

func hasTopLevelKey(c string, keys []string) bool {
	var obj map[string]json.RawMessage
	if json.Unmarshal([]byte(c), &obj) != nil {
		return false
	}
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func fromLastBrace(text string) (string, bool) {
	start := strings.LastIndex(text, "{")
	if start < 0 {
		return "", false
	}
	if end, ok := matchBrace(text, start); ok {
		if c := text[start : end+1]; isObject(c) {
			return c, true
		}
	}
	if end := strings.LastIndex(text, "}"); end > start {
		if c := text[start : end+1]; isObject(c) {
			return c, true
		}
	}
	return "", false
}

func fromFirstBrace(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	if end, ok := matchBrace(text, start); ok {
		if c := text[start : end+1]; isObject(c) {
			return c, true
		}
	}
	return "", false
}

// matchBrace returns the index of the '}' closing the '{' at start. Braces
// inside JSON strings, including escaped quotes, are not structural.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func isObject(s string) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal([]byte(s), &obj) == nil
}
