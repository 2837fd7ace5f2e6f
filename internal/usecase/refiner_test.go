package usecase

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longAnswer = "Q1 revenue was $1.2M, up 8% on the previous quarter, driven by subscriptions."

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"fits", "short", 10, "short"},
		{"exact", "12345", 5, "12345"},
		{"unbounded", "anything at all", 0, "anything at all"},
		{"negative unbounded", "anything", -1, "anything"},
		{"word boundary", "hello world foo", 12, "hello world..."},
		{"hard cut", "abcdefghij", 5, "abcde..."},
		{"space too early", "ab cdefghijklmnop", 10, "ab cdefghi..."},
		{"multibyte", "héllo wörld ünïcode", 12, "héllo wörld..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.max))
		})
	}
}

func TestTruncateBound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	alphabet := []rune("ab cd\té世\n")
	for i := 0; i < 500; i++ {
		n := rng.Intn(200)
		r := make([]rune, n)
		for j := range r {
			r[j] = alphabet[rng.Intn(len(alphabet))]
		}
		max := 1 + rng.Intn(100)
		got := Truncate(string(r), max)
		require.True(t, utf8.ValidString(got))
		require.LessOrEqual(t, utf8.RuneCountInString(got), max+len(ellipsis))
		if n <= max {
			require.Equal(t, string(r), got)
		}
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"reasoning block", "<think>The user wants revenue.</think>\nRevenue was $1.2M.", "Revenue was $1.2M."},
		{"last marker wins", "a</thinking>b</think>  Answer.", "Answer."},
		{"tool json", "Let me check the weather.\n{\"tool_id\": 1, \"city\": \"Paris\"}\nIt is sunny in Paris.", "It is sunny in Paris."},
		{"wrapper json", "{\"tool_call\": {\"name\": \"Weather\", \"arguments\": {}}}\nSunny.", "Sunny."},
		{"reasoning lines", "Okay, so the question is about Q1.\nHmm.\nQ1 revenue was $1.2M.", "Q1 revenue was $1.2M."},
		{"blank lines", "First fact.\n\n\n\nSecond   fact.", "First fact.\n\nSecond fact."},
		{"several tool objects", "{\"tool_id\": 1}\nA.\n{\"tool_call\": {\"name\": \"x\", \"arguments\": {\"tool_id\": 2}}}\nB.", "A.\n\nB."},
		{"plain", "Nothing to clean.", "Nothing to clean."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestCleanLargeUnbalancedTranscript(t *testing.T) {
	inputs := map[string]string{
		"quoted braces": strings.Repeat(`"{"`, 60000),
		"open braces":   strings.Repeat("{", 200000),
		"open objects":  strings.Repeat(`{"tool_id": 1, "body": `, 20000),
	}
	for name, body := range inputs {
		t.Run(name, func(t *testing.T) {
			transcript := "[Iteration 1] Sub-agent response:\n{\"tool_id\": 1}\n\nTool execution result: " +
				body + "\n\nFinal response:\nDone."

			start := time.Now()
			got := Clean(transcript)
			assert.Less(t, time.Since(start), 2*time.Second)
			assert.True(t, strings.HasSuffix(got, "Done."))
			assert.NotContains(t, got, "response:\n{\"tool_id\": 1}")
		})
	}
}

func TestRefineModelPath(t *testing.T) {
	chat := &mockChat{replies: []string{"<think>trim it</think>\n" + longAnswer}}
	r := NewRefiner(RefinerDeps{Chat: chat, Endpoint: "core", Enabled: true})

	got := r.Refine(context.Background(), "[Iteration 1] ... raw transcript", "What was Q1 revenue?", 500)
	assert.Equal(t, longAnswer, got)

	reqs := chat.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "core", reqs[0].Endpoint)
	assert.Contains(t, system(reqs[0]), "in at most 500 characters")
	assert.Contains(t, user(reqs[0]), "Question: What was Q1 revenue?")
	assert.Contains(t, user(reqs[0]), "[Iteration 1] ... raw transcript")
}

func TestRefineFallback(t *testing.T) {
	raw := "<think>reasoning</think>\nLet me check.\n{\"tool_id\": 1}\n" + longAnswer
	tests := []struct {
		name string
		chat *mockChat
	}{
		{"chat error", &mockChat{errs: map[int]error{0: errors.New("boom")}}},
		{"short rewrite", &mockChat{replies: []string{"OK."}}},
		{"empty rewrite", &mockChat{replies: []string{"<think>nothing</think>"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRefiner(RefinerDeps{Chat: tt.chat, Endpoint: "core", Enabled: true})
			assert.Equal(t, longAnswer, r.Refine(context.Background(), raw, "q", 500))
			assert.Len(t, tt.chat.requests(), 1)
		})
	}
}

func TestRefineDisabled(t *testing.T) {
	chat := &mockChat{}
	r := NewRefiner(RefinerDeps{Chat: chat, Endpoint: "core", Enabled: false})
	assert.Equal(t, "Answer.", r.Refine(context.Background(), "<think>x</think>Answer.", "q", 100))
	assert.Empty(t, chat.requests())
}

func TestRefineKeepsOriginalWhenCleanEmpties(t *testing.T) {
	r := NewRefiner(RefinerDeps{})
	assert.Equal(t, "Let me think.", r.Refine(context.Background(), "Let me think.", "q", 100))
}

func TestRefineLengthBound(t *testing.T) {
	text := strings.Repeat("word ", 400)
	for _, enabled := range []bool{true, false} {
		chat := &mockChat{replies: []string{text}}
		r := NewRefiner(RefinerDeps{Chat: chat, Enabled: enabled})
		for _, max := range []int{1, 20, 99, 1000} {
			got := r.Refine(context.Background(), text, "q", max)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), max+len(ellipsis))
		}
	}
}
