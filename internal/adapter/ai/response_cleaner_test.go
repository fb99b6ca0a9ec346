package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseCleaner_CleanAnswer(t *testing.T) {
	t.Parallel()

	cleaner := NewResponseCleaner()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "  hello  ", expected: "hello"},
		{name: "think_block", input: "<think>let me see\nhmm</think>\nThe answer is 4.", expected: "The answer is 4."},
		{name: "think_block_mixed_case", input: "<THINK>x</THINK>ok", expected: "ok"},
		{name: "two_blocks", input: "<think>a</think>one <think>b</think>two", expected: "one two"},
		{name: "unterminated_think", input: "<think>reasoning that never ends", expected: ""},
		{name: "fenced_markdown", input: "```markdown\n**bold** text\n```", expected: "**bold** text"},
		{name: "code_fence_kept", input: "```go\nfmt.Println()\n```", expected: "```go\nfmt.Println()\n```"},
		{name: "blank_runs", input: "a\r\n\r\n\r\n\r\nb", expected: "a\n\nb"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, cleaner.CleanAnswer(tt.input))
		})
	}
}
