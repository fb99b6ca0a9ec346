package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	t.Parallel()

	counter := NewCounter()

	tests := []struct {
		name     string
		text     string
		model    string
		minCount int
		maxCount int
	}{
		{name: "simple text", text: "Hello, world!", model: "llama-3.3-70b-versatile", minCount: 3, maxCount: 5},
		{name: "gemini model", text: "The quick brown fox jumps over the lazy dog.", model: "gemini-2.0-flash", minCount: 8, maxCount: 12},
		{name: "empty", text: "", model: "gpt-4", minCount: 0, maxCount: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n, err := counter.CountTokens(tt.text, tt.model)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, tt.minCount)
			assert.LessOrEqual(t, n, tt.maxCount)
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("token ", 500)
	out, cut := NewCounter().Truncate(text, "gemini", 50)
	assert.True(t, cut)
	n, err := DefaultCounter.CountTokens(out, "gemini")
	require.NoError(t, err)
	assert.LessOrEqual(t, n, 50)
	assert.True(t, strings.HasPrefix(text, out))

	same, cut := TruncateDefault("short", "gemini", 50)
	assert.False(t, cut)
	assert.Equal(t, "short", same)

	same, cut = TruncateDefault(text, "gemini", 0)
	assert.False(t, cut)
	assert.Equal(t, text, same)
}

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "gpt-4", normalizeModelName("meta-llama/Llama-3.1-8B"))
	assert.Equal(t, "gpt-3.5-turbo", normalizeModelName("openai/gpt-3.5-turbo"))
	assert.Equal(t, "gpt-4", normalizeModelName("gemini-2.0-flash"))
}
