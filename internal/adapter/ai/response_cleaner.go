// Package ai holds provider-neutral post-processing for model answers and
// the token budget used for attached documents.
package ai

import (
	"regexp"
	"strings"
)

var (
	thinkBlock   = regexp.MustCompile(`(?is)<think>.*?</think>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	wrappedFence = regexp.MustCompile("(?s)^```(?:markdown|md)?\\s*\n(.*)\n```$")
)

// ResponseCleaner tidies raw model output before it reaches the user.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// CleanAnswer removes reasoning blocks, unwraps an answer that is entirely a
// markdown fence and collapses runs of blank lines.
func (rc *ResponseCleaner) CleanAnswer(response string) string {
	response = strings.ReplaceAll(response, "\r\n", "\n")
	response = rc.stripThinking(response)
	response = strings.TrimSpace(response)
	if m := wrappedFence.FindStringSubmatch(response); m != nil {
		response = strings.TrimSpace(m[1])
	}
	return blankRuns.ReplaceAllString(response, "\n\n")
}

// stripThinking drops <think> blocks. An unterminated block that opens the
// answer is reasoning cut off by the token limit and is dropped entirely.
func (rc *ResponseCleaner) stripThinking(response string) string {
	response = thinkBlock.ReplaceAllString(response, "")
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(strings.ToLower(trimmed), "<think>") {
		return ""
	}
	return response
}
