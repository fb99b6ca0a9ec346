package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrNotConfigured      = errors.New("not configured")
	ErrPoolExhausted      = errors.New("credential pool exhausted")
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrTooLarge           = errors.New("payload too large")
	ErrEmptyResponse      = errors.New("empty response")
	ErrUnsupportedMedia   = errors.New("unsupported media")
	ErrUpstreamTimeout    = errors.New("upstream timeout")
	ErrUpstreamRateLimit  = errors.New("upstream rate limit")
)

// Category classifies a failure for retry and rotation decisions.
type Category int

const (
	CategoryInternal Category = iota
	// CategoryTransientCapacity covers quota, rate limit and overload responses.
	// It is the only category that rotates credentials.
	CategoryTransientCapacity
	CategoryConfig
	CategoryContent
	CategoryTimeout
)

func (c Category) String() string {
	switch c {
	case CategoryTransientCapacity:
		return "transient_capacity"
	case CategoryConfig:
		return "config"
	case CategoryContent:
		return "content"
	case CategoryTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// ProviderError tags an upstream failure with the provider and its category.
type ProviderError struct {
	Provider   string
	Category   Category
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Category, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a ProviderError, deriving the category from err when
// cat is CategoryInternal.
func NewProviderError(provider string, cat Category, err error) *ProviderError {
	if cat == CategoryInternal {
		cat = CategoryOf(err)
	}
	return &ProviderError{Provider: provider, Category: cat, Err: err}
}

// CategoryFromStatus maps an HTTP status code to a category.
func CategoryFromStatus(status int) Category {
	switch {
	case status == 429 || status == 503 || status == 529:
		return CategoryTransientCapacity
	case status == 401 || status == 403:
		return CategoryConfig
	case status == 408 || status == 504:
		return CategoryTimeout
	default:
		return CategoryInternal
	}
}

// StatusError creates a ProviderError from a non-2xx HTTP response.
func StatusError(provider string, status int, body string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Category:   CategoryFromStatus(status),
		StatusCode: status,
		Err:        fmt.Errorf("status %d: %s", status, body),
	}
}

var (
	transientMarkers = []string{"429", "quota", "rate limit", "too many requests", "resource_exhausted", "overloaded", "503", "unavailable"}
	timeoutMarkers   = []string{"timeout", "deadline exceeded"}
	configMarkers    = []string{"api key", "unauthorized", "forbidden", "401", "403"}
)

// CategoryOf reports the category of err. Typed errors win; untyped errors fall
// back to message markers.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryInternal
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	switch {
	case errors.Is(err, ErrUpstreamRateLimit), errors.Is(err, ErrPoolExhausted):
		return CategoryTransientCapacity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrUpstreamTimeout):
		return CategoryTimeout
	case errors.Is(err, ErrNotConfigured):
		return CategoryConfig
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, ErrUnsupportedMedia), errors.Is(err, ErrTooLarge):
		return CategoryContent
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return CategoryTransientCapacity
		}
	}
	for _, m := range timeoutMarkers {
		if strings.Contains(msg, m) {
			return CategoryTimeout
		}
	}
	for _, m := range configMarkers {
		if strings.Contains(msg, m) {
			return CategoryConfig
		}
	}
	return CategoryInternal
}

// IsTransient reports whether err should rotate to the next credential.
func IsTransient(err error) bool { return CategoryOf(err) == CategoryTransientCapacity }
