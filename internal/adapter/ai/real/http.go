// Package real implements the upstream AI, media and search providers the
// relay talks to over HTTP.
package real

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/observability"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

const snippetBytes = 512

// NewHTTPClient returns a traced client with the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// readSnippet reads up to n bytes from r for logging.
func readSnippet(r io.Reader, n int) string {
	if r == nil || n <= 0 {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, int64(n)))
	return strings.TrimSpace(string(b))
}

// classifyTransport tags a transport-level failure.
func classifyTransport(provider string, err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return domain.NewProviderError(provider, domain.CategoryTimeout, fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err))
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.NewProviderError(provider, domain.CategoryInternal, err)
}

// send performs req and returns the body of a 2xx response, capped at limit
// bytes. Non-2xx responses become a categorised domain.ProviderError.
func send(ctx context.Context, hc *http.Client, provider string, req *http.Request, limit int64) ([]byte, http.Header, error) {
	lg := observability.LoggerFromContext(ctx)
	resp, err := hc.Do(req)
	if err != nil {
		lg.Warn("provider request failed",
			slog.String("provider", provider),
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
			slog.Any("error", err))
		return nil, nil, classifyTransport(provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := readSnippet(resp.Body, snippetBytes)
		lg.Warn("provider non-2xx",
			slog.String("provider", provider),
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", observability.RequestIDFromContext(ctx)),
			slog.String("body", snippet))
		return nil, nil, domain.StatusError(provider, resp.StatusCode, snippet)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, nil, classifyTransport(provider, err)
	}
	return body, resp.Header, nil
}

// sendJSON performs req and decodes a JSON response into out.
func sendJSON(ctx context.Context, hc *http.Client, provider string, req *http.Request, out any) error {
	body, _, err := send(ctx, hc, provider, req, 16<<20)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		observability.LoggerFromContext(ctx).Error("provider decode error",
			slog.String("provider", provider),
			slog.String("body", truncate(string(body), snippetBytes)),
			slog.Any("error", err))
		return domain.NewProviderError(provider, domain.CategoryContent, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func emptyAnswer(provider string) error {
	return domain.NewProviderError(provider, domain.CategoryContent, domain.ErrEmptyResponse)
}
