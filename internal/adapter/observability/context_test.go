package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextWithLoggerAndLoggerFromContext(t *testing.T) {
	lg := slog.Default().With(slog.String("k", "v"))
	base := context.Background()

	ctx := ContextWithLogger(base, lg)
	assert.NotEqual(t, base, ctx)
	assert.Same(t, lg, LoggerFromContext(ctx))

	assert.Equal(t, base, ContextWithLogger(base, nil), "nil logger leaves context unchanged")
	assert.NotNil(t, LoggerFromContext(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.NotNil(t, LoggerFromContext(nil))
}

func TestContextWithRequestID(t *testing.T) {
	base := context.Background()
	ctx := ContextWithRequestID(base, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(base))
	assert.Equal(t, base, ContextWithRequestID(base, ""))
}
