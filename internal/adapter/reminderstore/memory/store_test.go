package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
)

func TestStore_AddListDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	require.NoError(t, s.Add(ctx, domain.Reminder{ID: "1", ChatID: 1, Time: now, Type: domain.ReminderOneTime}))
	require.NoError(t, s.Add(ctx, domain.Reminder{ID: "2", ChatID: 2, Time: now, Type: domain.ReminderDaily}))

	got, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// List returns a copy
	got[0].Note = "mutated"
	again, _ := s.List(ctx)
	assert.Empty(t, again[0].Note)

	require.NoError(t, s.Delete(ctx, "1"))
	require.NoError(t, s.Delete(ctx, "missing"))
	got, _ = s.List(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestStore_RejectsInvalid(t *testing.T) {
	err := New().Add(context.Background(), domain.Reminder{ID: "1", Type: "NOPE"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
