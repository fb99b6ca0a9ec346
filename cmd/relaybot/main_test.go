package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRemindersList_MemoryStore(t *testing.T) {
	t.Setenv("REMINDER_STORE", "memory")
	t.Setenv("APP_ENV", "test")
	out, err := run(t, "reminders", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "NOTE")
}

func TestServe_RequiresToken(t *testing.T) {
	t.Setenv("REMINDER_STORE", "memory")
	t.Setenv("TELEGRAM_TOKEN", "")
	_, err := run(t, "serve")
	assert.ErrorContains(t, err, "TelegramToken")
}

func TestRemindersTick_RequiresToken(t *testing.T) {
	t.Setenv("REMINDER_STORE", "memory")
	t.Setenv("TELEGRAM_TOKEN", "")
	_, err := run(t, "reminders", "tick")
	assert.Error(t, err)
}
