package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/reminderstore/gas"
	"github.com/fairyhunter13/ai-relay-bot/internal/config"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/ratelimiter"
)

// fakeTelegram serves one text update, then empty long polls, and records sent messages.
type fakeTelegram struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeTelegram) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if r.URL.Query().Get("offset") == "" {
				_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"message_id":1,"chat":{"id":42},"text":"hello bot"}}]}`))
				return
			}
			select {
			case <-r.Context().Done():
			case <-time.After(20 * time.Millisecond):
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body struct {
				Text string `json:"text"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.mu.Lock()
			f.sent = append(f.sent, body.Text)
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}
}

func (f *fakeTelegram) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func testConfig(tg, groq string) config.Config {
	return config.Config{
		AppEnv:                   "test",
		TelegramToken:            "TOKEN",
		TelegramBaseURL:          tg,
		TelegramPollTimeout:      time.Second,
		MaxConcurrentJobs:        4,
		GroqAPIKeys:              "gk",
		GroqBaseURL:              groq,
		GroqModel:                "m",
		ReminderStore:            "memory",
		RequestTimeout:           2 * time.Second,
		MediaTimeout:             2 * time.Second,
		MaxFileMB:                1,
		MessageChunkSize:         4000,
		CancelToken:              "//",
		Timezone:                 "UTC",
		DocTokenBudget:           100,
		MinMediaBytes:            10,
		MemoryMaxTurns:           6,
		MemoryMaxWords:           150,
		MemoryTTL:                time.Minute,
		MemorySweepInterval:      time.Minute,
		RateLimitWindow:          time.Hour,
		RateLimitImage:           1,
		RateLimitSweepInterval:   time.Minute,
		ReminderTick:             time.Minute,
		KeyPoolSingleKeyAttempts: 1,
		BreakerThreshold:         3,
		BreakerRecovery:          time.Second,
	}
}

func TestOpenReminderStore(t *testing.T) {
	ctx := context.Background()

	b, err := OpenReminderStore(ctx, config.Config{ReminderStore: "memory"})
	require.NoError(t, err)
	assert.Nil(t, b.Probe)
	assert.NoError(t, b.Close(ctx))

	b, err = OpenReminderStore(ctx, config.Config{ReminderStore: "gas", GoogleAppScriptURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.IsType(t, &gas.Store{}, b.Store)
	assert.NotNil(t, b.Probe)
	assert.NoError(t, b.Close(ctx))

	_, err = OpenReminderStore(ctx, config.Config{ReminderStore: "sheets"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestNew_SelectsLimiterBackend(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", "http://127.0.0.1:1")
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &ratelimiter.MemoryLimiter{}, a.Limiter)
	assert.Nil(t, a.Pinger)
	require.NoError(t, a.Close(context.Background()))

	mr := miniredis.RunT(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.SelfPingURL = "http://127.0.0.1:1"
	a, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &ratelimiter.RedisLimiter{}, a.Limiter)
	assert.NotNil(t, a.Pinger)

	d, err := a.Limiter.CheckAndIncrement(context.Background(), 42, config.FeatureImage)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = a.Limiter.CheckAndIncrement(context.Background(), 42, config.FeatureImage)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.NoError(t, a.Close(context.Background()))
}

func TestBotSettings_FromConfig(t *testing.T) {
	cfg := testConfig("http://tg.invalid", "http://groq.invalid")
	cfg.GroqModel = "llama-3.1-8b-instant"
	got := botSettings(cfg)
	assert.Equal(t, "llama-3.1-8b-instant", got.DocModel)
	assert.Equal(t, cfg.DocTokenBudget, got.DocTokenBudget)
	assert.Equal(t, cfg.CancelToken, got.CancelToken)
	assert.Equal(t, cfg.MaxFileBytes(), got.MaxFileBytes)
	assert.Equal(t, cfg.MessageChunkSize, got.ChunkSize)
}

func TestNew_BadProvidersFile(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", "http://127.0.0.1:1")
	cfg.ProvidersFile = "does-not-exist.yaml"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestApp_RunRelaysChatEndToEnd(t *testing.T) {
	tg := &fakeTelegram{}
	tgSrv := httptest.NewServer(tg.handler(t))
	defer tgSrv.Close()
	groq := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gk", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer groq.Close()

	a, err := New(context.Background(), testConfig(tgSrv.URL, groq.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.Eventually(t, func() bool {
		for _, m := range tg.messages() {
			if m == "hi there" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(a.Memory.Turns(42)) == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.NoError(t, a.Close(context.Background()))
}
