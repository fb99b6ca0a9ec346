// Package app wires configuration, adapters and services into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/ai/real"
	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/reminderstore/gas"
	memstore "github.com/fairyhunter13/ai-relay-bot/internal/adapter/reminderstore/memory"
	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/reminderstore/postgres"
	"github.com/fairyhunter13/ai-relay-bot/internal/adapter/telegram"
	"github.com/fairyhunter13/ai-relay-bot/internal/config"
	"github.com/fairyhunter13/ai-relay-bot/internal/domain"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/lifecycle"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/memory"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-relay-bot/internal/service/reminder"
	"github.com/fairyhunter13/ai-relay-bot/internal/usecase"
)

// ReminderBackend is the selected reminder store plus what readiness and
// shutdown need from it.
type ReminderBackend struct {
	Store domain.ReminderStore
	Probe Pinger
	DB    Pinger
	Close func(ctx context.Context) error
}

// OpenReminderStore builds the store named by cfg.ReminderStore.
func OpenReminderStore(ctx context.Context, cfg config.Config) (ReminderBackend, error) {
	switch cfg.ReminderStore {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return ReminderBackend{}, fmt.Errorf("op=app.OpenReminderStore: %w", err)
		}
		st := postgres.New(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return ReminderBackend{}, fmt.Errorf("op=app.OpenReminderStore: %w", err)
		}
		return ReminderBackend{Store: st, DB: pool, Close: closePool(pool)}, nil
	case "memory":
		return ReminderBackend{Store: memstore.New(), Close: noopClose}, nil
	case "gas", "":
		st := gas.New(cfg.GoogleAppScriptURL, cfg.RequestTimeout)
		return ReminderBackend{Store: st, Probe: st, Close: st.Flush}, nil
	default:
		return ReminderBackend{}, fmt.Errorf("op=app.OpenReminderStore: %w: store %q", domain.ErrInvalidArgument, cfg.ReminderStore)
	}
}

func closePool(pool *pgxpool.Pool) func(context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}

func noopClose(context.Context) error { return nil }

// App is the assembled bot.
type App struct {
	Cfg       config.Config
	Telegram  *telegram.Client
	Bot       *usecase.Bot
	Poller    *telegram.Poller
	Scheduler *reminder.Scheduler
	Reminders *reminder.Service
	Memory    *memory.Store
	Limiter   ratelimiter.Limiter
	Chains    Chains
	Handler   http.Handler
	Pinger    *SelfPinger

	backend      ReminderBackend
	redis        *redis.Client
	localLimiter *ratelimiter.MemoryLimiter
}

// New assembles every component from cfg. Nothing runs until Run.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	layout, err := config.LoadProviderLayout(cfg.ProvidersFile)
	if err != nil {
		return nil, err
	}
	backend, err := OpenReminderStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Cfg: cfg, backend: backend}
	a.Telegram = telegram.NewClient(cfg.TelegramBaseURL, cfg.TelegramToken, telegram.WithChunkSize(cfg.MessageChunkSize))
	a.Memory = memory.NewStore(memory.WithLimits(cfg.MemoryMaxTurns, cfg.MemoryMaxWords))
	if err := a.buildLimiter(cfg); err != nil {
		_ = backend.Close(ctx)
		return nil, err
	}

	ids := reminder.NewIDGenerator(nil)
	a.Reminders = reminder.NewService(backend.Store, ids, cfg.Location(), nil)
	a.Scheduler = reminder.NewScheduler(backend.Store, a.Telegram, ids,
		reminder.WithReinsertDelay(cfg.GetReminderReinsertDelay()))

	a.Chains = BuildChains(cfg, layout, BuildPools(cfg))
	a.Bot = usecase.NewBot(usecase.Deps{
		Messenger: a.Telegram,
		Lifecycle: lifecycle.NewTracker(),
		Memory:    a.Memory,
		Limiter:   a.Limiter,
		Reminders: a.Reminders,
		Chat:      a.Chains.Chat,
		Vision:    a.Chains.Vision,
		Image:     a.Chains.Image,
		Voice:     a.Chains.Voice,
		Search:    a.Chains.Search,
	}, botSettings(cfg))
	a.Poller = &telegram.Poller{
		Client:        a.Telegram,
		Handler:       a.Bot.Admit,
		Timeout:       cfg.TelegramPollTimeout,
		MaxConcurrent: cfg.MaxConcurrentJobs,
	}

	srv := httpserver.NewServer(BuildReadinessChecks(backend.Probe, backend.DB, RedisReadiness(a.redis))...)
	a.Handler = BuildRouter(cfg, srv)
	if cfg.SelfPingURL != "" {
		a.Pinger = &SelfPinger{URL: cfg.SelfPingURL, Interval: cfg.SelfPingInterval, Client: real.NewHTTPClient(cfg.RequestTimeout)}
	}
	return a, nil
}

// botSettings maps config onto the bot. Documents are trimmed with the
// tokenizer of the first chat provider.
func botSettings(cfg config.Config) usecase.Settings {
	return usecase.Settings{
		CancelToken:    cfg.CancelToken,
		MaxFileBytes:   cfg.MaxFileBytes(),
		DocTokenBudget: cfg.DocTokenBudget,
		DocModel:       cfg.GroqModel,
		ChunkSize:      cfg.MessageChunkSize,
	}
}

func (a *App) buildLimiter(cfg config.Config) error {
	rules := make(map[string]ratelimiter.Rule)
	for feature, l := range cfg.FeatureLimits() {
		rules[feature] = ratelimiter.Rule{Limit: l.Limit, Window: l.Window}
	}
	if cfg.RedisURL == "" {
		a.localLimiter = ratelimiter.NewMemoryLimiter(rules)
		a.Limiter = a.localLimiter
		return nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("op=app.buildLimiter: %w", err)
	}
	a.redis = redis.NewClient(opt)
	a.Limiter = ratelimiter.NewRedisLimiter(a.redis, rules)
	return nil
}

// Run starts the background loops and long-polls Telegram until ctx is
// cancelled, then waits for the loops to stop.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Info("background loop started", slog.String("loop", name))
			fn(ctx)
		}()
	}
	spawn("memory_sweep", func(ctx context.Context) {
		a.Memory.Run(ctx, a.Cfg.MemorySweepInterval, a.Cfg.MemoryTTL)
	})
	if a.localLimiter != nil {
		spawn("limiter_sweep", func(ctx context.Context) {
			a.localLimiter.Run(ctx, a.Cfg.RateLimitSweepInterval)
		})
	}
	spawn("reminders", func(ctx context.Context) {
		a.Scheduler.Run(ctx, a.Cfg.ReminderTick)
	})
	if a.Pinger != nil {
		spawn("self_ping", a.Pinger.Run)
	}

	err := a.Poller.Run(ctx)
	wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close flushes pending store writes and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.backend.Close != nil {
		errs = append(errs, a.backend.Close(ctx))
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
