// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // reminders need the zone database on minimal images

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv                string        `env:"APP_ENV" envDefault:"dev"`
	Port                  int           `env:"PORT" envDefault:"3000" validate:"gt=0,lt=65536"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:""`
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	OTLPEndpoint          string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName       string        `env:"OTEL_SERVICE_NAME" envDefault:"ai-relay-bot"`

	// Telegram transport
	TelegramToken       string        `env:"TELEGRAM_TOKEN" validate:"required"`
	TelegramBaseURL     string        `env:"TELEGRAM_API_BASE_URL" envDefault:"https://api.telegram.org"`
	TelegramPollTimeout time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"30s"`
	MaxConcurrentJobs   int           `env:"MAX_CONCURRENT_UPDATES" envDefault:"64" validate:"gt=0"`

	// Providers. Key lists accept comma, semicolon or newline separators.
	GoogleAPIKeys        string `env:"GOOGLE_API_KEYS"`
	GeminiBaseURL        string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel          string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GroqAPIKeys          string `env:"GROQ_API_KEYS"`
	GroqBaseURL          string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	GroqModel            string `env:"GROQ_MODEL" envDefault:"llama-3.3-70b-versatile"`
	PollinationsTextURL  string `env:"POLLINATIONS_TEXT_URL" envDefault:"https://text.pollinations.ai"`
	PollinationsImageURL string `env:"POLLINATIONS_IMAGE_URL" envDefault:"https://image.pollinations.ai"`
	HuggingFaceAPIKeys   string `env:"HUGGINGFACE_API_KEYS"`
	HuggingFaceBaseURL   string `env:"HUGGINGFACE_BASE_URL" envDefault:"https://api-inference.huggingface.co/models"`
	HuggingFaceModel     string `env:"HUGGINGFACE_MODEL" envDefault:"black-forest-labs/FLUX.1-schnell"`
	ElevenLabsAPIKeys    string `env:"ELEVENLABS_API_KEYS"`
	ElevenLabsBaseURL    string `env:"ELEVENLABS_BASE_URL" envDefault:"https://api.elevenlabs.io/v1"`
	ElevenLabsVoiceID    string `env:"ELEVENLABS_VOICE_ID" envDefault:"21m00Tcm4TlvDq8ikWAM"`
	GoogleTTSURL         string `env:"GOOGLE_TTS_URL" envDefault:"https://translate.google.com/translate_tts"`
	TTSLang              string `env:"TTS_LANG" envDefault:"vi"`
	TavilyAPIKeys        string `env:"TAVILY_API_KEYS"`
	TavilyBaseURL        string `env:"TAVILY_BASE_URL" envDefault:"https://api.tavily.com"`
	DuckDuckGoURL        string `env:"DUCKDUCKGO_URL" envDefault:"https://api.duckduckgo.com"`
	// ProvidersFile optionally points at a YAML file overriding chain order.
	ProvidersFile string `env:"PROVIDERS_FILE"`

	// Reminder store: gas (Google Apps Script), postgres or memory.
	ReminderStore      string `env:"REMINDER_STORE" envDefault:"gas" validate:"oneof=gas postgres memory"`
	GoogleAppScriptURL string `env:"GOOGLE_APP_SCRIPT_URL" validate:"required_if=ReminderStore gas"`
	DBURL              string `env:"DB_URL" validate:"required_if=ReminderStore postgres"`
	// RedisURL switches the feature limiter to the shared Redis backend when set.
	RedisURL string `env:"REDIS_URL"`

	RequestTimeout   time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	MediaTimeout     time.Duration `env:"MEDIA_TIMEOUT" envDefault:"60s"`
	MaxFileMB        int64         `env:"MAX_FILE_MB" envDefault:"10"`
	MessageChunkSize int           `env:"MESSAGE_CHUNK_SIZE" envDefault:"4000" validate:"gt=0,lte=4096"`
	CancelToken      string        `env:"CANCEL_TOKEN" envDefault:"//" validate:"required"`
	Timezone         string        `env:"TIMEZONE" envDefault:"Asia/Ho_Chi_Minh"`
	DocTokenBudget   int           `env:"DOC_TOKEN_BUDGET" envDefault:"6000"`
	MinMediaBytes    int           `env:"MIN_MEDIA_BYTES" envDefault:"1000"`

	// Conversation memory
	MemoryMaxTurns      int           `env:"MEMORY_MAX_TURNS" envDefault:"6" validate:"gt=0"`
	MemoryMaxWords      int           `env:"MEMORY_MAX_WORDS" envDefault:"150" validate:"gt=0"`
	MemoryTTL           time.Duration `env:"MEMORY_TTL" envDefault:"10m"`
	MemorySweepInterval time.Duration `env:"MEMORY_SWEEP_INTERVAL" envDefault:"5m"`

	// Per-user feature limits
	RateLimitWindow        time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1h"`
	RateLimitImage         int           `env:"RATE_LIMIT_IMAGE" envDefault:"10"`
	RateLimitVoice         int           `env:"RATE_LIMIT_VOICE" envDefault:"10"`
	RateLimitSearch        int           `env:"RATE_LIMIT_SEARCH" envDefault:"20"`
	RateLimitCheck         int           `env:"RATE_LIMIT_CHECK" envDefault:"20"`
	RateLimitSweepInterval time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" envDefault:"10m"`

	// Reminders
	ReminderTick          time.Duration `env:"REMINDER_TICK" envDefault:"60s"`
	ReminderReinsertDelay time.Duration `env:"REMINDER_REINSERT_DELAY" envDefault:"1s"`

	// Credential pools
	KeyPoolSingleKeyAttempts int           `env:"KEYPOOL_SINGLE_KEY_ATTEMPTS" envDefault:"3" validate:"gt=0"`
	KeyPoolRetryDelay        time.Duration `env:"KEYPOOL_RETRY_DELAY" envDefault:"2s"`

	// Provider circuit breaker
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"3"`
	BreakerRecovery  time.Duration `env:"BREAKER_RECOVERY" envDefault:"30s"`

	// Keep-alive pinging for hosts that idle out free instances.
	SelfPingURL      string        `env:"SELF_PING_URL"`
	SelfPingInterval time.Duration `env:"SELF_PING_INTERVAL" envDefault:"5m"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks the fields the bot cannot start without.
func (c Config) Validate() error {
	validateOnce.Do(func() { validate = validator.New() })
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("op=config.Validate: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("op=config.Validate: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// Location resolves the configured civil timezone, falling back to a fixed
// UTC+7 zone when the tz database is unavailable.
func (c Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("ICT", 7*60*60)
}

// MaxFileBytes returns the attachment size cap in bytes.
func (c Config) MaxFileBytes() int64 { return c.MaxFileMB << 20 }
