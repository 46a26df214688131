// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the bot settings
// (platform credentials, watched channel, repost pipeline tunables), the
// settings store and lock backends, the admin HTTP server, logging and
// observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSQL    = "sql"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Lock backends.
const (
	LockRedis  = "redis"
	LockMemory = "memory"
	LockNone   = "none"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "memebot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
	// Headers are sent with every export, e.g. a collector API key.
	Headers map[string]string // OTEL_EXPORTER_OTLP_HEADERS "k1=v1,k2=v2"
}

// BotConfig holds the chat platform settings.
type BotConfig struct {
	Token         string   // DISCORD_TOKEN
	APIBaseURL    string   // DISCORD_API_URL
	GatewayURL    string   // DISCORD_GATEWAY_URL
	MemeChannelID string   // MEME_CHANNEL_ID
	WebhookURL    string   // TOP_WEBHOOK_URL
	SeedReaction  string   // SEED_REACTION, added to every new meme
	CommandPrefix string   // COMMAND_PREFIX
	AdminRoleIDs  []string // ADMIN_ROLE_IDS
}

// PipelineConfig holds the repost pipeline tunables.
type PipelineConfig struct {
	DefaultThreshold  int           // DEFAULT_REPOST_THRESHOLD, used when the store has none
	EvaluationTimeout time.Duration // upper bound for one evaluation
	Workers           int           // dispatcher workers
	QueueSize         int           // dispatcher feeder buffer

	BackfillEnabled  bool
	BackfillInterval time.Duration
	BackfillPageSize int
}

// StoreConfig selects and configures the settings store.
type StoreConfig struct {
	Backend           string // sql|redis|memory
	DSN               string // sqlite path or postgres:// URL
	RedisURL          string
	KeyPrefix         string // namespace for redis keys
	RepostedCacheSize int    // LRU entries for already-reposted ids (0 disables)
}

// LockConfig configures the distributed mutex.
type LockConfig struct {
	Backend    string // redis|memory|none
	TTL        time.Duration
	Retries    int
	RetryDelay time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	Bot      BotConfig
	Pipeline PipelineConfig
	Store    StoreConfig
	Lock     LockConfig

	// Admin HTTP server
	HTTPEnabled       bool
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	GinMode           string        // debug|release|test
	SwaggerEnabled    bool
	APIBasePath       string
	AdminToken        string // bearer token for the admin API; empty disables auth

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Rate limiting on the admin API
	RateRPS   float64
	RateBurst int

	CORS CORSConfig
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
//
// Platform credentials are not required here so that administrative
// commands can run without them; see ValidateBot.
func Load() (Config, error) {
	cfg := Config{
		Bot: BotConfig{
			Token:         getenv("DISCORD_TOKEN", ""),
			APIBaseURL:    strings.TrimRight(getenv("DISCORD_API_URL", "https://discord.com/api/v10"), "/"),
			GatewayURL:    getenv("DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json"),
			MemeChannelID: strings.TrimSpace(getenv("MEME_CHANNEL_ID", "")),
			WebhookURL:    getenv("TOP_WEBHOOK_URL", ""),
			SeedReaction:  getenv("SEED_REACTION", "👍"),
			CommandPrefix: getenv("COMMAND_PREFIX", "!"),
			AdminRoleIDs:  splitCSV(getenv("ADMIN_ROLE_IDS", "")),
		},
		Pipeline: PipelineConfig{
			DefaultThreshold:  getint("DEFAULT_REPOST_THRESHOLD", 10),
			EvaluationTimeout: getdur("EVALUATION_TIMEOUT", 30*time.Second),
			Workers:           getint("WORKERS", 4),
			QueueSize:         getint("QUEUE_SIZE", 256),
			BackfillEnabled:   getbool("BACKFILL_ENABLED", true),
			BackfillInterval:  getdur("BACKFILL_INTERVAL", 60*time.Second),
			BackfillPageSize:  getint("BACKFILL_PAGE_SIZE", 100),
		},
		Store: StoreConfig{
			Backend:           strings.ToLower(getenv("STORE_BACKEND", StoreSQL)),
			DSN:               getenv("DB_DSN", "memebot.db"),
			RedisURL:          getenv("REDIS_URL", "redis://localhost:6379/0"),
			KeyPrefix:         getenv("KEY_PREFIX", "memebot"),
			RepostedCacheSize: getint("REPOSTED_CACHE_SIZE", 10_000),
		},
		Lock: LockConfig{
			Backend:    strings.ToLower(getenv("LOCK_BACKEND", LockMemory)),
			TTL:        getdur("LOCK_TTL", 10*time.Second),
			Retries:    getint("LOCK_RETRIES", 5),
			RetryDelay: getdur("LOCK_RETRY_DELAY", 100*time.Millisecond),
		},

		HTTPEnabled:       getbool("HTTP_ENABLED", true),
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		SwaggerEnabled:    getbool("SWAGGER_ENABLED", false),
		APIBasePath:       normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		AdminToken:        getenv("ADMIN_TOKEN", ""),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "memebot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
			Headers:     parseHeaders(getenv("OTEL_EXPORTER_OTLP_HEADERS", "")),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if strings.TrimSpace(cfg.Bot.CommandPrefix) == "" {
		cfg.Bot.CommandPrefix = "!"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if cfg.Pipeline.DefaultThreshold < 1 {
		return cfg, errors.New("DEFAULT_REPOST_THRESHOLD must be >= 1")
	}
	if cfg.Pipeline.EvaluationTimeout <= 0 {
		return cfg, errors.New("EVALUATION_TIMEOUT must be > 0")
	}
	if cfg.Pipeline.Workers < 1 {
		return cfg, errors.New("WORKERS must be >= 1")
	}
	if cfg.Pipeline.QueueSize < 0 {
		return cfg, errors.New("QUEUE_SIZE must be >= 0")
	}
	if cfg.Pipeline.BackfillInterval <= 0 {
		return cfg, errors.New("BACKFILL_INTERVAL must be > 0")
	}
	if cfg.Pipeline.BackfillPageSize < 1 || cfg.Pipeline.BackfillPageSize > 100 {
		return cfg, errors.New("BACKFILL_PAGE_SIZE must be between 1 and 100")
	}
	switch cfg.Store.Backend {
	case StoreSQL:
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			return cfg, errors.New("DB_DSN must not be empty")
		}
	case StoreRedis, StoreMemory:
	default:
		return cfg, errors.New("STORE_BACKEND must be one of: sql, redis, memory")
	}
	if cfg.Store.RepostedCacheSize < 0 {
		return cfg, errors.New("REPOSTED_CACHE_SIZE must be >= 0")
	}
	switch cfg.Lock.Backend {
	case LockRedis, LockMemory, LockNone:
	default:
		return cfg, errors.New("LOCK_BACKEND must be one of: redis, memory, none")
	}
	if cfg.Lock.TTL <= 0 {
		return cfg, errors.New("LOCK_TTL must be > 0")
	}
	if cfg.Lock.Retries < 0 {
		return cfg, errors.New("LOCK_RETRIES must be >= 0")
	}
	if cfg.Lock.RetryDelay < 0 {
		return cfg, errors.New("LOCK_RETRY_DELAY must be >= 0")
	}
	if (cfg.Store.Backend == StoreRedis || cfg.Lock.Backend == LockRedis) && strings.TrimSpace(cfg.Store.RedisURL) == "" {
		return cfg, errors.New("REDIS_URL must not be empty when redis is used")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ValidateBot checks the settings the event loop cannot run without.
func (c Config) ValidateBot() error {
	if strings.TrimSpace(c.Bot.Token) == "" {
		return errors.New("DISCORD_TOKEN must not be empty")
	}
	if c.Bot.MemeChannelID == "" {
		return errors.New("MEME_CHANNEL_ID must not be empty")
	}
	if !strings.HasPrefix(c.Bot.WebhookURL, "https://") && !strings.HasPrefix(c.Bot.WebhookURL, "http://") {
		return errors.New("TOP_WEBHOOK_URL must be an http(s) URL")
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parseHeaders reads the OTLP "k1=v1,k2=v2" header list. Malformed pairs
// are ignored.
func parseHeaders(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range splitCSV(s) {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
