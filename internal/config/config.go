// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-parts-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SpamConfig tunes the heuristic spam screen on request intake.
type SpamConfig struct {
	DuplicateWindow time.Duration // SPAM_DUP_WINDOW: lookback for near-duplicates
	HourlyWindow    time.Duration // SPAM_HOURLY_WINDOW
	HourlyMax       int           // SPAM_HOURLY_MAX: submissions per phone per window
	DailyWindow     time.Duration // SPAM_DAILY_WINDOW
	DailyMax        int           // SPAM_DAILY_MAX: submissions per account per window
}

// ModerationConfig configures the AI text classifier used for suspicious
// submissions.
type ModerationConfig struct {
	Endpoint  string        // MODERATION_ENDPOINT: OpenAI-compatible chat completions URL
	APIKey    string        // MODERATION_API_KEY
	Model     string        // MODERATION_MODEL
	Timeout   time.Duration // MODERATION_TIMEOUT: classifier call deadline
	Threshold float64       // MODERATION_THRESHOLD: min confidence for auto-publish
}

// OffersConfig tunes offer lifecycle behavior.
type OffersConfig struct {
	AutoRejectSiblings bool          // AUTO_REJECT_SIBLINGS: reject pending siblings on accept
	TTL                time.Duration // OFFER_TTL: pending offer age before expiry sweep
}

// RedisConfig configures the optional accept-lock backend. An empty Addr
// disables Redis entirely.
type RedisConfig struct {
	Addr          string        // REDIS_ADDR (e.g. "localhost:6379"); empty disables
	AcceptLockTTL time.Duration // ACCEPT_LOCK_TTL
}

// KafkaConfig configures the optional notification delivery producer. Empty
// Brokers disables publishing; notifications are still persisted.
type KafkaConfig struct {
	Brokers []string // KAFKA_BROKERS (CSV)
	Topic   string   // KAFKA_TOPIC
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath     string // SQLite path
	Spam       SpamConfig
	Moderation ModerationConfig
	Offers     OffersConfig
	Redis      RedisConfig
	Kafka      KafkaConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
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
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),
		Spam: SpamConfig{
			DuplicateWindow: getdur("SPAM_DUP_WINDOW", 24*time.Hour),
			HourlyWindow:    getdur("SPAM_HOURLY_WINDOW", time.Hour),
			HourlyMax:       getint("SPAM_HOURLY_MAX", 3),
			DailyWindow:     getdur("SPAM_DAILY_WINDOW", 24*time.Hour),
			DailyMax:        getint("SPAM_DAILY_MAX", 10),
		},
		Moderation: ModerationConfig{
			Endpoint:  getenv("MODERATION_ENDPOINT", ""),
			APIKey:    getenv("MODERATION_API_KEY", ""),
			Model:     getenv("MODERATION_MODEL", "gpt-4o-mini"),
			Timeout:   getdur("MODERATION_TIMEOUT", 12*time.Second),
			Threshold: getfloat("MODERATION_THRESHOLD", 0.7),
		},
		Offers: OffersConfig{
			AutoRejectSiblings: getbool("AUTO_REJECT_SIBLINGS", false),
			TTL:                getdur("OFFER_TTL", 14*24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:          getenv("REDIS_ADDR", ""),
			AcceptLockTTL: getdur("ACCEPT_LOCK_TTL", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "notifications.delivery"),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-parts-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
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

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Spam.DuplicateWindow <= 0 || cfg.Spam.HourlyWindow <= 0 || cfg.Spam.DailyWindow <= 0 {
		return cfg, errors.New("spam windows must be positive durations")
	}
	if cfg.Spam.HourlyMax < 1 || cfg.Spam.DailyMax < 1 {
		return cfg, errors.New("SPAM_HOURLY_MAX and SPAM_DAILY_MAX must be >= 1")
	}
	if cfg.Moderation.Threshold < 0 || cfg.Moderation.Threshold > 1 {
		return cfg, errors.New("MODERATION_THRESHOLD must be between 0 and 1")
	}
	if cfg.Moderation.Timeout <= 0 {
		return cfg, errors.New("MODERATION_TIMEOUT must be > 0")
	}
	if cfg.Offers.TTL <= 0 {
		return cfg, errors.New("OFFER_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	// if cfg.APIBasePath == "" || cfg.APIBasePath[0] != '/' {
	// 	return cfg, errors.New("API_BASE_PATH must start with '/'")
	// }

	return cfg, nil
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
		if i, err := strconv.Atoi(v); err == nil {
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
