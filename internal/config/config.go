package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	PublicBaseURL      string
	CompanyName        string

	PricingRulesFile string
	QuoteTTL         time.Duration
	QuoteListLimit   int
	BookingListLimit int

	IdempotencyTTL   time.Duration
	StatsCacheTTL    time.Duration
	RateLimitPreview string
	RateLimitWrite   string
	BodyLimitBytes   int64
	SecurityHeaders  bool
	RunMigrations    bool

	StripeSecretKey         string
	StripeWebhookSecret     string
	StripeBaseURL           string
	PaymentWebhookTolerance time.Duration
	WebhookReplayTTL        time.Duration

	OutboundTimeout    time.Duration
	RetryBase          time.Duration
	RetryMaxAttempts   int
	RetryJitterPercent float64
	CircuitMinRequests int
	CircuitFailureRate float64
	CircuitOpenFor     time.Duration

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	NotifyAdminEmail   string
	NotifyAsync        bool
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPass           string
	WorkerConcurrency  int

	StartupRetryMax time.Duration
	ShutdownTimeout time.Duration

	Obs Obs
}

// Obs groups logging, metrics, tracing and profiling switches.
type Obs struct {
	LogFormat          string
	LogLevel           string
	MetricsEnabled     bool
	MetricsNamespace   string
	MetricsBucketsMS   string
	TracingEnabled     bool
	TracingExporter    string
	OTLPEndpoint       string
	SamplingRatio      float64
	PprofEnabled       bool
	PprofUser          string
	PprofPass          string
	HealthDBTimeout    time.Duration
	HealthRedisTimeout time.Duration
	WorkerMetricsAddr  string
}

// Load reads configuration from environment variables and an optional .env
// file. Malformed numeric, duration or boolean values are reported together.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	r := &reader{k: k}

	cfg := &Config{
		AppEnv:             r.str("APP_ENV", "development"),
		Port:               r.str("PORT", "8080"),
		DatabaseURL:        r.str("DATABASE_URL", ""),
		RedisURL:           r.str("REDIS_URL", ""),
		CORSAllowedOrigins: r.list("CORS_ALLOWED_ORIGINS"),
		PublicBaseURL:      strings.TrimRight(r.str("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		CompanyName:        r.str("COMPANY_NAME", "MapleFresh Services"),

		PricingRulesFile: r.str("PRICING_RULES_FILE", ""),
		QuoteTTL:         r.dur("QUOTE_TTL", 7*24*time.Hour),
		QuoteListLimit:   r.int("QUOTE_LIST_LIMIT", 50),
		BookingListLimit: r.int("BOOKING_LIST_LIMIT", 20),

		IdempotencyTTL:   r.dur("IDEMPOTENCY_TTL", 24*time.Hour),
		StatsCacheTTL:    r.dur("STATS_CACHE_TTL", time.Minute),
		RateLimitPreview: r.str("RATE_LIMIT_PREVIEW", "120-M"),
		RateLimitWrite:   r.str("RATE_LIMIT_WRITE", "30-M"),
		BodyLimitBytes:   int64(r.int("BODY_LIMIT_BYTES", 1<<20)),
		SecurityHeaders:  r.flag("SECURITY_HEADERS_ENABLED", true),
		RunMigrations:    r.flag("RUN_MIGRATIONS", true),

		StripeSecretKey:         r.str("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:     r.str("STRIPE_WEBHOOK_SECRET", ""),
		StripeBaseURL:           r.str("STRIPE_BASE_URL", "https://api.stripe.com"),
		PaymentWebhookTolerance: r.dur("PAYMENT_WEBHOOK_TOLERANCE", 5*time.Minute),
		WebhookReplayTTL:        r.dur("WEBHOOK_REPLAY_TTL", 72*time.Hour),

		OutboundTimeout:    r.dur("OUTBOUND_TIMEOUT", 10*time.Second),
		RetryBase:          r.dur("RETRY_BASE", 200*time.Millisecond),
		RetryMaxAttempts:   r.int("RETRY_MAX_ATTEMPTS", 3),
		RetryJitterPercent: r.float("RETRY_JITTER_PERCENT", 0.2),
		CircuitMinRequests: r.int("CIRCUIT_MIN_REQUESTS", 5),
		CircuitFailureRate: r.float("CIRCUIT_FAILURE_RATE", 0.5),
		CircuitOpenFor:     r.dur("CIRCUIT_OPEN_FOR", 30*time.Second),

		LockTTL:          r.dur("LOCK_TTL", 10*time.Second),
		LockRetryBackoff: r.dur("LOCK_RETRY_BACKOFF", 50*time.Millisecond),

		NotifyEmailEnabled: r.flag("NOTIFY_EMAIL_ENABLED", false),
		NotifyEmailFrom:    r.str("NOTIFY_EMAIL_FROM", "bookings@maplefresh.ca"),
		NotifyAdminEmail:   r.str("NOTIFY_ADMIN_EMAIL", ""),
		NotifyAsync:        r.flag("NOTIFY_ASYNC", false),
		SMTPHost:           r.str("SMTP_HOST", ""),
		SMTPPort:           r.int("SMTP_PORT", 587),
		SMTPUser:           r.str("SMTP_USER", ""),
		SMTPPass:           r.k.String("SMTP_PASS"),
		WorkerConcurrency:  r.int("WORKER_CONCURRENCY", 10),

		StartupRetryMax: r.dur("STARTUP_RETRY_MAX", 30*time.Second),
		ShutdownTimeout: r.dur("SHUTDOWN_TIMEOUT", 15*time.Second),

		Obs: Obs{
			LogFormat:          r.str("OBS_LOG_FORMAT", "json"),
			LogLevel:           r.str("OBS_LOG_LEVEL", "info"),
			MetricsEnabled:     r.flag("OBS_ENABLE_PROMETHEUS", true),
			MetricsNamespace:   r.str("OBS_METRICS_NAMESPACE", "maplefresh"),
			MetricsBucketsMS:   r.str("OBS_METRICS_BUCKETS_MS", ""),
			TracingEnabled:     r.flag("OBS_ENABLE_TRACING", true),
			TracingExporter:    r.str("OBS_TRACING_EXPORTER", "otlp"),
			OTLPEndpoint:       r.str("OBS_OTLP_ENDPOINT", ""),
			SamplingRatio:      r.float("OBS_TRACING_SAMPLING_RATIO", 1),
			PprofEnabled:       r.flag("OBS_ENABLE_PPROF", false),
			PprofUser:          r.str("SECURE_PPROF_BASIC_AUTH_USER", ""),
			PprofPass:          r.k.String("SECURE_PPROF_BASIC_AUTH_PASS"),
			HealthDBTimeout:    r.dur("HEALTH_READY_DB_TIMEOUT", 500*time.Millisecond),
			HealthRedisTimeout: r.dur("HEALTH_READY_REDIS_TIMEOUT", 300*time.Millisecond),
			WorkerMetricsAddr:  r.str("WORKER_METRICS_ADDR", ""),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.NotifyEmailEnabled && cfg.SMTPHost == "" {
		return nil, errors.New("SMTP_HOST is required when NOTIFY_EMAIL_ENABLED is set")
	}
	if cfg.Obs.PprofEnabled && cfg.Obs.PprofUser != "" && cfg.Obs.PprofPass == "" {
		return nil, errors.New("SECURE_PPROF_BASIC_AUTH_PASS is required when a pprof user is set")
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddr returns the listen address, accepting PORT with or without a colon.
func (c *Config) HTTPAddr() string {
	port := strings.TrimPrefix(strings.TrimSpace(c.Port), ":")
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

// PaymentsEnabled reports whether a payment provider is configured.
func (c *Config) PaymentsEnabled() bool {
	return strings.TrimSpace(c.StripeSecretKey) != ""
}

// reader pulls typed values out of koanf. Blank values take the default.
type reader struct {
	k    *koanf.Koanf
	errs []error
}

func (r *reader) raw(key string) (string, bool) {
	v := strings.TrimSpace(r.k.String(key))
	return v, v != ""
}

func (r *reader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (r *reader) str(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *reader) dur(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *reader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *reader) flag(key string, def bool) bool {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	r.fail(key, v, errors.New("not a boolean"))
	return def
}

// LoadForTests sets env for the duration of one Load call and restores the
// previous values afterwards. An empty value unsets the variable.
func LoadForTests(vars map[string]string) (*Config, error) {
	saved := make(map[string]*string, len(vars))
	for key, value := range vars {
		if prev, ok := os.LookupEnv(key); ok {
			saved[key] = &prev
		} else {
			saved[key] = nil
		}
		if err := setEnv(key, value); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()

	var restoreErrs []error
	for key, prev := range saved {
		value := ""
		if prev != nil {
			value = *prev
		}
		if rerr := setEnv(key, value); rerr != nil {
			restoreErrs = append(restoreErrs, fmt.Errorf("restore %s: %w", key, rerr))
		}
	}
	if err != nil {
		return nil, err
	}
	return cfg, errors.Join(restoreErrs...)
}

func setEnv(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}
