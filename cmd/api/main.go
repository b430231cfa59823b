package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-maplefresh/internal/analytics"
	"github.com/noah-isme/backend-maplefresh/internal/app"
	"github.com/noah-isme/backend-maplefresh/internal/booking"
	"github.com/noah-isme/backend-maplefresh/internal/common"
	"github.com/noah-isme/backend-maplefresh/internal/config"
	"github.com/noah-isme/backend-maplefresh/internal/events"
	"github.com/noah-isme/backend-maplefresh/internal/health"
	"github.com/noah-isme/backend-maplefresh/internal/lock"
	"github.com/noah-isme/backend-maplefresh/internal/notify"
	"github.com/noah-isme/backend-maplefresh/internal/obs"
	"github.com/noah-isme/backend-maplefresh/internal/payment"
	"github.com/noah-isme/backend-maplefresh/internal/pricing"
	"github.com/noah-isme/backend-maplefresh/internal/provider"
	"github.com/noah-isme/backend-maplefresh/internal/quote"
	"github.com/noah-isme/backend-maplefresh/internal/ratelimit"
	"github.com/noah-isme/backend-maplefresh/internal/repo"
	"github.com/noah-isme/backend-maplefresh/internal/resilience"
	"github.com/noah-isme/backend-maplefresh/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	decimal.MarshalJSONWithoutQuotes = true

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsEnabled := cfg.Obs.MetricsEnabled
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Error().Err(err).Msg("register resilience metrics")
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "maplefresh-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := app.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	deps, err := app.Connect(ctx, cfg, app.Options{AppName: "maplefresh-api", RedisMetrics: metricsEnabled}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect dependencies")
	}
	defer deps.Close(logger)
	store := deps.Store
	redisClient := deps.Redis

	rules, err := pricing.LoadRules(cfg.PricingRulesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("load pricing rules")
	}

	analyticsSvc := &analytics.Service{Q: store, R: redisClient, TTL: cfg.StatsCacheTTL, Currency: rules.Currency}
	emailNotifier, err := app.EmailNotifier(cfg, store, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise email notifier")
	}
	notifiers := []events.Notifier{analyticsSvc}
	var taskClient *asynq.Client
	if cfg.NotifyAsync {
		redisOpt, err := app.TaskRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise task client")
		}
		taskClient = asynq.NewClient(redisOpt)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		notifiers = append(notifiers, notify.TaskNotifier{Client: taskClient, MaxRetry: 8, Retention: 24 * time.Hour})
	} else {
		notifiers = append(notifiers, emailNotifier)
	}
	bus := &events.Bus{Store: store, Notifiers: notifiers}

	quoteSvc := &quote.Service{
		Store:     store,
		Rules:     rules,
		Events:    bus,
		TTL:       cfg.QuoteTTL,
		ListLimit: cfg.QuoteListLimit,
	}
	quoteHandler := &quote.Handler{Svc: quoteSvc, CompanyName: cfg.CompanyName}

	bookingSvc := &booking.Service{
		Store:  store,
		Rules:  rules,
		Events: bus,
		Locker: lock.Locker{R: redisClient, Prefix: "maplefresh:lock", TTL: cfg.LockTTL, RetryBackoff: cfg.LockRetryBackoff},
		Tx: func(ctx context.Context, fn func(booking.Store) error) error {
			return store.InTx(ctx, func(q *repo.Queries) error { return fn(q) })
		},
		ListLimit: cfg.BookingListLimit,
	}
	bookingHandler := &booking.Handler{Svc: bookingSvc}

	providerHandler := &provider.Handler{Svc: &provider.Service{Store: store}}

	var paymentProvider payment.Provider
	if cfg.PaymentsEnabled() {
		paymentProvider = payment.Stripe{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			BaseURL:       cfg.StripeBaseURL,
			Tolerance:     cfg.PaymentWebhookTolerance,
			HTTP: resilience.HTTPClient{
				Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
				Breaker:     resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRate, cfg.CircuitOpenFor).WithTarget("stripe").WithLogger(logger),
				Target:      "stripe",
				BaseBackoff: cfg.RetryBase,
				MaxAttempts: cfg.RetryMaxAttempts,
				Jitter:      cfg.RetryJitterPercent,
				Timeout:     cfg.OutboundTimeout,
			},
		}
	} else {
		logger.Warn().Msg("STRIPE_SECRET_KEY not set; payments disabled")
	}
	paymentHandler := &payment.Handler{
		Svc: &payment.Service{Store: store, Provider: paymentProvider, CompanyName: cfg.CompanyName},
		Webhook: &payment.Webhook{
			Store:     store,
			Provider:  paymentProvider,
			Bookings:  bookingSvc,
			Events:    bus,
			Replay:    redisClient,
			ReplayTTL: cfg.WebhookReplayTTL,
		},
	}

	notifyHandler := &notify.Handler{
		Email: &emailNotifier,
		Settings: notify.Settings{
			EmailEnabled: cfg.NotifyEmailEnabled,
			Async:        cfg.NotifyAsync,
			From:         cfg.NotifyEmailFrom,
			AdminAlerts:  cfg.NotifyAdminEmail != "",
		},
	}
	analyticsHandler := &analytics.Handler{Svc: analyticsSvc}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiterStore, err := app.NewLimiterStore(redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter store")
	}
	previewLimit := mustRateLimit(cfg.RateLimitPreview, ratelimit.FixedWindow{Store: limiterStore}, "preview", logger)
	writeLimit := mustRateLimit(cfg.RateLimitWrite, ratelimit.Limiter{Client: redisClient, Prefix: "maplefresh:rl:"}, "write", logger)

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.Obs.MetricsBucketsMS)
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.Tracing)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:     cfg.SecurityHeaders,
		EnableHSTS: cfg.AppEnv == "production",
		HSTSMaxAge: 31536000,
	}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.PprofEnabled {
		r.Group(func(d chi.Router) {
			if cfg.Obs.PprofUser != "" {
				d.Use(middleware.BasicAuth("maplefresh-debug", map[string]string{cfg.Obs.PprofUser: cfg.Obs.PprofPass}))
			}
			d.Mount("/debug", middleware.Profiler())
		})
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: deps.Pool, redis: redisClient},
		DBTimeout:    cfg.Obs.HealthDBTimeout,
		RedisTimeout: cfg.Obs.HealthRedisTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/quotes", func(q chi.Router) {
			q.With(previewLimit.Middleware).Post("/preview", quoteHandler.Preview)
			q.Get("/", quoteHandler.List)
			q.Get("/{id}", quoteHandler.Get)
			q.Get("/{id}/pdf", quoteHandler.PDF)
			q.Group(func(g chi.Router) {
				g.Use(writeLimit.Middleware)
				g.Post("/", quoteHandler.Create)
				g.Post("/{id}/send", quoteHandler.Send)
			})
		})

		v.Route("/bookings", func(b chi.Router) {
			b.With(writeLimit.Middleware, idem.Middleware).Post("/", bookingHandler.Submit)
			b.Get("/", bookingHandler.List)
			b.Get("/{id}", bookingHandler.Get)
			b.Patch("/{id}", bookingHandler.Update)
			b.Delete("/{id}", bookingHandler.Delete)
		})

		v.Route("/providers", func(p chi.Router) {
			p.With(writeLimit.Middleware).Post("/", providerHandler.Create)
			p.Get("/", providerHandler.List)
			p.Get("/{id}", providerHandler.Get)
		})

		v.Route("/payments", func(p chi.Router) {
			p.With(writeLimit.Middleware, idem.Middleware).Post("/intent", paymentHandler.Intent)
			p.Post("/webhook", paymentHandler.HandleWebhook)
		})

		v.Route("/notifications", func(n chi.Router) {
			n.With(writeLimit.Middleware).Post("/", notifyHandler.Send)
			n.Get("/", notifyHandler.GetSettings)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Get("/stats", analyticsHandler.Stats)
			admin.Get("/bookings/export", bookingHandler.Export)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Bool("payments", cfg.PaymentsEnabled()).Bool("notify_async", cfg.NotifyAsync).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func mustRateLimit(rate string, limiter ratelimit.Allower, scope string, logger zerolog.Logger) ratelimit.Handler {
	cfg, err := ratelimit.ConfigFromRate(rate, ratelimit.ByClientIP(scope))
	if err != nil {
		logger.Fatal().Err(err).Str("scope", scope).Msg("parse rate limit")
	}
	return ratelimit.Handler{
		Limiter: limiter,
		Config:  cfg,
		OnError: func(err error) {
			logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
		},
	}
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}
