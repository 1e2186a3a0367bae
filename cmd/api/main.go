package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-memberpay/internal/checkout"
	"github.com/noah-isme/backend-memberpay/internal/config"
	"github.com/noah-isme/backend-memberpay/internal/db"
	"github.com/noah-isme/backend-memberpay/internal/health"
	"github.com/noah-isme/backend-memberpay/internal/lock"
	"github.com/noah-isme/backend-memberpay/internal/membership"
	"github.com/noah-isme/backend-memberpay/internal/obs"
	"github.com/noah-isme/backend-memberpay/internal/order"
	"github.com/noah-isme/backend-memberpay/internal/payment"
	"github.com/noah-isme/backend-memberpay/internal/uddoktapay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "memberpay")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "memberpay-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}
	asynqClient := asynq.NewClient(asynqOpt)
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task queue client")
		}
	}()

	if !cfg.GatewayReady() {
		logger.Warn().Msg("gateway credentials missing, payment endpoints disabled")
	}

	orders := &order.Store{Pool: pool}
	gateway := uddoktapay.NewClient(cfg.GatewayAPIKey, cfg.GatewayBaseURL, cfg.GatewayTimeout)
	preparer := payment.Preparer{CallbackBaseURL: cfg.CallbackBaseURL}
	verifier := payment.Verifier{Logger: logger}
	activator := membership.Enqueuer{Client: asynqClient}

	reconciler := &payment.Reconciler{
		Orders:      orders,
		Gateway:     gateway,
		Verifier:    verifier,
		Activator:   activator,
		Locks:       lock.Locker{R: redisClient},
		LockTTL:     cfg.OrderLockTTL,
		GatewayName: cfg.GatewayDisplayName,
		Logger:      logger,
	}

	webhookHandler := payment.WebhookHandler{
		Rec:             reconciler,
		Ready:           cfg.GatewayReady,
		Replay:          redisClient,
		ReplayTTL:       cfg.IPNReplayTTL,
		AccountURL:      cfg.AccountPageURL,
		ConfirmationURL: cfg.ConfirmationPageURL,
		LevelsURL:       cfg.LevelsPageURL,
		Logger:          logger,
	}

	checkoutSvc := &checkout.Service{
		Orders:  orders,
		Gateway: gateway,
		Prepare: preparer,
		Ready:   cfg.GatewayReady,
		Logger:  logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: validator.New()}
	orderHandler := &order.Handler{Orders: orders}

	buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, buckets, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{
		Checker: readinessChecker{db: pool, redis: redisClient},
		Gateway: cfg.GatewayReady,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Post("/checkout", checkoutHandler.Checkout)
		v.Get("/orders/{orderId}", orderHandler.Get)
		v.Get("/payments/callback", webhookHandler.Handle)
		v.Post("/payments/callback", webhookHandler.Handle)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
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

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
