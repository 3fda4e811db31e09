package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/arvel-dev/backend-pricing/internal/app"
	"github.com/arvel-dev/backend-pricing/internal/cart"
	"github.com/arvel-dev/backend-pricing/internal/common"
	"github.com/arvel-dev/backend-pricing/internal/config"
	"github.com/arvel-dev/backend-pricing/internal/health"
	"github.com/arvel-dev/backend-pricing/internal/lock"
	"github.com/arvel-dev/backend-pricing/internal/obs"
	"github.com/arvel-dev/backend-pricing/internal/order"
	"github.com/arvel-dev/backend-pricing/internal/promotion"
	"github.com/arvel-dev/backend-pricing/internal/ratelimit"
	"github.com/arvel-dev/backend-pricing/internal/security"
	"github.com/arvel-dev/backend-pricing/internal/store"
	"github.com/arvel-dev/backend-pricing/internal/tasks"
	"github.com/arvel-dev/backend-pricing/internal/tax"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "pricing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pricing-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if envBool("RUN_MIGRATIONS", true) {
		m, err := migrate.New("file://"+cfg.MigrationsDir, migrateDatabaseURL(cfg.DatabaseURL))
		if err != nil {
			logger.Fatal().Err(err).Msg("open migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		if _, err := m.Close(); err != nil {
			logger.Error().Err(err).Msg("close migrations")
		}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "pricing-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	st := store.New(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	asynqOpts, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task client")
	}
	taskClient := asynq.NewClient(asynqOpts)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	validate := validator.New()

	cartSvc := &cart.Service{
		Orders:     st,
		Promotions: st,
		Taxes:      st,
		Locks:      lock.Locker{R: redisClient},
		LockTTL:    cfg.OrderLockTTL,
	}

	cartHandler := &cart.Handler{Svc: cartSvc, Validate: validate, NotFound: store.ErrNotFound}
	orderHandler := &order.Handler{Store: st, NotFound: store.ErrNotFound}
	orderAdmin := &order.AdminHandler{Store: st, NotFound: store.ErrNotFound}
	promotionAdmin := &promotion.Handler{Store: st, Registry: st.Conditions, Validate: validate, NotFound: store.ErrNotFound}
	taxAdmin := &tax.Handler{Store: st, Registry: st.Conditions, Validate: validate, NotFound: store.ErrNotFound}
	enqueueHandler := &tasks.EnqueueHandler{Client: taskClient}

	idem := common.Idem{R: redisClient, TTL: envDurationMillis("IDEMPOTENCY_TTL_MS", int(24*time.Hour/time.Millisecond))}

	// Coupon application gets its own tighter window so codes cannot be
	// enumerated at the global API rate.
	couponLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:coupon:"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: envDurationMillis("COUPON_RATE_WINDOW_MS", 60_000),
			Max:    envInt("COUPON_RATE_MAX", 10),
		},
		OnError: func(err error) {
			logger.Error().Err(err).Msg("coupon rate limit")
		},
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: envBool("SECURE_HEADERS", true), EnableHSTS: envBool("SECURE_HSTS", false)}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.RequestBodyLimit}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		if mw := globalRateLimit(cfg, redisClient, logger); mw != nil {
			v.Use(mw)
		}

		v.Get("/orders/{orderId}", orderHandler.Get)

		v.Group(func(g chi.Router) {
			g.Use(idem.Middleware)
			g.Post("/orders", cartHandler.Create)
			g.Post("/orders/{orderId}/items", cartHandler.AddItem)
			g.Patch("/orders/{orderId}/items/{itemId}", cartHandler.UpdateQuantity)
			g.Delete("/orders/{orderId}/items/{itemId}", cartHandler.RemoveItem)
			g.With(couponLimit.Middleware).Post("/orders/{orderId}/coupon", cartHandler.ApplyCoupon)
			g.Delete("/orders/{orderId}/coupon", cartHandler.RemoveCoupon)
			g.Post("/orders/{orderId}/adjustments", cartHandler.AddAdjustment)
			g.Delete("/orders/{orderId}/adjustments", cartHandler.ClearAdjustments)
			g.Post("/orders/{orderId}/recalculate", cartHandler.Recalculate)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Patch("/orders/{orderId}/state", orderAdmin.PatchState)
			admin.Post("/orders/{orderId}/recalculate", enqueueHandler.Recalculate)
			admin.Post("/promotions/sweep", enqueueHandler.Sweep)

			admin.Get("/promotions", promotionAdmin.List)
			admin.Post("/promotions", promotionAdmin.Create)
			admin.Get("/promotions/{promotionId}", promotionAdmin.Get)
			admin.Put("/promotions/{promotionId}", promotionAdmin.Update)
			admin.Delete("/promotions/{promotionId}", promotionAdmin.Delete)

			admin.Get("/tax-rates", taxAdmin.List)
			admin.Post("/tax-rates", taxAdmin.Create)
			admin.Put("/tax-rates/{rateId}", taxAdmin.Update)
			admin.Delete("/tax-rates/{rateId}", taxAdmin.Delete)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-sigCtx.Done()
	// Fail readiness first so load balancers drain us before connections
	// are torn down.
	health.SetReady(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 10_000))
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	logger.Info().Msg("server shutdown complete")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// globalRateLimit builds the per-client limit for the whole API from the
// formatted rate in the config, e.g. "120-M". A malformed rate or a broken
// limiter store disables the limit rather than blocking startup.
func globalRateLimit(cfg *config.Config, rdb *redis.Client, logger zerolog.Logger) func(http.Handler) http.Handler {
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		logger.Error().Err(err).Str("rate", cfg.RateLimit).Msg("parse rate limit")
		return nil
	}
	limiterStore, err := app.NewLimiterStore(rdb)
	if err != nil {
		logger.Error().Err(err).Msg("initialise limiter store")
		return nil
	}
	return limiterhttp.NewMiddleware(limiter.New(limiterStore, rate)).Handler
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

// migrateDatabaseURL maps the pgx connection URL onto the scheme the migrate
// pgx/v5 driver expects.
func migrateDatabaseURL(raw string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(raw, scheme) {
			return "pgx5://" + strings.TrimPrefix(raw, scheme)
		}
	}
	return raw
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
