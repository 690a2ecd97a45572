package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/groombook/libs/auth"
	"github.com/md-rashed-zaman/groombook/libs/config"
	"github.com/md-rashed-zaman/groombook/libs/db"
	"github.com/md-rashed-zaman/groombook/libs/httpx"
	"github.com/md-rashed-zaman/groombook/libs/kafkax"
	"github.com/md-rashed-zaman/groombook/libs/metrics"
	otelx "github.com/md-rashed-zaman/groombook/libs/otel"
	"github.com/md-rashed-zaman/groombook/libs/runtime"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/handlers"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/notify"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type appConfig struct {
	Service      string        `env:"SERVICE_NAME" envDefault:"appointment-service"`
	Port         string        `env:"PORT" envDefault:"8083"`
	DatabaseURL  string        `env:"DATABASE_URL,required"`
	JWTSecret    string        `env:"JWT_SECRET,required"`
	KafkaBrokers string        `env:"KAFKA_BROKERS"`
	RedisAddr    string        `env:"REDIS_ADDR"`
	RedisDB      int           `env:"REDIS_DB" envDefault:"0"`
	CORSOrigins  string        `env:"CORS_ALLOWED_ORIGINS"`
	TimeZone     string        `env:"BUSINESS_TZ" envDefault:"UTC"`
	SlotStep     time.Duration `env:"SLOT_STEP" envDefault:"15m"`

	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET"`
	StripeTolerance     time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`

	RateLimit       int           `env:"RATE_LIMIT" envDefault:"120"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	OutboxPollEvery time.Duration `env:"OUTBOX_POLL_EVERY" envDefault:"500ms"`
	OutboxBatchSize int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxRetention time.Duration `env:"OUTBOX_RETENTION" envDefault:"72h"`

	DB db.PoolOptions
}

func main() {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}
	if err := config.ValidatePort("PORT", cfg.Port); err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	defer otelx.Init(ctx, cfg.Service, logger)()

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		logger.Error("invalid BUSINESS_TZ; using UTC", "tz", cfg.TimeZone, "err", err)
		loc = time.UTC
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.DB)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()
	if cfg.MigrateOnStart {
		if err := storage.Migrate(ctx, pool, logger); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
	}

	reg := prometheus.DefaultRegisterer
	brokers := config.List(cfg.KafkaBrokers)
	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
		Retention: cfg.OutboxRetention,
		Metrics:   outbox.NewMetrics(reg),
	})
	go publisher.Run(ctx)

	appointments := storage.NewAppointmentRepository(pool, outboxRepo)
	catalog := storage.NewCatalogRepository(pool)
	dispatcher := notify.NewDispatcher(notify.NewRepository(pool, outboxRepo))
	svc := booking.NewService(appointments, catalog, dispatcher, logger, booking.Options{
		Location: loc,
		SlotStep: cfg.SlotStep,
		Metrics:  booking.NewMetrics(reg),
	})

	var deduper handlers.Deduper
	if rdb != nil {
		deduper = handlers.NewRedisDeduper(rdb, 0)
	}
	apptHandler := handlers.NewAppointmentHandler(svc, logger)
	inboxHandler := handlers.NewNotificationHandler(dispatcher, logger)
	paymentHandler := handlers.NewPaymentHandler(svc, deduper, cfg.StripeWebhookSecret, cfg.StripeTolerance, logger)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers, false)},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	mux := runtime.NewBaseMux(checks...)

	authed := httpx.RequireAuth(cfg.JWTSecret, false)
	protect := func(h http.HandlerFunc, extra ...httpx.Middleware) http.Handler {
		return httpx.Chain(h, append([]httpx.Middleware{authed}, extra...)...)
	}

	mux.Handle("POST /api/v1/appointments", protect(apptHandler.Create, httpx.RequireRole(auth.RoleCustomer)))
	mux.Handle("GET /api/v1/appointments", protect(apptHandler.List))
	mux.Handle("/api/v1/appointments/view", protect(apptHandler.View))
	mux.Handle("/api/v1/appointments/transition", protect(apptHandler.Transition))
	mux.HandleFunc("/api/v1/public/slots", apptHandler.Slots)
	mux.Handle("/api/v1/notifications", protect(inboxHandler.List))
	mux.Handle("/api/v1/notifications/read", protect(inboxHandler.MarkRead))
	mux.Handle("/api/v1/notifications/read-all", protect(inboxHandler.MarkAllRead))
	mux.Handle("/api/v1/notifications/unread-count", protect(inboxHandler.UnreadCount))
	mux.HandleFunc("/api/v1/webhooks/stripe", paymentHandler.StripeWebhook)

	httpMetrics := metrics.NewHTTP(reg, "appointment")
	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithGzip,
		httpx.WithCORS(httpx.DashboardCORSPolicy(config.List(cfg.CORSOrigins))),
		httpx.WithBodyLimit(1 << 20),
		httpx.WithTimeout(15 * time.Second),
	}
	var limiter httpx.Limiter = httpx.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	if rdb != nil {
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow, "groombook:rl:appointment")
	}
	middlewares = append(middlewares, httpx.RateLimit(limiter, httpx.ClientKey, logger, true))
	httpHandler := httpx.Chain(httpMetrics.Middleware(mux), middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, "appointment")

	if err := runtime.Serve(ctx, ":"+cfg.Port, httpHandler, logger); err != nil {
		panic(err)
	}
}

