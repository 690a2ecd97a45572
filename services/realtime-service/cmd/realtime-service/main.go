package main

import (
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/config"
	"github.com/md-rashed-zaman/groombook/libs/httpx"
	"github.com/md-rashed-zaman/groombook/libs/kafkax"
	"github.com/md-rashed-zaman/groombook/libs/metrics"
	otelx "github.com/md-rashed-zaman/groombook/libs/otel"
	"github.com/md-rashed-zaman/groombook/libs/runtime"
	"github.com/md-rashed-zaman/groombook/services/realtime-service/internal/consumer"
	"github.com/md-rashed-zaman/groombook/services/realtime-service/internal/hub"
	"github.com/md-rashed-zaman/groombook/services/realtime-service/internal/ws"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type relayConfig struct {
	Service      string `env:"SERVICE_NAME" envDefault:"realtime-service"`
	Port         string `env:"PORT" envDefault:"8090"`
	JWTSecret    string `env:"JWT_SECRET,required"`
	KafkaBrokers string `env:"KAFKA_BROKERS,required"`
	// Every replica needs every event, so each one joins its own group.
	KafkaGroupPrefix string `env:"KAFKA_GROUP_PREFIX" envDefault:"realtime-service"`
	CORSOrigins      string `env:"CORS_ALLOWED_ORIGINS"`
	ClientBuffer     int    `env:"CLIENT_BUFFER" envDefault:"64"`
}

func main() {
	var cfg relayConfig
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

	reg := prometheus.DefaultRegisterer
	relayHub := hub.New(cfg.ClientBuffer, hub.NewMetrics(reg))

	brokers := config.List(cfg.KafkaBrokers)
	groupID := cfg.KafkaGroupPrefix + "-" + uuid.NewString()
	eventConsumer := consumer.New(logger, consumer.Config{
		Brokers: brokers,
		GroupID: groupID,
		Topics:  []string{changefeed.TopicAppointments, changefeed.TopicNotifications},
	}, consumer.Relay(relayHub, logger))
	go eventConsumer.Run(ctx)
	logger.Info("relay consumer started", "group_id", groupID)

	origins := config.List(cfg.CORSOrigins)
	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers, true, changefeed.TopicAppointments, changefeed.TopicNotifications)},
	)
	mux.Handle("/ws", httpx.Chain(ws.NewHandler(relayHub, logger, origins), httpx.RequireAuth(cfg.JWTSecret, true)))

	httpHandler := httpx.Chain(metrics.NewHTTP(reg, "realtime").Middleware(mux),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "realtime")
	if err := runtime.Serve(ctx, ":"+cfg.Port, httpHandler, logger); err != nil {
		panic(err)
	}
}

