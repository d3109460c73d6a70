package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/nazeru/tx-lab-shop-go/internal/config"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/httpapi"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/service"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store/memory"
	"github.com/nazeru/tx-lab-shop-go/internal/shop/store/postgres"
	"github.com/nazeru/tx-lab-shop-go/pkg/idempotency"
	"github.com/nazeru/tx-lab-shop-go/pkg/kafka"
	"github.com/nazeru/tx-lab-shop-go/pkg/logging"
	"github.com/nazeru/tx-lab-shop-go/pkg/metrics"
	"github.com/nazeru/tx-lab-shop-go/pkg/outbox"
	"github.com/nazeru/tx-lab-shop-go/pkg/rabbitmq"
)

const serviceName = "shop-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, source, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer closeStore()

	idem, err := openIdempotency(ctx, cfg)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}

	publisher, closePublisher, err := openPublisher(cfg)
	if err != nil {
		log.Fatalf("broker error: %v", err)
	}
	defer closePublisher()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	shopMetrics := metrics.NewShopMetrics(reg)

	relay := &outbox.Relay{
		Source:    source,
		Publisher: publisher,
		Service:   serviceName,
		Interval:  cfg.OutboxPoll,
		Batch:     cfg.OutboxBatch,
	}
	go relay.Run(ctx)

	api := &httpapi.Server{
		Catalog:        service.NewCatalog(st),
		Carts:          service.NewCarts(st),
		Checkout:       service.NewCheckout(st, idem, shopMetrics),
		Orders:         service.NewOrders(st, shopMetrics),
		Health:         st,
		Metrics:        metrics.NewServerMetrics(reg, serviceName),
		MetricsHandler: metrics.Handler(reg),
		Timeout:        cfg.RequestTimeout,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("%s listening on :%s (store=%s, broker=%s)", serviceName, cfg.Port, storeKind(cfg), cfg.EventsBroker)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
}

func storeKind(cfg config.Config) string {
	if cfg.DatabaseURL == "" {
		return "memory"
	}
	return "postgres"
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, outbox.Source, func(), error) {
	if cfg.DatabaseURL == "" {
		m := memory.New()
		return m, m, func() {}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	pg := postgres.New(pool)
	if err := pg.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	if err := pg.Migrate(connectCtx); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return pg, outbox.PGSource{Pool: pool}, pool.Close, nil
}

func openIdempotency(ctx context.Context, cfg config.Config) (idempotency.Store, error) {
	if cfg.RedisAddr == "" {
		return idempotency.NewMemoryStore(cfg.IdempotencyTTL), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return idempotency.NewRedisStore(client, cfg.IdempotencyTTL), nil
}

func openPublisher(cfg config.Config) (outbox.Publisher, func(), error) {
	switch cfg.EventsBroker {
	case config.BrokerKafka:
		p, err := kafka.NewClient(cfg.KafkaBrokers).NewPublisher(cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case config.BrokerRabbitMQ:
		conn, ch, err := rabbitmq.SetupConn(cfg.RabbitMQURL)
		if err != nil {
			return nil, nil, err
		}
		return rabbitmq.NewPublisher(ch), func() { _ = ch.Close(); _ = conn.Close() }, nil
	default:
		return logPublisher{}, func() {}, nil
	}
}

// logPublisher drains the outbox into the log when no broker is configured.
type logPublisher struct{}

func (logPublisher) Publish(_ context.Context, key, routingKey string, body []byte) error {
	logging.Log(logging.Fields{Service: serviceName, OrderID: key, Step: routingKey, Status: "event", Message: string(body)})
	return nil
}
