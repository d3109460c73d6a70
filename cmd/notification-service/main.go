package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nazeru/tx-lab-shop-go/internal/notify"
	"github.com/nazeru/tx-lab-shop-go/pkg/kafka"
	"github.com/nazeru/tx-lab-shop-go/pkg/logging"
	"github.com/nazeru/tx-lab-shop-go/pkg/metrics"
	"github.com/nazeru/tx-lab-shop-go/pkg/rabbitmq"
)

const serviceName = "notification-service"

type cfg struct {
	Port         string
	DatabaseURL  string
	Broker       string // kafka | rabbitmq
	KafkaBrokers string
	Topic        string
	GroupID      string
	RabbitMQURL  string
	Queue        string
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()

	store := notify.PGStore{Pool: pool}
	if err := store.Migrate(connectCtx); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}
	handler := &notify.Handler{Store: store, Service: serviceName}

	switch cfg.Broker {
	case "rabbitmq":
		go consumeRabbit(ctx, cfg, handler)
	default:
		client := kafka.NewClient(cfg.KafkaBrokers)
		if client.Enabled() {
			go consumeKafka(ctx, client, cfg, handler)
		}
	}

	reg := prometheus.NewRegistry()
	srvMetrics := metrics.NewServerMetrics(reg, serviceName)

	mux := http.NewServeMux()
	mux.Handle("GET /health", srvMetrics.Wrap("health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "db_error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})))
	mux.Handle("GET /metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("%s listening on :%s (broker=%s)", serviceName, cfg.Port, cfg.Broker)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server error: %v", err)
	}
}

func readCfg() (cfg, error) {
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if db == "" {
		return cfg{}, errors.New("DATABASE_URL is required")
	}
	return cfg{
		Port:         getenv("PORT", "8080"),
		DatabaseURL:  db,
		Broker:       strings.ToLower(getenv("EVENTS_BROKER", "kafka")),
		KafkaBrokers: getenv("KAFKA_BROKERS", ""),
		Topic:        getenv("KAFKA_TOPIC", "shop.events"),
		GroupID:      getenv("KAFKA_GROUP_ID", serviceName),
		RabbitMQURL:  getenv("RABBITMQ_URL", ""),
		Queue:        getenv("RABBITMQ_QUEUE", "notifications"),
	}, nil
}

func consumeKafka(ctx context.Context, client *kafka.Client, cfg cfg, h *notify.Handler) {
	reader := client.NewReader(cfg.Topic, cfg.GroupID)
	defer reader.Close()
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Log(logging.Err(serviceName, "kafka_read", err))
			time.Sleep(2 * time.Second)
			continue
		}
		if err := h.Handle(ctx, msg.Value); err != nil {
			logging.Log(logging.Err(serviceName, "handle", err))
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logging.Log(logging.Err(serviceName, "kafka_commit", err))
		}
	}
}

func consumeRabbit(ctx context.Context, cfg cfg, h *notify.Handler) {
	conn, ch, err := rabbitmq.SetupConn(cfg.RabbitMQURL)
	if err != nil {
		logging.Log(logging.Err(serviceName, "rabbitmq_connect", err))
		return
	}
	defer conn.Close()
	defer ch.Close()

	err = rabbitmq.NewSubscriber(ch).Subscribe(ctx, cfg.Queue, "order.#", func(body []byte) error {
		return h.Handle(ctx, body)
	})
	if err != nil && ctx.Err() == nil {
		logging.Log(logging.Err(serviceName, "rabbitmq_subscribe", err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
