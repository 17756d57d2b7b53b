package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-laundry-orders/internal/config"
	kafkax "github.com/ariefcatur/go-laundry-orders/internal/kafka"
	"github.com/ariefcatur/go-laundry-orders/internal/logging"
	"github.com/ariefcatur/go-laundry-orders/internal/notifier"
	"github.com/ariefcatur/go-laundry-orders/internal/notify"
	"github.com/ariefcatur/go-laundry-orders/internal/postgres"
	"github.com/ariefcatur/go-laundry-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("service", cfg.ServiceName+"-notifier"))

	if len(cfg.KafkaBrokers) == 0 || cfg.PostgresDSN == "" {
		logger.Fatal("notifier needs KAFKA_BROKERS and POSTGRES_DSN")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Open(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis dedup is optional; the sink ignores repeated event ids anyway.
	var dedup notifier.Deduper = redisx.NewMemoryDedup()
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		dedup = &redisx.Dedup{Redis: rdb, Service: "notifier"}
	}

	svc := &notifier.Service{
		Sink:  &notify.PostgresSink{DB: db},
		Dedup: dedup,
		Log:   logger,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, notify.TopicNotifications, cfg.NotifierWorkers, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("notifier consumer started",
			zap.String("group", cfg.NotifierGroup),
			zap.String("topic", notify.TopicNotifications),
			zap.Int("workers", cfg.NotifierWorkers),
		)
		if err := cons.Start(ctx, svc.HandleNotification); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down consumer")
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("consumer did not stop in time")
	}
}
