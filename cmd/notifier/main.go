package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/infra/db"
	"storefront/internal/infra/mq"
	"storefront/internal/infra/receipt"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/notifier"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.GoEnv, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("notifier")

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("notifier stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	if cfg.RabbitMQURL == "" {
		return errors.New("RABBITMQ_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Connect(cfg.DSN(), log)
	if err != nil {
		return err
	}

	conn, err := mq.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange)
	if err != nil {
		return err
	}
	defer conn.Close()

	n := notifier.New(
		infraRepo.NewOrderGormRepository(gormDB),
		infraRepo.NewOrderItemGormRepository(gormDB),
		receipt.NewRenderer("Storefront"),
		cfg.ReceiptDir,
		log,
	)

	log.Info("waiting for order events", zap.String("queue", notifier.QueueName), zap.String("dir", cfg.ReceiptDir))
	return conn.Consume(ctx, notifier.QueueName, notifier.RoutingKeys, log, n.Handle)
}
