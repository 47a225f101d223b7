// Command mailer drains the notification topic and delivers each message over SMTP.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ritaorion/district5b-portal/internal/core/port"
	"github.com/ritaorion/district5b-portal/internal/infra/config"
	kafkainfra "github.com/ritaorion/district5b-portal/internal/infra/kafka"
	"github.com/ritaorion/district5b-portal/internal/infra/logger"
	"github.com/ritaorion/district5b-portal/internal/infra/mail"
	"github.com/ritaorion/district5b-portal/internal/infra/notify"
	redisinfra "github.com/ritaorion/district5b-portal/internal/infra/redis"
	redisrepo "github.com/ritaorion/district5b-portal/internal/repository/redis"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Error("mailer stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, zl *zap.Logger) error {
	renderer, err := notify.NewRenderer()
	if err != nil {
		return err
	}
	sender := notify.NewMailNotifier(renderer, mail.NewSender(cfg.SMTP, zl), zl)

	var ledger port.DispatchLedger
	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(ctx, cfg.Redis, zl)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		ledger = redisrepo.NewDispatchLedger(client.Client(), cfg.Redis.LedgerPrefix, cfg.Redis.LedgerTTL)
	} else {
		zl.Warn("redis disabled, redelivered notifications may be sent twice")
	}

	group, err := kafkainfra.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)
	if err != nil {
		return err
	}
	defer func() { _ = group.Close() }()

	go func() {
		for err := range group.Errors() {
			zl.Warn("consumer group error", zap.Error(err))
		}
	}()

	topic := cfg.NotificationTopic()
	zl.Info("mailer started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", topic),
		zap.String("group", cfg.Kafka.ConsumerGroup),
	)

	consumer := kafkainfra.NewNotificationConsumer(sender, ledger, zl, kafkainfra.NotificationConsumerOptions{})
	return kafkainfra.RunConsumerGroup(ctx, group, []string{topic}, consumer, zl)
}
