package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/therapyassist/therapy-api/internal/config"
	"github.com/therapyassist/therapy-api/internal/email"
	"github.com/therapyassist/therapy-api/internal/receipt"
	"github.com/therapyassist/therapy-api/internal/service/notification"
	internalworker "github.com/therapyassist/therapy-api/internal/worker"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/messaging"
	"github.com/therapyassist/therapy-api/pkg/messaging/redis"
	"github.com/therapyassist/therapy-api/pkg/metrics"
	"github.com/therapyassist/therapy-api/pkg/worker"
)

// NewBroker connects to the Redis broker described by cfg.
func NewBroker(cfg config.RedisConfig) (*redis.RedisBroker, error) {
	return redis.NewRedisBroker(redis.Config{
		URL:          cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}, &log.Logger)
}

// RunOutbox relays outbox events to broker and purges old ones until ctx is
// done. With SMTP enabled it also emails a receipt for every new payment.
func RunOutbox(ctx context.Context, cfg *config.Config, repos *Repositories, broker messaging.Broker, m *metrics.Metrics, appLogger *logger.Logger) error {
	processor, err := worker.NewOutboxProcessor(
		repos.Tx,
		repos.Outbox,
		broker,
		worker.OutboxProcessorConfig{
			BatchSize:    cfg.Outbox.BatchSize,
			PollInterval: cfg.Outbox.PollInterval,
			MaxRetries:   cfg.Outbox.MaxRetries,
			RetryBackoff: cfg.Outbox.RetryBackoff,
		},
		appLogger.WithFields(map[string]interface{}{"component": "outbox_processor"}),
		m,
	)
	if err != nil {
		return err
	}

	cleanup := internalworker.NewOutboxCleanupWorker(
		repos.Outbox,
		cfg.Outbox.Retention,
		cfg.Outbox.CleanupInterval,
		appLogger.WithFields(map[string]interface{}{"component": "outbox_cleanup"}),
		m,
	)

	if cfg.SMTP.Enabled {
		notifier := notification.NewReceiptNotifier(
			repos.Payments,
			receipt.NewRenderer(cfg.Practice.Name),
			email.NewSMTPService(cfg.SMTP),
			cfg.Practice.Name,
			appLogger.WithFields(map[string]interface{}{"component": "receipts"}),
			m,
		)
		if err := notifier.Subscribe(ctx, messaging.NewBrokerAdapter(broker)); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	wg.Wait()
	return nil
}
