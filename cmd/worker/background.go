package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/holo/internal/config"
	"github.com/jmehdipour/holo/internal/gateway"
	"github.com/jmehdipour/holo/internal/repository"
	"github.com/jmehdipour/holo/internal/service/reminders"
	"github.com/jmehdipour/holo/internal/util"
	"github.com/jmehdipour/holo/internal/worker"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Background is the polling monitor plus the startup hooks of the modules
// that own background items.
type Background struct {
	Monitor   *worker.Monitor
	Reminders *reminders.Processor
	log       *zap.Logger
}

// ReminderOptions maps the reminders config section.
func ReminderOptions(cfg config.RemindersConfig) reminders.Options {
	return reminders.Options{
		Enabled:          cfg.Enabled,
		PerUserMax:       cfg.PerUserMax,
		MessageLengthMin: cfg.MessageLengthMin,
		MessageLengthMax: cfg.MessageLengthMax,
		BelatedAfter:     time.Duration(cfg.BelatedAfterSeconds) * time.Second,
		MaxDueTime:       time.Duration(cfg.MaxDueTimeMinutes) * time.Minute,
		MaxInterval:      time.Duration(cfg.MaxIntervalMinutes) * time.Minute,
		PageSize:         cfg.PageSize,
	}
}

// NewGateway builds the chat platform client from config.
func NewGateway(cfg config.GatewayConfig, log *zap.Logger) *gateway.Client {
	return gateway.NewClient(gateway.Options{
		BaseURL:       cfg.BaseURL,
		Token:         cfg.Token,
		Timeout:       cfg.Timeout,
		FailThreshold: cfg.Breaker.FailThreshold,
		OpenFor:       cfg.Breaker.OpenFor,
	}, log)
}

// NewBackground wires the item store, the processor registry and the monitor.
func NewBackground(cfg config.Config, dbx *sqlx.DB, delivery reminders.Delivery, log *zap.Logger) (*Background, error) {
	codec := worker.NewCodec()
	if err := reminders.RegisterPayloads(codec); err != nil {
		return nil, err
	}

	clock := util.SystemClock{}
	itemsRepo := repository.NewItemsRepository(dbx, codec, clock)
	remindersRepo := repository.NewRemindersRepository(dbx)
	tx := repository.NewTransactor(dbx)

	proc := reminders.NewProcessor(remindersRepo, itemsRepo, tx, delivery, clock, ReminderOptions(cfg.Reminders), log)

	registry, err := worker.NewRegistry(proc.Worker())
	if err != nil {
		return nil, fmt.Errorf("build processor registry: %w", err)
	}

	monitor := worker.NewMonitor(itemsRepo, registry, codec, worker.Options{
		PollingInterval:   cfg.BackgroundProcessing.PollingInterval(),
		MaxConcurrency:    cfg.BackgroundProcessing.MaxConcurrency,
		ProcessingTimeout: cfg.BackgroundProcessing.ProcessingTimeout(),
	}, log)

	return &Background{Monitor: monitor, Reminders: proc, log: log}, nil
}

// Run enqueues the singleton items and blocks in the polling monitor until
// ctx is done or a poll cycle fails.
func (b *Background) Run(ctx context.Context) error {
	if err := b.Reminders.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap reminders: %w", err)
	}
	return b.Monitor.Run(ctx)
}
