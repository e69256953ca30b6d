// Package bootstrap assembles the ledger components selected by configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	cachememory "github.com/sheikh-saqib/checking-account-ledger/internal/cache/memory"
	cacheredis "github.com/sheikh-saqib/checking-account-ledger/internal/cache/redis"
	"github.com/sheikh-saqib/checking-account-ledger/internal/config"
	eventskafka "github.com/sheikh-saqib/checking-account-ledger/internal/events/kafka"
	eventsmemory "github.com/sheikh-saqib/checking-account-ledger/internal/events/memory"
	"github.com/sheikh-saqib/checking-account-ledger/internal/intake"
	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/ledger"
	"github.com/sheikh-saqib/checking-account-ledger/internal/liability"
	"github.com/sheikh-saqib/checking-account-ledger/internal/storage"
	"github.com/sheikh-saqib/checking-account-ledger/internal/worker"
)

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Ledger    *ledger.Ledger
	Liability interfaces.LiabilityChecker
	Intake    *intake.Manager
	Queue     interfaces.Queue
	Publisher interfaces.EventPublisher
	Worker    *worker.Worker

	memoryQueue *eventsmemory.Queue
	closers     []func() error
}

// New connects every backend named in cfg. Call Close when done, also after an error.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	store, closeStore, err := storage.OpenLedgerStore(ctx, cfg.Store, log)
	if err != nil {
		return a, fmt.Errorf("open ledger store: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	a.Ledger = ledger.NewLedger(store,
		ledger.WithLogger(log.Named("ledger")),
		ledger.WithDefaultOverdraftLimit(cfg.Ledger.DefaultOverdraftLimit),
		ledger.WithMaxCASRetries(cfg.Ledger.MaxCASRetries),
	)

	if cfg.Liability.URL != "" {
		a.Liability = liability.NewClient(cfg.Liability.URL, liability.WithClientLogger(log.Named("liability")))
	} else {
		a.Liability = liability.NewValidator(a.Ledger,
			liability.WithValidatorLogger(log.Named("liability")),
			liability.WithDefaultOverdraftLimit(cfg.Ledger.DefaultOverdraftLimit),
		)
	}

	cache, err := a.openCache(ctx)
	if err != nil {
		return a, err
	}

	switch cfg.Queue.Driver {
	case config.DriverKafka:
		q := eventskafka.NewQueue(cfg.Queue.KafkaBrokers, cfg.Queue.RequestTopic)
		p := eventskafka.NewPublisher(cfg.Queue.KafkaBrokers)
		a.closers = append(a.closers, q.Close, p.Close)
		a.Queue, a.Publisher = q, p
	default:
		a.memoryQueue = eventsmemory.NewQueue(
			eventsmemory.WithMaxDeliveries(cfg.Queue.MaxDeliveries),
			eventsmemory.WithConcurrency(cfg.Queue.Concurrency),
			eventsmemory.WithLogger(log.Named("queue")),
		)
		a.Queue = a.memoryQueue
		a.Publisher = eventsmemory.NewPublisher(eventsmemory.WithPublisherLogger(log.Named("callbacks")))
	}

	a.Intake = intake.NewManager(cache, a.Liability, a.Queue,
		intake.WithLogger(log.Named("intake")),
		intake.WithIdempotencyTTL(cfg.Cache.TTL),
	)
	a.Worker = worker.New(a.Ledger, a.Publisher,
		worker.WithLogger(log.Named("worker")),
		worker.WithTopic(cfg.Queue.CallbackTopic),
	)
	return a, nil
}

func (a *App) openCache(ctx context.Context) (interfaces.IdempotencyCache, error) {
	if a.Config.Cache.Driver != config.DriverRedis {
		return cachememory.NewCache(), nil
	}
	client, err := cacheredis.Connect(ctx, a.Config.Cache.RedisAddr, a.Config.Cache.RedisPassword, a.Config.Cache.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return cacheredis.NewCache(client), nil
}

// Consumers returns the queue consumers this process should run: the
// in-process queue itself, or one Kafka group member per configured worker.
func (a *App) Consumers() []interfaces.Consumer {
	if a.memoryQueue != nil {
		return []interfaces.Consumer{a.memoryQueue}
	}

	n := max(a.Config.Queue.Concurrency, 1)
	consumers := make([]interfaces.Consumer, 0, n)
	for i := 0; i < n; i++ {
		c := eventskafka.NewConsumer(eventskafka.ConsumerConfig{
			Brokers:         a.Config.Queue.KafkaBrokers,
			Topic:           a.Config.Queue.RequestTopic,
			GroupID:         a.Config.Queue.GroupID,
			DeadLetterTopic: a.Config.Queue.DeadLetterTopic,
			MaxDeliveries:   a.Config.Queue.MaxDeliveries,
		}, a.Logger.Named("consumer"))
		a.closers = append(a.closers, c.Close)
		consumers = append(consumers, c)
	}
	return consumers
}

// InProcessQueue reports whether the worker must run in this process to drain the queue.
func (a *App) InProcessQueue() bool {
	return a.memoryQueue != nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
