package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/checking-account-ledger/internal/bootstrap"
	"github.com/sheikh-saqib/checking-account-ledger/internal/config"
	"github.com/sheikh-saqib/checking-account-ledger/internal/logger"
)

// The worker applies queued transactions. It only makes sense with a shared
// queue; with QUEUE_DRIVER=memory the server runs the applier itself.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logr.Sync()

	if cfg.Queue.Driver != config.DriverKafka {
		logr.Fatal("worker needs QUEUE_DRIVER=kafka", zap.String("queue", cfg.Queue.Driver))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logr)
	if err != nil {
		app.Close()
		logr.Fatal("failed to start", zap.Error(err))
	}
	defer app.Close()

	consumers := app.Consumers()
	logr.Info("starting worker",
		zap.Strings("brokers", cfg.Queue.KafkaBrokers),
		zap.String("topic", cfg.Queue.RequestTopic),
		zap.String("group", cfg.Queue.GroupID),
		zap.Int("consumers", len(consumers)),
	)

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Consume(ctx, app.Worker); err != nil {
				logr.Error("consumer stopped", zap.Error(err))
				stop()
			}
		}()
	}
	wg.Wait()
	logr.Info("worker stopped")
}
