package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/checking-account-ledger/internal/api"
	"github.com/sheikh-saqib/checking-account-ledger/internal/bootstrap"
	"github.com/sheikh-saqib/checking-account-ledger/internal/config"
	"github.com/sheikh-saqib/checking-account-ledger/internal/logger"
)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logr)
	if err != nil {
		app.Close()
		logr.Fatal("failed to start", zap.Error(err))
	}
	defer app.Close()

	// With the in-memory queue nobody else can drain it, so the applier runs here.
	var workers sync.WaitGroup
	if app.InProcessQueue() {
		for _, c := range app.Consumers() {
			workers.Add(1)
			go func() {
				defer workers.Done()
				if err := c.Consume(ctx, app.Worker); err != nil {
					logr.Error("consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(logr.Named("http"),
			api.NewTransactionHandler(app.Intake, logr.Named("http")),
			api.NewAccountHandler(app.Ledger, app.Liability, logr.Named("http")),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logr.Error("http shutdown", zap.Error(err))
		}
	}()

	logr.Info("starting server",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Driver),
		zap.String("queue", cfg.Queue.Driver),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Error("http server failed", zap.Error(err))
		stop()
	}

	workers.Wait()
	logr.Info("server stopped")
}
