package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client wraps a GORM DB handle.
type Client struct {
	db *gorm.DB
}

const (
	connectTries    = 10
	connectInterval = 2 * time.Second
)

// NewClient opens a GORM MySQL connection, retrying while the server comes up,
// and applies the pool settings from cfg.
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	gormConfig := &gorm.Config{
		// Every ledger write is a single conditional statement, no implicit transaction needed.
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 newLogger(cfg.LogLevel),
	}

	db, err := connect(ctx, log, connectTries, connectInterval, func() (*gorm.DB, error) {
		db, err := gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
		if err != nil {
			return nil, err
		}
		rawDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := rawDB.PingContext(ctx); err != nil {
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}

	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Client{db: db}, nil
}

// DB returns the underlying *gorm.DB.
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Close closes the connection pool.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "info":
		logLevel = logger.Info
	case "warn":
		logLevel = logger.Warn
	case "error":
		logLevel = logger.Error
	case "silent":
		logLevel = logger.Silent
	default:
		logLevel = logger.Error
	}

	return logger.Default.LogMode(logLevel)
}

// connect calls open until it succeeds, waiting interval between attempts.
func connect(ctx context.Context, log *zap.Logger, tries uint, interval time.Duration, open func() (*gorm.DB, error)) (*gorm.DB, error) {
	attempt := 0
	db, err := backoff.Retry(ctx, func() (*gorm.DB, error) {
		attempt++
		return open()
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("mysql not reachable, retrying",
				zap.Int("attempt", attempt),
				zap.Uint("max_attempts", tries),
				zap.Duration("retry_in", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", attempt, err)
	}
	return db, nil
}
