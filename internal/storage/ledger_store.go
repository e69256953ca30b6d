package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/checking-account-ledger/internal/config"
	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/storage/memory"
	mongostore "github.com/sheikh-saqib/checking-account-ledger/internal/storage/mongo"
	mysqlstore "github.com/sheikh-saqib/checking-account-ledger/internal/storage/mysql"
	"github.com/sheikh-saqib/checking-account-ledger/internal/storage/postgres"
)

// CloseFunc releases the connections held by a store.
type CloseFunc func() error

func noop() error { return nil }

// OpenLedgerStore connects the ledger store selected by cfg.Driver.
func OpenLedgerStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (interfaces.LedgerStore, CloseFunc, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.NewMemoryLedgerStore(), noop, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewPostgresLedgerStore(db), db.Close, nil

	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error { return client.Disconnect(context.Background()) }
		return mongostore.New(client.Database(cfg.MongoDatabase)), closeFn, nil

	case config.DriverMySQL:
		client, err := mysqlstore.NewClient(ctx, cfg.MySQL, log)
		if err != nil {
			return nil, nil, err
		}
		return mysqlstore.NewMySQLLedgerStore(client), client.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
