package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/checking-account-ledger/internal/config"
	eventsmemory "github.com/sheikh-saqib/checking-account-ledger/internal/events/memory"
	"github.com/sheikh-saqib/checking-account-ledger/internal/liability"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models/events"
)

func TestApp_InMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	cfg.Ledger.DefaultOverdraftLimit = decimal.NewFromInt(50)

	app, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()
	require.True(t, app.InProcessQueue())

	consumers := app.Consumers()
	require.Len(t, consumers, 1)
	go consumers[0].Consume(ctx, app.Worker)

	res, err := app.Intake.Deposit(ctx, "tx-1", "acc-1", decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Equal(t, models.IntakeAccepted, res.Status)

	pub := app.Publisher.(*eventsmemory.Publisher)
	require.Eventually(t, func() bool {
		return len(pub.Events(cfg.Queue.CallbackTopic)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// 100 + 50 overdraft: 160 is over the floor, 150 is not.
	denied, err := app.Intake.Withdraw(ctx, "wd-1", "acc-1", decimal.NewFromInt(160))
	require.NoError(t, err)
	assert.Equal(t, models.IntakeDenied, denied.Status)

	allowed, err := app.Intake.Withdraw(ctx, "wd-2", "acc-1", decimal.NewFromInt(150))
	require.NoError(t, err)
	require.Equal(t, models.IntakeAccepted, allowed.Status)

	require.Eventually(t, func() bool {
		return len(pub.Events(cfg.Queue.CallbackTopic)) == 2
	}, 2*time.Second, 5*time.Millisecond)

	last := pub.Events(cfg.Queue.CallbackTopic)[1].(events.AccountCallback)
	assert.True(t, last.IsSuccessful)
	assert.Equal(t, models.ActionWithdraw, last.ActionName)

	balance, _, err := app.Ledger.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "-50", balance.String())
}

func TestApp_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Cache.Driver = config.DriverRedis
	cfg.Cache.RedisAddr = mr.Addr()

	app, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	res, err := app.Intake.Deposit(context.Background(), "tx-1", "acc-1", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Equal(t, models.IntakeAccepted, res.Status)
	assert.True(t, mr.Exists("ledger:idempotency:tx-1"))
}

func TestApp_RemoteLiability(t *testing.T) {
	cfg := config.Default()
	cfg.Liability.URL = "http://validator.internal"

	app, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &liability.Client{}, app.Liability)
}
