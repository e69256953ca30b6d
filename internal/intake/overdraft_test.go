package intake

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/checking-account-ledger/internal/cache/memory"
	"github.com/sheikh-saqib/checking-account-ledger/internal/ledger"
	"github.com/sheikh-saqib/checking-account-ledger/internal/liability"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
	storememory "github.com/sheikh-saqib/checking-account-ledger/internal/storage/memory"
)

// pipeline wires intake to the in-process validator and a real ledger so
// withdrawals go through the same check-then-apply path as in production.
type pipeline struct {
	ledger  *ledger.Ledger
	manager *Manager
	queue   *recordingQueue
}

func newPipeline() *pipeline {
	l := ledger.NewLedger(storememory.NewMemoryLedgerStore(),
		ledger.WithMaxCASRetries(1000),
		ledger.WithCASBackoff(time.Microsecond, time.Millisecond),
	)
	queue := &recordingQueue{}
	return &pipeline{
		ledger:  l,
		manager: NewManager(memory.NewCache(), liability.NewValidator(l), queue),
		queue:   queue,
	}
}

// drain applies everything intake queued so far and empties the queue.
func (p *pipeline) drain(t *testing.T, concurrent bool) []models.ApplyOutcome {
	t.Helper()
	p.queue.mu.Lock()
	reqs := p.queue.sent
	p.queue.sent = nil
	p.queue.mu.Unlock()

	outcomes := make([]models.ApplyOutcome, len(reqs))
	errs := make([]error, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		run := func() { outcomes[i], errs[i] = p.ledger.Apply(context.Background(), req) }
		if !concurrent {
			run()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return outcomes
}

func (p *pipeline) assertWithinFloor(t *testing.T, accountID string) *models.AccountLedger {
	t.Helper()
	account, err := p.ledger.GetAccountInfo(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, account.Balance.GreaterThanOrEqual(account.Floor()),
		"balance %s below floor %s", account.Balance, account.Floor())
	return account
}

func countApplied(outcomes []models.ApplyOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Applied() {
			n++
		}
	}
	return n
}

func TestOverdraft_SequentialWithdrawalsOnFreshAccount(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := p.manager.Withdraw(ctx, fmt.Sprintf("wd-%d", i), "fresh", decimal.NewFromInt(800))
		require.NoError(t, err)
		require.Equal(t, models.IntakeAccepted, res.Status)
		assert.Empty(t, res.Ticket, "nothing to pin to yet")
	}

	outcomes := p.drain(t, false)
	assert.Equal(t, 1, countApplied(outcomes))
	assert.Equal(t, models.ApplyStatusOverdraftLimit, outcomes[1].Status)
	assert.Equal(t, models.ApplyStatusOverdraftLimit, outcomes[2].Status)

	account := p.assertWithinFloor(t, "fresh")
	assert.Equal(t, "-800", account.Balance.String())
}

func TestOverdraft_SequentialWithdrawalsOnExistingAccount(t *testing.T) {
	p := newPipeline()
	ctx := context.Background()

	_, err := p.manager.Deposit(ctx, "seed", "acc-1", decimal.NewFromInt(100))
	require.NoError(t, err)
	p.drain(t, false)

	// Each fits alone (100 - 600 >= -1000), together they would not.
	for _, id := range []string{"wd-1", "wd-2"} {
		res, err := p.manager.Withdraw(ctx, id, "acc-1", decimal.NewFromInt(600))
		require.NoError(t, err)
		require.Equal(t, models.IntakeAccepted, res.Status)
		require.NotEmpty(t, res.Ticket)
	}

	outcomes := p.drain(t, false)
	assert.Equal(t, models.ApplyStatusApplied, outcomes[0].Status)
	assert.Equal(t, models.ApplyStatusBalanceChanged, outcomes[1].Status)

	account := p.assertWithinFloor(t, "acc-1")
	assert.Equal(t, "-500", account.Balance.String())

	// Once applied, intake itself refuses what no longer fits.
	res, err := p.manager.Withdraw(ctx, "wd-3", "acc-1", decimal.NewFromInt(600))
	require.NoError(t, err)
	assert.Equal(t, models.IntakeDenied, res.Status)
}

func TestOverdraft_ConcurrentWithdrawals(t *testing.T) {
	for _, tc := range []struct {
		name string
		seed int64
	}{
		{name: "fresh account"},
		{name: "existing account", seed: 250},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := newPipeline()
			ctx := context.Background()

			if tc.seed > 0 {
				_, err := p.manager.Deposit(ctx, "seed", "acc-1", decimal.NewFromInt(tc.seed))
				require.NoError(t, err)
				p.drain(t, false)
			}

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := p.manager.Withdraw(ctx, fmt.Sprintf("wd-%d", i), "acc-1", decimal.NewFromInt(300))
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			outcomes := p.drain(t, true)
			require.Len(t, outcomes, 20)

			account := p.assertWithinFloor(t, "acc-1")
			applied := countApplied(outcomes)
			assert.GreaterOrEqual(t, applied, 1)
			expected := decimal.NewFromInt(tc.seed - 300*int64(applied))
			assert.True(t, expected.Equal(account.Balance), "balance %s, expected %s", account.Balance, expected)
		})
	}
}
