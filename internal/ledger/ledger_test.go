package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
	"github.com/sheikh-saqib/checking-account-ledger/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLedger(store *memory.MemoryLedgerStore) *Ledger {
	return NewLedger(store,
		WithMaxCASRetries(1000),
		WithCASBackoff(time.Microsecond, time.Millisecond),
	)
}

func apply(t *testing.T, l *Ledger, id, account, amount, ticket string) models.ApplyOutcome {
	t.Helper()
	out, err := l.Apply(context.Background(), models.ApplyRequest{
		TransactionID: id,
		AccountID:     account,
		Amount:        dec(amount),
		Ticket:        ticket,
	})
	require.NoError(t, err)
	return out
}

func TestApply_FirstDepositCreatesAccount(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	l := newTestLedger(store)

	out := apply(t, l, "tx-1", "acc-1", "100", "")
	assert.Equal(t, models.ApplyStatusApplied, out.Status)
	assert.Equal(t, "100", out.Balance.String())

	account, err := l.GetAccountInfo(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.True(t, account.OverdraftLimit.Equal(models.DefaultOverdraftLimit))
	assert.Equal(t, []string{"tx-1"}, account.AppliedTransactionIDs)
}

func TestApply_SameTransactionTwiceIsAlreadyProcessed(t *testing.T) {
	l := newTestLedger(memory.NewMemoryLedgerStore())

	first := apply(t, l, "tx-1", "acc-1", "25.50", "")
	second := apply(t, l, "tx-1", "acc-1", "25.50", "")

	assert.Equal(t, models.ApplyStatusApplied, first.Status)
	assert.Equal(t, models.ApplyStatusAlreadyProcessed, second.Status)
	assert.Equal(t, models.ReasonAlreadyProcessed, second.Reason)

	balance, _, err := l.GetBalance(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "25.5", balance.String())
}

func TestApply_InvalidRequest(t *testing.T) {
	l := newTestLedger(memory.NewMemoryLedgerStore())

	_, err := l.Apply(context.Background(), models.ApplyRequest{TransactionID: "tx-1", AccountID: "acc-1"})
	assert.ErrorIs(t, err, models.ErrInvalidApplyRequest)
}

func TestApply_StaleTicketIsRejected(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())

	apply(t, l, "seed", "acc-1", "100", "")
	_, ticket, err := l.GetBalance(ctx, "acc-1")
	require.NoError(t, err)

	// Balance moves after the ticket was issued.
	apply(t, l, "dep", "acc-1", "5", "")

	out := apply(t, l, "wd", "acc-1", "-10", ticket)
	assert.Equal(t, models.ApplyStatusBalanceChanged, out.Status)
	assert.Equal(t, models.ReasonBalanceChanged, out.Reason)

	account, err := l.GetAccountInfo(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "105", account.Balance.String())
	assert.False(t, account.HasApplied("wd"))
}

func TestApply_CurrentTicketIsApplied(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())

	apply(t, l, "seed", "acc-1", "100", "")
	_, ticket, err := l.GetBalance(ctx, "acc-1")
	require.NoError(t, err)

	out := apply(t, l, "wd", "acc-1", "-60", ticket)
	assert.Equal(t, models.ApplyStatusApplied, out.Status)
	assert.Equal(t, "40", out.Balance.String())
}

func TestApply_ConcurrentWithdrawalInvalidatesValidatedOne(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())

	apply(t, l, "seed", "acc-1", "100", "")
	_, err := l.SetOverdraftLimit(ctx, "acc-1", dec("50"))
	require.NoError(t, err)

	// Both withdrawals are validated against the same version.
	balance, ticket, err := l.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	require.True(t, balance.Sub(dec("140")).GreaterThanOrEqual(dec("-50")))

	small := apply(t, l, "wd-30", "acc-1", "-30", ticket)
	require.Equal(t, models.ApplyStatusApplied, small.Status)
	assert.Equal(t, "70", small.Balance.String())

	big := apply(t, l, "wd-140", "acc-1", "-140", ticket)
	assert.Equal(t, models.ApplyStatusBalanceChanged, big.Status)

	balance, _, err = l.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "70", balance.String())
}

func TestApply_ConcurrentDepositsAllLand(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := l.Apply(ctx, models.ApplyRequest{
				TransactionID: fmt.Sprintf("tx-%d", i),
				AccountID:     "acc-1",
				Amount:        decimal.NewFromInt(2),
			})
			if err == nil && !out.Applied() {
				err = fmt.Errorf("tx-%d: %s", i, out.Status)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	account, err := l.GetAccountInfo(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "100", account.Balance.String())
	assert.Len(t, account.AppliedTransactionIDs, n)
}

func TestApply_ConcurrentDuplicatesApplyOnce(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())

	const n = 20
	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := l.Apply(ctx, models.ApplyRequest{TransactionID: "tx-1", AccountID: "acc-1", Amount: dec("10")})
			if assert.NoError(t, err) && out.Applied() {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, applied.Load())
	balance, _, err := l.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "10", balance.String())
}

func TestApply_BalanceIsSumOfAppliedAmounts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryLedgerStore()
	l := newTestLedger(store)

	apply(t, l, "a", "acc-1", "10.10", "")
	apply(t, l, "b", "acc-1", "-3.05", "")
	apply(t, l, "a", "acc-1", "10.10", "")
	_, ticket, err := l.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	apply(t, l, "c", "acc-1", "1", "")
	apply(t, l, "d", "acc-1", "-2", ticket) // stale, not applied

	account, err := l.GetAccountInfo(ctx, "acc-1")
	require.NoError(t, err)
	records, err := store.GetTransactionsByAccount(ctx, "acc-1", 0)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, r := range records {
		if account.HasApplied(r.TransactionID) {
			sum = sum.Add(r.Amount)
		}
	}
	assert.True(t, sum.Equal(account.Balance), "sum %s balance %s", sum, account.Balance)
	assert.Equal(t, "8.05", account.Balance.String())
	assert.Len(t, records, 4, "rejected attempts still leave a record")
}

// conflictingStore fails every conditional replace as if another writer always won.
type conflictingStore struct {
	*memory.MemoryLedgerStore
	replaces atomic.Int32
}

func (s *conflictingStore) ReplaceAccount(context.Context, *models.AccountLedger, string) error {
	s.replaces.Add(1)
	return models.ErrVersionMismatch
}

func TestApply_GivesUpAfterMaxRetries(t *testing.T) {
	store := &conflictingStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
	l := NewLedger(store, WithMaxCASRetries(4), WithCASBackoff(time.Microsecond, time.Microsecond))

	_, err := l.Apply(context.Background(), models.ApplyRequest{TransactionID: "tx-1", AccountID: "acc-1", Amount: dec("1")})
	assert.ErrorIs(t, err, ErrConcurrencyRetriesExhausted)
	assert.EqualValues(t, 4, store.replaces.Load())
}

func TestApply_TicketMismatchOnWriteIsNotRetried(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
	require.NoError(t, store.CreateAccount(ctx, models.NewAccountLedger("acc-1", models.DefaultOverdraftLimit)))
	account, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)

	l := NewLedger(store, WithMaxCASRetries(4))
	out, err := l.Apply(ctx, models.ApplyRequest{
		TransactionID: "tx-1",
		AccountID:     "acc-1",
		Amount:        dec("-1"),
		Ticket:        account.VersionToken,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApplyStatusBalanceChanged, out.Status)
	assert.EqualValues(t, 1, store.replaces.Load())
}

// failingStore returns a plain backend error from GetAccount.
type failingStore struct {
	*memory.MemoryLedgerStore
	gets atomic.Int32
}

var errBackend = errors.New("backend unavailable")

func (s *failingStore) GetAccount(context.Context, string) (*models.AccountLedger, error) {
	s.gets.Add(1)
	return nil, errBackend
}

func TestApply_StoreErrorIsNotRetried(t *testing.T) {
	store := &failingStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
	l := NewLedger(store)

	_, err := l.Apply(context.Background(), models.ApplyRequest{TransactionID: "tx-1", AccountID: "acc-1", Amount: dec("1")})
	assert.ErrorIs(t, err, errBackend)
	assert.NotErrorIs(t, err, ErrConcurrencyRetriesExhausted)
	assert.EqualValues(t, 1, store.gets.Load())
}

func TestGetBalance_UnknownAccount(t *testing.T) {
	_, _, err := newTestLedger(memory.NewMemoryLedgerStore()).GetBalance(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
}

func TestGetTransactionHistory_OnlyAppliedNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, amount := range []string{"10", "20", "30"} {
		_, err := l.Apply(ctx, models.ApplyRequest{
			TransactionID: fmt.Sprintf("tx-%d", i+1),
			AccountID:     "acc-1",
			Amount:        dec(amount),
			RequestedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	out, err := l.Apply(ctx, models.ApplyRequest{
		TransactionID: "stale",
		AccountID:     "acc-1",
		Amount:        dec("-1"),
		Ticket:        "old-version",
		RequestedAt:   base.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, models.ApplyStatusBalanceChanged, out.Status)

	history, err := l.GetTransactionHistory(ctx, "acc-1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "tx-3", history[0].TransactionID)
	assert.Equal(t, "tx-2", history[1].TransactionID)

	all, err := l.GetTransactionHistory(ctx, "acc-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSetOverdraftLimit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())

	_, err := l.SetOverdraftLimit(ctx, "acc-1", dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidOverdraftLimit)

	apply(t, l, "tx-1", "acc-1", "5", "")
	_, before, err := l.GetBalance(ctx, "acc-1")
	require.NoError(t, err)

	updated, err := l.SetOverdraftLimit(ctx, "acc-1", dec("250"))
	require.NoError(t, err)
	assert.Equal(t, "250", updated.OverdraftLimit.String())
	assert.Equal(t, "5", updated.Balance.String())
	assert.NotEqual(t, before, updated.VersionToken)

	_, err = l.SetOverdraftLimit(ctx, "acc-2", dec("0"))
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	_, _, err = l.GetBalance(ctx, "acc-2")
	assert.ErrorIs(t, err, models.ErrAccountNotFound, "no account is created on the way")
}

func TestGetTransactionHistory_ApplyOrderWithEqualTimestamps(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	ids := []string{"tx-a", "tx-b", "tx-c", "tx-d", "tx-e", "tx-f"}
	for _, id := range ids {
		_, err := l.Apply(ctx, models.ApplyRequest{TransactionID: id, AccountID: "acc-1", Amount: dec("1"), RequestedAt: at})
		require.NoError(t, err)
	}

	history, err := l.GetTransactionHistory(ctx, "acc-1", 4)
	require.NoError(t, err)
	got := make([]string, 0, len(history))
	for _, r := range history {
		got = append(got, r.TransactionID)
	}
	assert.Equal(t, []string{"tx-f", "tx-e", "tx-d", "tx-c"}, got)
}

func TestApply_TicketlessWithdrawalStopsAtFloor(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(memory.NewMemoryLedgerStore())

	// Both were cleared against an account that did not exist yet.
	first := apply(t, l, "wd-1", "fresh", "-800", "")
	require.Equal(t, models.ApplyStatusApplied, first.Status)

	second := apply(t, l, "wd-2", "fresh", "-800", "")
	assert.Equal(t, models.ApplyStatusOverdraftLimit, second.Status)
	assert.Equal(t, models.ReasonOverdraftLimit, second.Reason)
	assert.Equal(t, "-800", second.Balance.String())

	account, err := l.GetAccountInfo(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, "-800", account.Balance.String())
	assert.False(t, account.HasApplied("wd-2"))
	assert.True(t, account.Balance.GreaterThanOrEqual(account.Floor()))

	// Withdrawing exactly down to the floor is still allowed.
	last := apply(t, l, "wd-3", "fresh", "-200", "")
	assert.Equal(t, models.ApplyStatusApplied, last.Status)
	assert.Equal(t, "-1000", last.Balance.String())
}
