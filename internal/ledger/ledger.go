package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

const (
	DefaultMaxCASRetries  = 25
	DefaultBackoffInitial = 5 * time.Millisecond
	DefaultBackoffMax     = 250 * time.Millisecond
	DefaultHistoryLength  = 10
)

var (
	// ErrConcurrencyRetriesExhausted is returned when an account kept changing under
	// every conditional write attempt. It is transient: redelivering the request is safe.
	ErrConcurrencyRetriesExhausted = errors.New("ledger: concurrency retries exhausted")

	ErrInvalidOverdraftLimit = errors.New("ledger: overdraft limit must not be negative")
)

// Ledger applies transactions to account ledgers exactly once.
// It holds no locks: all coordination between concurrent writers, in this
// process or in others, happens through conditional writes on the ledger's
// version token.
type Ledger struct {
	store  interfaces.LedgerStore // where account ledgers and transaction records live
	logger *zap.Logger

	defaultOverdraftLimit decimal.Decimal
	maxCASRetries         uint
	backoffInitial        time.Duration
	backoffMax            time.Duration

	now func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithDefaultOverdraftLimit sets the limit given to lazily created accounts.
func WithDefaultOverdraftLimit(limit decimal.Decimal) Option {
	return func(l *Ledger) {
		l.defaultOverdraftLimit = limit
	}
}

// WithMaxCASRetries caps the attempts made against a contended account.
func WithMaxCASRetries(n uint) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxCASRetries = n
		}
	}
}

// WithCASBackoff sets the jittered exponential backoff between attempts.
func WithCASBackoff(initial, maxInterval time.Duration) Option {
	return func(l *Ledger) {
		l.backoffInitial = initial
		l.backoffMax = maxInterval
	}
}

// NewLedger is a constructor function that creates a new Ledger instance
// We pass in a storage implementation (MemoryLedgerStore, Postgres, Mongo, MySQL)
func NewLedger(store interfaces.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		store:                 store,
		logger:                zap.NewNop(),
		defaultOverdraftLimit: models.DefaultOverdraftLimit,
		maxCASRetries:         DefaultMaxCASRetries,
		backoffInitial:        DefaultBackoffInitial,
		backoffMax:            DefaultBackoffMax,
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Apply records the transaction and adds its amount to the account balance,
// unless the transaction was already applied.
//
// Rejections (already processed, balance changed since the liability check)
// are outcomes, not errors. A returned error is transient: store failures and
// exhausted concurrency retries are both safe to redeliver.
func (l *Ledger) Apply(ctx context.Context, req models.ApplyRequest) (models.ApplyOutcome, error) {
	if err := req.Validate(); err != nil {
		return models.ApplyOutcome{}, err
	}

	log := l.logger.With(
		zap.String("transaction_id", req.TransactionID),
		zap.String("account_id", req.AccountID),
		zap.Stringer("amount", req.Amount),
		zap.Bool("ticket", req.HasTicket()),
	)

	// Create or update the record first, a redelivery simply overwrites it
	record := models.TransactionRecord{
		TransactionID: req.TransactionID,
		AccountID:     req.AccountID,
		Amount:        req.Amount,
		Timestamp:     req.RequestedAt,
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = l.now().UTC()
	}
	if err := l.store.UpsertTransaction(ctx, record); err != nil {
		return models.ApplyOutcome{}, fmt.Errorf("record transaction %s: %w", req.TransactionID, err)
	}

	outcome, err := retryOnConflict(ctx, l, "apply "+req.TransactionID, func() (models.ApplyOutcome, error) {
		return l.tryApply(ctx, req)
	})
	if err != nil {
		log.Warn("apply failed", zap.Error(err))
		return models.ApplyOutcome{}, err
	}

	switch outcome.Status {
	case models.ApplyStatusApplied:
		log.Info("transaction applied", zap.Stringer("balance", outcome.Balance))
	case models.ApplyStatusAlreadyProcessed:
		log.Info("transaction already processed")
	default:
		log.Info("transaction rejected", zap.String("reason", outcome.Reason))
	}
	return outcome, nil
}

// tryApply is one read-check-write round. A version conflict on a request
// without a ticket is returned as an error so the caller retries the round.
func (l *Ledger) tryApply(ctx context.Context, req models.ApplyRequest) (models.ApplyOutcome, error) {
	account, err := l.loadOrCreate(ctx, req.AccountID)
	if err != nil {
		return models.ApplyOutcome{}, err
	}

	// Idempotency guard: this is the system of record for exactly-once
	if account.HasApplied(req.TransactionID) {
		return models.ApplyOutcome{
			Status:  models.ApplyStatusAlreadyProcessed,
			Reason:  models.ReasonAlreadyProcessed,
			Balance: account.Balance,
		}, nil
	}

	expected := account.VersionToken
	if req.HasTicket() {
		// The liability decision was made against the ticket's version; any
		// other version means the balance may have moved since.
		if req.Ticket != account.VersionToken {
			return balanceChanged(account), nil
		}
		expected = req.Ticket
	}

	next := account.WithTransaction(req.TransactionID, req.Amount)
	// A ticket-less withdrawal was validated against no version at all (the
	// account did not exist yet), so the floor is enforced here instead.
	if req.Amount.IsNegative() && next.Balance.LessThan(next.Floor()) {
		return models.ApplyOutcome{
			Status:  models.ApplyStatusOverdraftLimit,
			Reason:  models.ReasonOverdraftLimit,
			Balance: account.Balance,
		}, nil
	}

	err = l.store.ReplaceAccount(ctx, next, expected)
	switch {
	case err == nil:
		return models.ApplyOutcome{Status: models.ApplyStatusApplied, Balance: next.Balance}, nil
	case errors.Is(err, models.ErrVersionMismatch) && req.HasTicket():
		return balanceChanged(account), nil
	default:
		return models.ApplyOutcome{}, err
	}
}

// loadOrCreate reads the account ledger, creating an empty one on first use.
// When another writer wins the creation race the winner's document is re-read.
func (l *Ledger) loadOrCreate(ctx context.Context, accountID string) (*models.AccountLedger, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, models.ErrAccountNotFound) {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}

	account = models.NewAccountLedger(accountID, l.defaultOverdraftLimit)
	err = l.store.CreateAccount(ctx, account)
	if err == nil {
		l.logger.Info("account ledger created",
			zap.String("account_id", accountID),
			zap.Stringer("overdraft_limit", account.OverdraftLimit),
		)
		return account, nil
	}
	if !errors.Is(err, models.ErrAccountExists) {
		return nil, fmt.Errorf("create account %s: %w", accountID, err)
	}

	account, err = l.store.GetAccount(ctx, accountID)
	if errors.Is(err, models.ErrAccountNotFound) {
		// Not visible yet, let the retry loop come back for it.
		return nil, models.ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	return account, nil
}

func balanceChanged(account *models.AccountLedger) models.ApplyOutcome {
	return models.ApplyOutcome{
		Status:  models.ApplyStatusBalanceChanged,
		Reason:  models.ReasonBalanceChanged,
		Balance: account.Balance,
	}
}

// GetAccountInfo returns the account ledger as currently stored.
func (l *Ledger) GetAccountInfo(ctx context.Context, accountID string) (*models.AccountLedger, error) {
	account, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return account, nil
}

// GetBalance returns the balance together with the version token it was read at.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, string, error) {
	account, err := l.GetAccountInfo(ctx, accountID)
	if err != nil {
		return decimal.Zero, "", err
	}
	return account.Balance, account.VersionToken, nil
}

// GetTransactionHistory returns the last n transactions applied to the account,
// most recently applied first. Records of rejected attempts are left out.
func (l *Ledger) GetTransactionHistory(ctx context.Context, accountID string, n int) ([]models.TransactionRecord, error) {
	if n <= 0 {
		n = DefaultHistoryLength
	}

	account, err := l.GetAccountInfo(ctx, accountID)
	if err != nil {
		return nil, err
	}

	records, err := l.store.GetTransactionsByAccount(ctx, accountID, 0)
	if err != nil {
		return nil, fmt.Errorf("list transactions of %s: %w", accountID, err)
	}
	byID := make(map[string]models.TransactionRecord, len(records))
	for _, record := range records {
		byID[record.TransactionID] = record
	}

	// The applied set is in apply order, which timestamps cannot reproduce.
	applied := account.AppliedTransactionIDs
	history := make([]models.TransactionRecord, 0, min(n, len(applied)))
	for i := len(applied) - 1; i >= 0 && len(history) < n; i-- {
		if record, ok := byID[applied[i]]; ok {
			history = append(history, record)
		}
	}
	return history, nil
}

// SetOverdraftLimit changes how far below zero the account may go.
// The account must already exist.
func (l *Ledger) SetOverdraftLimit(ctx context.Context, accountID string, limit decimal.Decimal) (*models.AccountLedger, error) {
	if limit.IsNegative() {
		return nil, ErrInvalidOverdraftLimit
	}

	updated, err := retryOnConflict(ctx, l, "set overdraft limit "+accountID, func() (*models.AccountLedger, error) {
		account, err := l.GetAccountInfo(ctx, accountID)
		if err != nil {
			return nil, err
		}
		next := account.Clone()
		next.OverdraftLimit = limit
		if err := l.store.ReplaceAccount(ctx, next, account.VersionToken); err != nil {
			return nil, err
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("overdraft limit updated",
		zap.String("account_id", accountID),
		zap.Stringer("overdraft_limit", limit),
	)
	return updated, nil
}

// retryOnConflict runs fn until it stops failing with a version conflict,
// backing off with jitter between attempts and giving up after maxCASRetries.
func retryOnConflict[T any](ctx context.Context, l *Ledger, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.backoffInitial
	b.MaxInterval = l.backoffMax

	attempts := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		res, err := fn()
		if err != nil && !isConflict(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(l.maxCASRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			l.logger.Debug("version conflict, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
			)
		}),
	)
	if err != nil && isConflict(err) {
		return res, fmt.Errorf("%w: %s gave up after %d attempts", ErrConcurrencyRetriesExhausted, op, attempts)
	}
	return res, err
}

func isConflict(err error) bool {
	return errors.Is(err, models.ErrVersionMismatch) || errors.Is(err, models.ErrAccountExists)
}
