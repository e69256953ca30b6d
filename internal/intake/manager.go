// Package intake is the synchronous front door for deposits and withdrawals.
// It rejects duplicates, checks withdrawals against the overdraft limit and
// hands everything else to the queue for the ledger to apply.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

const DefaultIdempotencyTTL = 5 * time.Minute

var (
	// ErrRetryable wraps failures of the cache, validator or queue. The claim on
	// the transaction id has been released, so resubmitting is safe.
	ErrRetryable = errors.New("intake: retryable failure")

	ErrInvalidRequest = errors.New("intake: invalid request")
)

type Manager struct {
	cache     interfaces.IdempotencyCache
	liability interfaces.LiabilityChecker
	queue     interfaces.Queue
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithIdempotencyTTL sets how long a transaction id stays claimed.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func NewManager(cache interfaces.IdempotencyCache, liability interfaces.LiabilityChecker, queue interfaces.Queue, opts ...Option) *Manager {
	m := &Manager{
		cache:     cache,
		liability: liability,
		queue:     queue,
		ttl:       DefaultIdempotencyTTL,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deposit submits a credit of amount (positive) to accountID.
func (m *Manager) Deposit(ctx context.Context, transactionID, accountID string, amount decimal.Decimal) (models.IntakeResult, error) {
	if !amount.IsPositive() {
		return models.IntakeResult{}, fmt.Errorf("%w: deposit amount must be positive", ErrInvalidRequest)
	}
	return m.Submit(ctx, models.TransactionRequest{TransactionID: transactionID, AccountID: accountID, Amount: amount})
}

// Withdraw submits a debit of amount (positive) from accountID.
func (m *Manager) Withdraw(ctx context.Context, transactionID, accountID string, amount decimal.Decimal) (models.IntakeResult, error) {
	if !amount.IsPositive() {
		return models.IntakeResult{}, fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidRequest)
	}
	return m.Submit(ctx, models.TransactionRequest{TransactionID: transactionID, AccountID: accountID, Amount: amount.Neg()})
}

// Submit accepts a signed transaction request. Duplicates and denied
// withdrawals are results, not errors; nothing is enqueued for them.
func (m *Manager) Submit(ctx context.Context, req models.TransactionRequest) (models.IntakeResult, error) {
	if err := validate(req); err != nil {
		return models.IntakeResult{}, err
	}

	log := m.logger.With(
		zap.String("transaction_id", req.TransactionID),
		zap.String("account_id", req.AccountID),
		zap.Stringer("amount", req.Amount),
	)

	claimed, err := m.cache.SetIfAbsent(ctx, req.TransactionID, req.AccountID, m.ttl)
	if err != nil {
		return models.IntakeResult{}, fmt.Errorf("%w: claim %s: %w", ErrRetryable, req.TransactionID, err)
	}
	if !claimed {
		log.Info("duplicate request")
		return models.IntakeResult{Status: models.IntakeDuplicate, Reason: "transaction already submitted"}, nil
	}

	var ticket string
	if req.IsWithdrawal() {
		decision, err := m.liability.CheckLiability(ctx, req.AccountID, req.Amount.Abs())
		if err != nil {
			m.release(ctx, req.TransactionID)
			return models.IntakeResult{}, fmt.Errorf("%w: check liability: %w", ErrRetryable, err)
		}
		if !decision.Allowed {
			log.Info("withdrawal denied",
				zap.Stringer("balance", decision.Balance),
				zap.Stringer("overdraft_limit", decision.OverdraftLimit),
			)
			return models.IntakeResult{
				Status: models.IntakeDenied,
				Reason: fmt.Sprintf("insufficient funds: balance %s, overdraft limit %s", decision.Balance, decision.OverdraftLimit),
			}, nil
		}
		ticket = decision.Ticket
	}

	err = m.queue.Send(ctx, models.ApplyRequest{
		TransactionID: req.TransactionID,
		AccountID:     req.AccountID,
		Amount:        req.Amount,
		Ticket:        ticket,
		RequestedAt:   m.now().UTC(),
	})
	if err != nil {
		m.release(ctx, req.TransactionID)
		return models.IntakeResult{}, fmt.Errorf("%w: enqueue: %w", ErrRetryable, err)
	}

	log.Info("transaction accepted", zap.Bool("ticket", ticket != ""))
	return models.IntakeResult{Status: models.IntakeAccepted, Ticket: ticket}, nil
}

func (m *Manager) release(ctx context.Context, transactionID string) {
	if err := m.cache.Release(context.WithoutCancel(ctx), transactionID); err != nil {
		m.logger.Warn("failed to release idempotency claim",
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
	}
}

func validate(req models.TransactionRequest) error {
	switch {
	case strings.TrimSpace(req.TransactionID) == "":
		return fmt.Errorf("%w: missing transaction id", ErrInvalidRequest)
	case strings.TrimSpace(req.AccountID) == "":
		return fmt.Errorf("%w: missing account id", ErrInvalidRequest)
	case req.Amount.IsZero():
		return fmt.Errorf("%w: amount must not be zero", ErrInvalidRequest)
	}
	return nil
}
