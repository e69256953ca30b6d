// Package liability decides whether a withdrawal fits inside an account's
// overdraft limit and pins that decision to the ledger version it was made on.
package liability

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

var ErrInvalidAmount = errors.New("liability: amount must be positive")

// AccountReader reads the current ledger of an account.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, accountID string) (*models.AccountLedger, error)
}

var _ interfaces.LiabilityChecker = (*Validator)(nil)

// Validator answers liability checks from the ledger itself.
type Validator struct {
	accounts              AccountReader
	defaultOverdraftLimit decimal.Decimal
	logger                *zap.Logger
}

type ValidatorOption func(*Validator)

func WithValidatorLogger(logger *zap.Logger) ValidatorOption {
	return func(v *Validator) { v.logger = logger }
}

// WithDefaultOverdraftLimit is the limit assumed for accounts that do not exist yet.
// It must match the limit the ledger gives them on creation.
func WithDefaultOverdraftLimit(limit decimal.Decimal) ValidatorOption {
	return func(v *Validator) { v.defaultOverdraftLimit = limit }
}

func NewValidator(accounts AccountReader, opts ...ValidatorOption) *Validator {
	v := &Validator{
		accounts:              accounts,
		defaultOverdraftLimit: models.DefaultOverdraftLimit,
		logger:                zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// CheckLiability reports whether withdrawing amount (positive) keeps the
// balance at or above the overdraft floor. The returned ticket is the version
// token the decision was made on; it is empty when the account does not exist.
func (v *Validator) CheckLiability(ctx context.Context, accountID string, amount decimal.Decimal) (models.LiabilityDecision, error) {
	if !amount.IsPositive() {
		return models.LiabilityDecision{}, ErrInvalidAmount
	}

	balance := decimal.Zero
	limit := v.defaultOverdraftLimit
	ticket := ""

	account, err := v.accounts.GetAccountInfo(ctx, accountID)
	switch {
	case err == nil:
		balance = account.Balance
		limit = account.OverdraftLimit
		ticket = account.VersionToken
	case errors.Is(err, models.ErrAccountNotFound):
		// treated as an empty account with the default limit
	default:
		return models.LiabilityDecision{}, fmt.Errorf("check liability of %s: %w", accountID, err)
	}

	decision := models.LiabilityDecision{
		Allowed:        balance.Sub(amount).GreaterThanOrEqual(limit.Neg()),
		Ticket:         ticket,
		Balance:        balance,
		OverdraftLimit: limit,
	}

	v.logger.Debug("liability checked",
		zap.String("account_id", accountID),
		zap.Stringer("amount", amount),
		zap.Stringer("balance", balance),
		zap.Stringer("overdraft_limit", limit),
		zap.Bool("allowed", decision.Allowed),
	)
	return decision, nil
}
