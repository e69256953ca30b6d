package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionRecord is the append-only record of a single transaction.
// It is upserted on every apply attempt, whatever the outcome.
type TransactionRecord struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"` // positive = deposit, negative = withdrawal
	Timestamp     time.Time       `json:"timestamp"`
}

// TransactionRequest is what a client submits to intake.
type TransactionRequest struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// IsWithdrawal reports whether the request debits the account.
func (r TransactionRequest) IsWithdrawal() bool {
	return r.Amount.IsNegative()
}

// ApplyRequest is the queue message consumed by the ledger applier.
// Ticket is the version token captured by the liability check; empty means no ticket.
type ApplyRequest struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Ticket        string          `json:"ticket,omitempty"`
	RequestedAt   time.Time       `json:"requested_at"`
}

// HasTicket reports whether the request is pinned to a validated ledger version.
func (r ApplyRequest) HasTicket() bool {
	return r.Ticket != ""
}

// ActionName names the economic action the request performs.
func (r ApplyRequest) ActionName() string {
	if r.Amount.IsNegative() {
		return ActionWithdraw
	}
	return ActionDeposit
}

// Validate rejects requests that can never be applied, no matter how often they are redelivered.
func (r ApplyRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.TransactionID) == "":
		return fmt.Errorf("%w: missing transaction id", ErrInvalidApplyRequest)
	case strings.TrimSpace(r.AccountID) == "":
		return fmt.Errorf("%w: missing account id", ErrInvalidApplyRequest)
	case r.Amount.IsZero():
		return fmt.Errorf("%w: amount must not be zero", ErrInvalidApplyRequest)
	}
	return nil
}

const (
	ActionDeposit  = "Deposit"
	ActionWithdraw = "Withdraw"
)
