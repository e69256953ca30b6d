package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOverdraftLimit is the overdraft threshold given to an account ledger
// that is created lazily by its first transaction.
var DefaultOverdraftLimit = decimal.NewFromInt(1000)

// AccountLedger is the persisted balance record for a single account
type AccountLedger struct {
	AccountID             string          // primary key, never changes
	Balance               decimal.Decimal // current balance, may be negative down to -OverdraftLimit
	OverdraftLimit        decimal.Decimal // how far below zero withdrawals may take the balance
	AppliedTransactionIDs []string        // every transaction ID already applied, each at most once
	VersionToken          string          // changes on every write, used as the CAS precondition
	UpdatedAt             time.Time
}

// NewAccountLedger returns an empty ledger for accountID with the given overdraft limit.
func NewAccountLedger(accountID string, overdraftLimit decimal.Decimal) *AccountLedger {
	return &AccountLedger{
		AccountID:             accountID,
		Balance:               decimal.Zero,
		OverdraftLimit:        overdraftLimit,
		AppliedTransactionIDs: make([]string, 0),
	}
}

// HasApplied reports whether transactionID is already part of the balance.
func (a *AccountLedger) HasApplied(transactionID string) bool {
	return slices.Contains(a.AppliedTransactionIDs, transactionID)
}

// WithTransaction returns a copy of the ledger with amount added to the balance
// and transactionID recorded as applied. The receiver is left untouched so a
// failed conditional write never leaks into the caller's snapshot.
func (a *AccountLedger) WithTransaction(transactionID string, amount decimal.Decimal) *AccountLedger {
	next := a.Clone()
	next.Balance = next.Balance.Add(amount)
	next.AppliedTransactionIDs = append(next.AppliedTransactionIDs, transactionID)
	return next
}

// Clone returns a deep copy.
func (a *AccountLedger) Clone() *AccountLedger {
	c := *a
	c.AppliedTransactionIDs = slices.Clone(a.AppliedTransactionIDs)
	if c.AppliedTransactionIDs == nil {
		c.AppliedTransactionIDs = make([]string, 0)
	}
	return &c
}

// Floor is the lowest balance the overdraft limit permits.
func (a *AccountLedger) Floor() decimal.Decimal {
	return a.OverdraftLimit.Neg()
}
