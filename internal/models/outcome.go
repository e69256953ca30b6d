package models

import "github.com/shopspring/decimal"

// ApplyStatus is the terminal result of applying one transaction to a ledger.
type ApplyStatus string

const (
	ApplyStatusApplied          ApplyStatus = "applied"
	ApplyStatusAlreadyProcessed ApplyStatus = "already_processed"
	ApplyStatusBalanceChanged   ApplyStatus = "balance_changed"
	ApplyStatusOverdraftLimit   ApplyStatus = "overdraft_limit_exceeded"
	ApplyStatusFailed           ApplyStatus = "failed"
)

const (
	ReasonAlreadyProcessed = "transaction already processed"
	ReasonBalanceChanged   = "balance changed since the last validity check"
	ReasonOverdraftLimit   = "withdrawal would take the balance below the overdraft limit"
)

// ApplyOutcome is returned by the applier for every non-error apply.
type ApplyOutcome struct {
	Status  ApplyStatus
	Reason  string
	Balance decimal.Decimal // balance after the apply, or the balance observed when rejected
}

// Applied reports whether the transaction changed the balance on this call.
func (o ApplyOutcome) Applied() bool {
	return o.Status == ApplyStatusApplied
}

// LiabilityDecision is the answer of a liability check.
type LiabilityDecision struct {
	Allowed        bool            `json:"withdrawAllowed"`
	Ticket         string          `json:"ticket"`
	Balance        decimal.Decimal `json:"balance"`
	OverdraftLimit decimal.Decimal `json:"overdraftLimit"`
}

// IntakeStatus is the synchronous answer intake gives a client.
type IntakeStatus string

const (
	IntakeAccepted  IntakeStatus = "accepted"
	IntakeDuplicate IntakeStatus = "duplicate"
	IntakeDenied    IntakeStatus = "denied"
)

// IntakeResult is returned by intake for every request it did not fail on.
type IntakeResult struct {
	Status IntakeStatus
	Reason string
	Ticket string
}
