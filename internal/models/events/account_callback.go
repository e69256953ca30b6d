package events

import (
	"time"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

// AccountCallback is published once per terminal apply outcome so the
// original caller learns what happened to its transaction.
type AccountCallback struct {
	TransactionID string             `json:"transaction_id"`
	AccountID     string             `json:"account_id"`
	ActionName    string             `json:"action_name"`
	IsSuccessful  bool               `json:"is_successful"`
	ResultMessage string             `json:"result_message"`
	Status        models.ApplyStatus `json:"status"`
	OccurredAt    time.Time          `json:"occurred_at"`
}

// NewAccountCallback builds the callback for an outcome returned by the applier.
func NewAccountCallback(req models.ApplyRequest, outcome models.ApplyOutcome, at time.Time) AccountCallback {
	msg := outcome.Reason
	if outcome.Applied() {
		msg = req.ActionName() + " applied, balance " + outcome.Balance.String()
	}
	return AccountCallback{
		TransactionID: req.TransactionID,
		AccountID:     req.AccountID,
		ActionName:    req.ActionName(),
		IsSuccessful:  outcome.Applied(),
		ResultMessage: msg,
		Status:        outcome.Status,
		OccurredAt:    at,
	}
}

// NewFailureCallback builds the callback for an apply that ended in an unrecoverable error.
func NewFailureCallback(req models.ApplyRequest, err error, at time.Time) AccountCallback {
	return AccountCallback{
		TransactionID: req.TransactionID,
		AccountID:     req.AccountID,
		ActionName:    req.ActionName(),
		IsSuccessful:  false,
		ResultMessage: err.Error(),
		Status:        models.ApplyStatusFailed,
		OccurredAt:    at,
	}
}

// PartitionKey keeps callbacks of one account in order.
func (c AccountCallback) PartitionKey() string {
	return c.AccountID
}
