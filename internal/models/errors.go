package models

import "errors"

var (
	// ErrAccountNotFound is returned by stores when no ledger exists for an account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when a concurrent creator already created the ledger.
	ErrAccountExists = errors.New("account already exists")

	// ErrVersionMismatch means a conditional write lost against the stored version token.
	ErrVersionMismatch = errors.New("version token mismatch")

	// ErrInvalidApplyRequest marks a queue message that can never be applied.
	ErrInvalidApplyRequest = errors.New("invalid apply request")
)
