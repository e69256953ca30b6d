package interfaces

import (
	"context"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

// LedgerStore persists account ledgers and transaction records.
//
// Writes to an account ledger are conditional: CreateAccount succeeds for
// exactly one of several concurrent creators and ReplaceAccount only when the
// stored version token still equals expectedVersion. Both mint a fresh
// VersionToken and set it on the passed ledger.
type LedgerStore interface {
	GetAccount(ctx context.Context, accountID string) (*models.AccountLedger, error)
	CreateAccount(ctx context.Context, account *models.AccountLedger) error
	ReplaceAccount(ctx context.Context, account *models.AccountLedger, expectedVersion string) error

	UpsertTransaction(ctx context.Context, record models.TransactionRecord) error
	GetTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.TransactionRecord, error)
}
