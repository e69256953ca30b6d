package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

const uniqueViolation = "23505"

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (p *PostgresLedgerStore) GetAccount(ctx context.Context, accountID string) (*models.AccountLedger, error) {
	const query = `SELECT account_id, balance, overdraft_limit, applied_transaction_ids, version_token, updated_at
	FROM account_ledgers WHERE account_id = $1`

	account := &models.AccountLedger{}
	err := p.db.QueryRowContext(ctx, query, accountID).Scan(
		&account.AccountID,
		&account.Balance,
		&account.OverdraftLimit,
		pq.Array(&account.AppliedTransactionIDs),
		&account.VersionToken,
		&account.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	if account.AppliedTransactionIDs == nil {
		account.AppliedTransactionIDs = make([]string, 0)
	}
	return account, nil
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, account *models.AccountLedger) error {
	const query = `INSERT INTO account_ledgers
	(account_id, balance, overdraft_limit, applied_transaction_ids, version_token, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (account_id) DO NOTHING`

	version := uuid.NewString()
	now := time.Now().UTC()

	res, err := p.db.ExecContext(ctx, query,
		account.AccountID,
		account.Balance,
		account.OverdraftLimit,
		pq.Array(account.AppliedTransactionIDs),
		version,
		now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrAccountExists
		}
		return fmt.Errorf("create account %s: %w", account.AccountID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.AccountID, err)
	}
	if n == 0 {
		return models.ErrAccountExists
	}

	account.VersionToken = version
	account.UpdatedAt = now
	return nil
}

func (p *PostgresLedgerStore) ReplaceAccount(ctx context.Context, account *models.AccountLedger, expectedVersion string) error {
	const query = `UPDATE account_ledgers
	SET balance = $3, overdraft_limit = $4, applied_transaction_ids = $5, version_token = $6, updated_at = $7
	WHERE account_id = $1 AND version_token = $2`

	version := uuid.NewString()
	now := time.Now().UTC()

	res, err := p.db.ExecContext(ctx, query,
		account.AccountID,
		expectedVersion,
		account.Balance,
		account.OverdraftLimit,
		pq.Array(account.AppliedTransactionIDs),
		version,
		now,
	)
	if err != nil {
		return fmt.Errorf("replace account %s: %w", account.AccountID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("replace account %s: %w", account.AccountID, err)
	}
	if n == 0 {
		if _, err := p.GetAccount(ctx, account.AccountID); err != nil {
			return err
		}
		return models.ErrVersionMismatch
	}

	account.VersionToken = version
	account.UpdatedAt = now
	return nil
}

func (p *PostgresLedgerStore) UpsertTransaction(ctx context.Context, record models.TransactionRecord) error {
	const query = `INSERT INTO account_transactions (transaction_id, account_id, amount, created_at)
	VALUES ($1,$2,$3,$4)
	ON CONFLICT (transaction_id) DO UPDATE
	SET account_id = EXCLUDED.account_id, amount = EXCLUDED.amount, created_at = EXCLUDED.created_at`

	_, err := p.db.ExecContext(ctx, query, record.TransactionID, record.AccountID, record.Amount, record.Timestamp)
	if err != nil {
		return fmt.Errorf("upsert transaction %s: %w", record.TransactionID, err)
	}
	return nil
}

func (p *PostgresLedgerStore) GetTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.TransactionRecord, error) {
	query := `SELECT transaction_id, account_id, amount, created_at FROM account_transactions
	WHERE account_id = $1 ORDER BY created_at DESC`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)

	if err != nil {
		return nil, fmt.Errorf("list transactions of %s: %w", accountID, err)
	}

	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var record models.TransactionRecord
		if err := rows.Scan(&record.TransactionID, &record.AccountID, &record.Amount, &record.Timestamp); err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
