package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

// sqlAccountLedger maps the account_ledgers table
type sqlAccountLedger struct {
	AccountID             string          `gorm:"primaryKey;size:64"`
	Balance               decimal.Decimal `gorm:"type:decimal(20,4)"`
	OverdraftLimit        decimal.Decimal `gorm:"type:decimal(20,4)"`
	AppliedTransactionIDs []string        `gorm:"serializer:json;type:json"`
	VersionToken          string          `gorm:"size:36"`
	UpdatedAt             int64           `gorm:"autoUpdateTime:false"` // unix milli, set explicitly on every write
}

func (*sqlAccountLedger) TableName() string {
	return "account_ledgers"
}

// sqlTransaction maps the account_transactions table
type sqlTransaction struct {
	TransactionID string          `gorm:"primaryKey;size:64"`
	AccountID     string          `gorm:"index;size:64"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4)"`
	CreatedAt     int64           `gorm:"autoCreateTime:false"`
}

func (*sqlTransaction) TableName() string {
	return "account_transactions"
}

var ledgerColumns = []string{"balance", "overdraft_limit", "applied_transaction_ids", "version_token", "updated_at"}

// MySQLLedgerStore implements interfaces.LedgerStore with GORM on MySQL.
type MySQLLedgerStore struct {
	client *Client
}

func NewMySQLLedgerStore(client *Client) *MySQLLedgerStore {
	return &MySQLLedgerStore{
		client: client,
	}
}

func (s *MySQLLedgerStore) GetAccount(ctx context.Context, accountID string) (*models.AccountLedger, error) {
	var row sqlAccountLedger
	err := s.client.DB().WithContext(ctx).Where("account_id = ?", accountID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return fromRow(&row), nil
}

func (s *MySQLLedgerStore) CreateAccount(ctx context.Context, account *models.AccountLedger) error {
	row := toRow(account)
	row.VersionToken = uuid.NewString()
	row.UpdatedAt = time.Now().UnixMilli()

	res := s.client.DB().WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return models.ErrAccountExists
		}
		return fmt.Errorf("create account %s: %w", account.AccountID, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrAccountExists
	}

	account.VersionToken = row.VersionToken
	account.UpdatedAt = time.UnixMilli(row.UpdatedAt).UTC()
	return nil
}

func (s *MySQLLedgerStore) ReplaceAccount(ctx context.Context, account *models.AccountLedger, expectedVersion string) error {
	row := toRow(account)
	row.VersionToken = uuid.NewString()
	row.UpdatedAt = time.Now().UnixMilli()

	res := s.client.DB().WithContext(ctx).
		Model(row).
		Where("version_token = ?", expectedVersion).
		Select(ledgerColumns).
		Updates(row)
	if res.Error != nil {
		return fmt.Errorf("replace account %s: %w", account.AccountID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetAccount(ctx, account.AccountID); err != nil {
			return err
		}
		return models.ErrVersionMismatch
	}

	account.VersionToken = row.VersionToken
	account.UpdatedAt = time.UnixMilli(row.UpdatedAt).UTC()
	return nil
}

func (s *MySQLLedgerStore) UpsertTransaction(ctx context.Context, record models.TransactionRecord) error {
	row := &sqlTransaction{
		TransactionID: record.TransactionID,
		AccountID:     record.AccountID,
		Amount:        record.Amount,
		CreatedAt:     record.Timestamp.UnixMilli(),
	}
	err := s.client.DB().WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert transaction %s: %w", record.TransactionID, err)
	}
	return nil
}

func (s *MySQLLedgerStore) GetTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.TransactionRecord, error) {
	q := s.client.DB().WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []sqlTransaction
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list transactions of %s: %w", accountID, err)
	}

	records := make([]models.TransactionRecord, len(rows))
	for i, r := range rows {
		records[i] = models.TransactionRecord{
			TransactionID: r.TransactionID,
			AccountID:     r.AccountID,
			Amount:        r.Amount,
			Timestamp:     time.UnixMilli(r.CreatedAt).UTC(),
		}
	}
	return records, nil
}

func toRow(a *models.AccountLedger) *sqlAccountLedger {
	ids := a.AppliedTransactionIDs
	if ids == nil {
		ids = []string{}
	}
	return &sqlAccountLedger{
		AccountID:             a.AccountID,
		Balance:               a.Balance,
		OverdraftLimit:        a.OverdraftLimit,
		AppliedTransactionIDs: ids,
	}
}

func fromRow(r *sqlAccountLedger) *models.AccountLedger {
	ids := r.AppliedTransactionIDs
	if ids == nil {
		ids = make([]string, 0)
	}
	return &models.AccountLedger{
		AccountID:             r.AccountID,
		Balance:               r.Balance,
		OverdraftLimit:        r.OverdraftLimit,
		AppliedTransactionIDs: ids,
		VersionToken:          r.VersionToken,
		UpdatedAt:             time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

var _ interfaces.LedgerStore = (*MySQLLedgerStore)(nil)
