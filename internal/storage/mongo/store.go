// Package mongo stores account ledgers as MongoDB documents. Conditional
// writes filter on both the document id and its version token, which is the
// document-store equivalent of an If-Match precondition.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

// Collection name constants.
const (
	colAccounts     = "account_ledgers"
	colTransactions = "account_transactions"
)

// compile-time interface check
var _ interfaces.LedgerStore = (*Store)(nil)

// Store implements interfaces.LedgerStore on a MongoDB database.
type Store struct {
	accounts     *mongo.Collection
	transactions *mongo.Collection
}

// New creates a store on db.
func New(db *mongo.Database) *Store {
	return &Store{
		accounts:     db.Collection(colAccounts),
		transactions: db.Collection(colTransactions),
	}
}

// Connect opens a client for uri and pings it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx) //nolint:errcheck // already failing
		return nil, fmt.Errorf("ledger/mongo: ping: %w", err)
	}
	return client, nil
}

type accountModel struct {
	AccountID             string          `bson:"_id"`
	Balance               bson.Decimal128 `bson:"balance"`
	OverdraftLimit        bson.Decimal128 `bson:"overdraft_limit"`
	AppliedTransactionIDs []string        `bson:"applied_transaction_ids"`
	VersionToken          string          `bson:"version_token"`
	UpdatedAt             time.Time       `bson:"updated_at"`
}

type transactionModel struct {
	TransactionID string          `bson:"_id"`
	AccountID     string          `bson:"account_id"`
	Amount        bson.Decimal128 `bson:"amount"`
	Timestamp     time.Time       `bson:"timestamp"`
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.AccountLedger, error) {
	var m accountModel
	err := s.accounts.FindOne(ctx, bson.M{"_id": accountID}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("ledger/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) CreateAccount(ctx context.Context, account *models.AccountLedger) error {
	m, err := toAccountModel(account)
	if err != nil {
		return err
	}
	m.VersionToken = uuid.NewString()
	m.UpdatedAt = time.Now().UTC()

	if _, err := s.accounts.InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrAccountExists
		}
		return fmt.Errorf("ledger/mongo: create account: %w", err)
	}

	account.VersionToken = m.VersionToken
	account.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *Store) ReplaceAccount(ctx context.Context, account *models.AccountLedger, expectedVersion string) error {
	m, err := toAccountModel(account)
	if err != nil {
		return err
	}
	m.VersionToken = uuid.NewString()
	m.UpdatedAt = time.Now().UTC()

	res, err := s.accounts.ReplaceOne(ctx, bson.M{"_id": m.AccountID, "version_token": expectedVersion}, m)
	if err != nil {
		return fmt.Errorf("ledger/mongo: replace account: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetAccount(ctx, account.AccountID); err != nil {
			return err
		}
		return models.ErrVersionMismatch
	}

	account.VersionToken = m.VersionToken
	account.UpdatedAt = m.UpdatedAt
	return nil
}

func (s *Store) UpsertTransaction(ctx context.Context, record models.TransactionRecord) error {
	amount, err := bson.ParseDecimal128(record.Amount.String())
	if err != nil {
		return fmt.Errorf("ledger/mongo: encode amount: %w", err)
	}
	m := transactionModel{
		TransactionID: record.TransactionID,
		AccountID:     record.AccountID,
		Amount:        amount,
		Timestamp:     record.Timestamp,
	}

	_, err = s.transactions.ReplaceOne(ctx, bson.M{"_id": m.TransactionID}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("ledger/mongo: upsert transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.TransactionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}

	cur, err := s.transactions.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: list transactions: %w", err)
	}

	var ms []transactionModel
	if err := cur.All(ctx, &ms); err != nil {
		return nil, fmt.Errorf("ledger/mongo: list transactions: %w", err)
	}

	result := make([]models.TransactionRecord, len(ms))
	for i := range ms {
		amount, err := decimal.NewFromString(ms[i].Amount.String())
		if err != nil {
			return nil, fmt.Errorf("ledger/mongo: decode amount: %w", err)
		}
		result[i] = models.TransactionRecord{
			TransactionID: ms[i].TransactionID,
			AccountID:     ms[i].AccountID,
			Amount:        amount,
			Timestamp:     ms[i].Timestamp,
		}
	}
	return result, nil
}

func toAccountModel(a *models.AccountLedger) (*accountModel, error) {
	balance, err := bson.ParseDecimal128(a.Balance.String())
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: encode balance: %w", err)
	}
	limit, err := bson.ParseDecimal128(a.OverdraftLimit.String())
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: encode overdraft limit: %w", err)
	}
	ids := a.AppliedTransactionIDs
	if ids == nil {
		ids = []string{}
	}
	return &accountModel{
		AccountID:             a.AccountID,
		Balance:               balance,
		OverdraftLimit:        limit,
		AppliedTransactionIDs: ids,
	}, nil
}

func fromAccountModel(m *accountModel) (*models.AccountLedger, error) {
	balance, err := decimal.NewFromString(m.Balance.String())
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: decode balance: %w", err)
	}
	limit, err := decimal.NewFromString(m.OverdraftLimit.String())
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: decode overdraft limit: %w", err)
	}
	ids := m.AppliedTransactionIDs
	if ids == nil {
		ids = make([]string, 0)
	}
	return &models.AccountLedger{
		AccountID:             m.AccountID,
		Balance:               balance,
		OverdraftLimit:        limit,
		AppliedTransactionIDs: ids,
		VersionToken:          m.VersionToken,
		UpdatedAt:             m.UpdatedAt,
	}, nil
}
