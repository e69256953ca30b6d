package memory

import (
	"context" // standard Go package for request-scoped context (timeouts, cancellation)
	"sort"
	"sync" // standard Go package for concurrency primitives like Mutex
	"time"

	"github.com/google/uuid"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces" // interface LedgerStore
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"                // domain models: AccountLedger, TransactionRecord
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// The mutex only guards the maps for the duration of a single call; callers
// coordinate with each other through version tokens, exactly as they would
// against a real database.
type MemoryLedgerStore struct {
	mu           sync.Mutex                          // protects both maps
	accounts     map[string]*models.AccountLedger    // account ledgers keyed by account id
	transactions map[string]models.TransactionRecord // transaction records keyed by transaction id
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts:     make(map[string]*models.AccountLedger),
		transactions: make(map[string]models.TransactionRecord),
	}
}

// GetAccount returns a copy of the stored ledger so callers can never mutate store state.
func (m *MemoryLedgerStore) GetAccount(ctx context.Context, accountID string) (*models.AccountLedger, error) {

	m.mu.Lock()         // lock to prevent concurrent modification while reading
	defer m.mu.Unlock() // unlock automatically at the end

	account, exists := m.accounts[accountID]
	if !exists {
		return nil, models.ErrAccountNotFound
	}
	return account.Clone(), nil // return the copy so external code can't modify internal state
}

// CreateAccount inserts a new ledger; only the first of several concurrent creators wins.
func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, account *models.AccountLedger) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.AccountID]; exists {
		return models.ErrAccountExists // the loser has to re-read the winner's document
	}

	account.VersionToken = uuid.NewString() // every write mints a new version
	account.UpdatedAt = time.Now().UTC()
	m.accounts[account.AccountID] = account.Clone()
	return nil
}

// ReplaceAccount overwrites the ledger only if the stored version still equals expectedVersion.
func (m *MemoryLedgerStore) ReplaceAccount(ctx context.Context, account *models.AccountLedger, expectedVersion string) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.accounts[account.AccountID]
	if !exists {
		return models.ErrAccountNotFound
	}
	if current.VersionToken != expectedVersion {
		return models.ErrVersionMismatch // somebody else wrote since expectedVersion was read
	}

	account.VersionToken = uuid.NewString()
	account.UpdatedAt = time.Now().UTC()
	m.accounts[account.AccountID] = account.Clone()
	return nil
}

// UpsertTransaction creates or overwrites the record; repeating it is harmless.
func (m *MemoryLedgerStore) UpsertTransaction(ctx context.Context, record models.TransactionRecord) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions[record.TransactionID] = record
	return nil // always succeeds in memory, so returns nil
}

// GetTransactionsByAccount returns the newest limit records of an account, newest first.
// A limit <= 0 returns all of them.
func (m *MemoryLedgerStore) GetTransactionsByAccount(ctx context.Context, accountID string, limit int) ([]models.TransactionRecord, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.TransactionRecord

	for _, record := range m.transactions {
		if record.AccountID == accountID {
			result = append(result, record)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].TransactionID > result[j].TransactionID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
