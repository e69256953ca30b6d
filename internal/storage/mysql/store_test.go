package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

func TestRowMapping(t *testing.T) {
	in := &models.AccountLedger{
		AccountID:      "acc-1",
		Balance:        decimal.RequireFromString("-12.5"),
		OverdraftLimit: decimal.NewFromInt(100),
	}

	row := toRow(in)
	assert.NotNil(t, row.AppliedTransactionIDs, "stored as [] rather than null")

	row.VersionToken = "v1"
	row.UpdatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	out := fromRow(row)

	assert.Equal(t, "acc-1", out.AccountID)
	assert.True(t, in.Balance.Equal(out.Balance))
	assert.Equal(t, "v1", out.VersionToken)
	assert.Equal(t, 2024, out.UpdatedAt.Year())
	assert.Empty(t, out.AppliedTransactionIDs)
}

func TestConnect_RetriesUntilOpen(t *testing.T) {
	calls := 0
	db, err := connect(context.Background(), zap.NewNop(), 10, time.Millisecond, func() (*gorm.DB, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return &gorm.DB{}, nil
	})
	require.NoError(t, err)
	assert.NotNil(t, db)
	assert.Equal(t, 3, calls)
}

func TestConnect_GivesUpAfterMaxTries(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	_, err := connect(context.Background(), zap.NewNop(), 4, time.Millisecond, func() (*gorm.DB, error) {
		calls++
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}
