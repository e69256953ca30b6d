package mongo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

func TestAccountModel_KeepsDecimalPrecision(t *testing.T) {
	in := &models.AccountLedger{
		AccountID:             "acc-1",
		Balance:               decimal.RequireFromString("-40.1234"),
		OverdraftLimit:        decimal.RequireFromString("50"),
		AppliedTransactionIDs: []string{"tx-1", "tx-2"},
	}

	m, err := toAccountModel(in)
	require.NoError(t, err)

	out, err := fromAccountModel(m)
	require.NoError(t, err)
	assert.True(t, in.Balance.Equal(out.Balance), "balance %s != %s", in.Balance, out.Balance)
	assert.True(t, in.OverdraftLimit.Equal(out.OverdraftLimit))
	assert.Equal(t, in.AppliedTransactionIDs, out.AppliedTransactionIDs)
}

func TestAccountModel_NilAppliedSetBecomesEmpty(t *testing.T) {
	m, err := toAccountModel(&models.AccountLedger{AccountID: "acc-1"})
	require.NoError(t, err)
	assert.NotNil(t, m.AppliedTransactionIDs)
}
