package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

// LiabilityChecker decides whether amount may be withdrawn from accountID.
type LiabilityChecker interface {
	CheckLiability(ctx context.Context, accountID string, amount decimal.Decimal) (models.LiabilityDecision, error)
}
