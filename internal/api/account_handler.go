package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/ledger"
	"github.com/sheikh-saqib/checking-account-ledger/internal/liability"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

// AccountService is the read side of the ledger plus the overdraft setting.
type AccountService interface {
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, string, error)
	GetAccountInfo(ctx context.Context, accountID string) (*models.AccountLedger, error)
	GetTransactionHistory(ctx context.Context, accountID string, n int) ([]models.TransactionRecord, error)
	SetOverdraftLimit(ctx context.Context, accountID string, limit decimal.Decimal) (*models.AccountLedger, error)
}

type BalanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Ticket    string          `json:"ticket"`
}

type AccountResponse struct {
	AccountID           string          `json:"account_id"`
	Balance             decimal.Decimal `json:"balance"`
	OverdraftLimit      decimal.Decimal `json:"overdraft_limit"`
	AppliedTransactions int             `json:"applied_transactions"`
	VersionToken        string          `json:"version_token"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type OverdraftLimitRequest struct {
	AccountID      string          `json:"account_id"`
	OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
}

func newAccountResponse(a *models.AccountLedger) AccountResponse {
	return AccountResponse{
		AccountID:           a.AccountID,
		Balance:             a.Balance,
		OverdraftLimit:      a.OverdraftLimit,
		AppliedTransactions: len(a.AppliedTransactionIDs),
		VersionToken:        a.VersionToken,
		UpdatedAt:           a.UpdatedAt,
	}
}

type AccountHandler struct {
	accounts  AccountService
	liability interfaces.LiabilityChecker
	logger    *zap.Logger
}

func NewAccountHandler(accounts AccountService, checker interfaces.LiabilityChecker, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, liability: checker, logger: logger}
}

func (h *AccountHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/liability", h.checkLiability)
	mux.HandleFunc("/accounts/balance", h.balance)
	mux.HandleFunc("/accounts/info", h.info)
	mux.HandleFunc("/accounts/transactions", h.transactions)
	mux.HandleFunc("/accounts/overdraft-limit", h.overdraftLimit)
}

func (h *AccountHandler) checkLiability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse[models.LiabilityDecision]("method not allowed"))
		return
	}

	accountID := r.URL.Query().Get("accountId")
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if accountID == "" || err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse[models.LiabilityDecision]("accountId and a numeric amount are mandatory"))
		return
	}

	decision, err := h.liability.CheckLiability(r.Context(), accountID, amount)
	if err != nil {
		if errors.Is(err, liability.ErrInvalidAmount) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse[models.LiabilityDecision]("validation failed", err.Error()))
			return
		}
		h.logger.Warn("liability check failed", zap.String("account_id", accountID), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse[models.LiabilityDecision]("liability check failed", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse("liability checked", decision))
}

func (h *AccountHandler) balance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID[BalanceResponse](w, r, http.MethodGet)
	if !ok {
		return
	}

	balance, ticket, err := h.accounts.GetBalance(r.Context(), accountID)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("balance retrieved", BalanceResponse{
		AccountID: accountID,
		Balance:   balance,
		Ticket:    ticket,
	}))
}

func (h *AccountHandler) info(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID[AccountResponse](w, r, http.MethodGet)
	if !ok {
		return
	}

	account, err := h.accounts.GetAccountInfo(r.Context(), accountID)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("account retrieved", newAccountResponse(account)))
}

func (h *AccountHandler) transactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID[[]models.TransactionRecord](w, r, http.MethodGet)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse[[]models.TransactionRecord]("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	records, err := h.accounts.GetTransactionHistory(r.Context(), accountID, limit)
	if err != nil {
		h.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("transactions retrieved", records))
}

func (h *AccountHandler) overdraftLimit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse[AccountResponse]("method not allowed"))
		return
	}

	var req OverdraftLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse[AccountResponse]("invalid request body", err.Error()))
		return
	}
	if req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse[AccountResponse]("account_id is a mandatory field"))
		return
	}

	account, err := h.accounts.SetOverdraftLimit(r.Context(), req.AccountID, req.OverdraftLimit)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidOverdraftLimit) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse[AccountResponse]("validation failed", err.Error()))
			return
		}
		h.writeAccountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse("overdraft limit updated", newAccountResponse(account)))
}

func (h *AccountHandler) writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse[any]("account not found"))
	case errors.Is(err, ledger.ErrConcurrencyRetriesExhausted):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse[any]("account is busy, retry later"))
	default:
		h.logger.Error("account request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse[any]("internal error"))
	}
}

func requireAccountID[T any](w http.ResponseWriter, r *http.Request, method string) (string, bool) {
	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse[T]("method not allowed"))
		return "", false
	}
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse[T]("account_id is a mandatory field"))
		return "", false
	}
	return accountID, true
}
