package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/checking-account-ledger/internal/intake"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

// Submitter is the intake side of the ledger.
type Submitter interface {
	Deposit(ctx context.Context, transactionID, accountID string, amount decimal.Decimal) (models.IntakeResult, error)
	Withdraw(ctx context.Context, transactionID, accountID string, amount decimal.Decimal) (models.IntakeResult, error)
}

type TransactionRequest struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type TransactionResponse struct {
	TransactionID string              `json:"transaction_id"`
	Status        models.IntakeStatus `json:"status"`
	Reason        string              `json:"reason,omitempty"`
}

type TransactionHandler struct {
	intake Submitter
	logger *zap.Logger
}

func NewTransactionHandler(intake Submitter, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{intake: intake, logger: logger}
}

func (h *TransactionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/deposit", h.deposit)
	mux.HandleFunc("/withdraw", h.withdraw)
}

func (h *TransactionHandler) deposit(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.intake.Deposit)
}

func (h *TransactionHandler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, h.intake.Withdraw)
}

type submitFunc func(ctx context.Context, transactionID, accountID string, amount decimal.Decimal) (models.IntakeResult, error)

func (h *TransactionHandler) submit(w http.ResponseWriter, r *http.Request, submit submitFunc) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse[TransactionResponse]("method not allowed"))
		return
	}

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse[TransactionResponse]("invalid request body", err.Error()))
		return
	}

	// The body wins over the Idempotency-Key header; with neither a new id is minted.
	if req.TransactionID == "" {
		req.TransactionID = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	if req.TransactionID == "" {
		req.TransactionID = uuid.NewString()
	}

	result, err := submit(r.Context(), req.TransactionID, req.AccountID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrInvalidRequest):
			writeJSON(w, http.StatusBadRequest, ErrorResponse[TransactionResponse]("validation failed", err.Error()))
		case errors.Is(err, intake.ErrRetryable):
			h.logger.Warn("transaction intake failed", zap.String("transaction_id", req.TransactionID), zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse[TransactionResponse]("temporarily unavailable, retry later", err.Error()))
		default:
			h.logger.Error("transaction intake failed", zap.String("transaction_id", req.TransactionID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse[TransactionResponse]("internal error"))
		}
		return
	}

	body := TransactionResponse{TransactionID: req.TransactionID, Status: result.Status, Reason: result.Reason}
	switch result.Status {
	case models.IntakeAccepted:
		writeJSON(w, http.StatusAccepted, SuccessResponse("transaction accepted", body))
	case models.IntakeDuplicate:
		writeJSON(w, http.StatusConflict, Response[TransactionResponse]{Message: "duplicate transaction", Data: &body})
	case models.IntakeDenied:
		writeJSON(w, http.StatusUnprocessableEntity, Response[TransactionResponse]{Message: "withdrawal denied", Data: &body})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse[TransactionResponse]("unexpected intake status"))
	}
}
