package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vanshika/txscreen/internal/domain"
	"github.com/vanshika/txscreen/internal/service"
)

// TransactionService is the part of the screening service exposed over HTTP.
type TransactionService interface {
	Screen(ctx context.Context, in service.ScreenInput) (domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (domain.Transaction, error)
	GetUser(ctx context.Context, account string) (service.UserProfile, error)
}

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger  *slog.Logger
	service TransactionService
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, svc TransactionService) *APIHandlers {
	return &APIHandlers{
		logger:  logger,
		service: svc,
	}
}

func (h *APIHandlers) screenTransaction(w http.ResponseWriter, r *http.Request) {
	var payload screenRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, err := h.service.Screen(r.Context(), payload.toServiceInput())
	if err != nil {
		h.writeServiceError(w, err, "failed to screen transaction", "extrId", payload.ExtrID)
		return
	}

	h.logger.Info("transaction screened",
		"transaction_id", tx.ID,
		"extrId", tx.ExtrID,
		"status", tx.Status,
		"client", clientFromContext(r.Context()),
	)
	respondSuccess(w, http.StatusOK, "Transaction screened", domain.NewTransactionDocument(tx))
}

func (h *APIHandlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "transaction ID is required")
		return
	}

	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch transaction", "transaction_id", id)
		return
	}
	respondSuccess(w, http.StatusOK, "Transaction retrieved", domain.NewTransactionDocument(tx))
}

func (h *APIHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.PathValue("account"))
	if account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}

	profile, err := h.service.GetUser(r.Context(), account)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch user", "account", account)
		return
	}

	resp := userResponse{
		UserDocument: domain.NewUserDocument(profile.User),
		Transactions: make([]domain.TransactionDocument, 0, len(profile.Recent)),
	}
	for _, tx := range profile.Recent {
		resp.Transactions = append(resp.Transactions, domain.NewTransactionDocument(tx))
	}
	respondSuccess(w, http.StatusOK, "User retrieved", resp)
}

// writeServiceError maps service errors onto HTTP statuses. Unexpected errors
// are logged and answered with a generic message.
func (h *APIHandlers) writeServiceError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, domain.ErrDuplicateExtrID):
		writeError(w, http.StatusConflict, "ExtrId already exists")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	default:
		h.logger.Error(msg, append([]any{"error", err}, attrs...)...)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// --- Request & Response DTOs ---

type partyRequest struct {
	Name    string `json:"name"`
	Account string `json:"account"`
}

type screenRequest struct {
	Account     string          `json:"account"`
	Name        string          `json:"name"`
	Currency    string          `json:"currency"`
	Country     string          `json:"country"`
	Amount      decimal.Decimal `json:"amount"`
	CallbackURL string          `json:"callbackUrl"`
	ExtrID      string          `json:"extrId"`
	Recipient   *partyRequest   `json:"recipient,omitempty"`
}

func (req screenRequest) toServiceInput() service.ScreenInput {
	in := service.ScreenInput{
		Account:     req.Account,
		Name:        req.Name,
		Currency:    req.Currency,
		Country:     req.Country,
		Amount:      req.Amount,
		CallbackURL: req.CallbackURL,
		ExtrID:      req.ExtrID,
	}
	if req.Recipient != nil {
		in.Recipient = &service.PartyInput{Name: req.Recipient.Name, Account: req.Recipient.Account}
	}
	return in
}

type userResponse struct {
	domain.UserDocument
	Transactions []domain.TransactionDocument `json:"transactions"`
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	return nil
}

func respondSuccess(w http.ResponseWriter, status int, msg string, data any) {
	respondJSON(w, status, apiResponse{
		Status:  "success",
		Message: msg,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, apiResponse{
		Status:  "error",
		Message: msg,
	})
}
