package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/qubic/go-se-ledger/business/domain/tx"
	"github.com/qubic/go-se-ledger/entities"
	"go.uber.org/zap"
)

type TransactionService interface {
	Store(ctx context.Context, record entities.Tx) (*tx.StoreResult, error)
	ListAll(ctx context.Context) (*tx.TransactionList, error)
	ListByWallet(ctx context.Context, walletID string) (*tx.TransactionList, error)
	ListObfuscated(ctx context.Context) (*tx.TransactionList, error)
	Reveal(ctx context.Context, callerKeys []string) (*tx.TransactionList, error)
	DeleteAll(ctx context.Context) error
	ListWalletPublicKeys(ctx context.Context) ([]string, error)
	WalletBalance(ctx context.Context, walletID string) (*entities.WalletBalance, error)
}

type SecureElementService interface {
	Create(ctx context.Context, element entities.SecureElement) (*entities.SecureElement, error)
	Get(ctx context.Context, walletID string) (*entities.SecureElement, error)
	List(ctx context.Context) ([]entities.SecureElement, error)
}

type ValueService interface {
	Store(ctx context.Context, key, value string) error
	Fetch(ctx context.Context, key string) (string, error)
}

type Handler struct {
	transactions   TransactionService
	secureElements SecureElementService
	values         ValueService
	logger         *zap.SugaredLogger
}

func NewHandler(transactions TransactionService, secureElements SecureElementService, values ValueService, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		transactions:   transactions,
		secureElements: secureElements,
		values:         values,
		logger:         logger,
	}
}

func (h *Handler) StoreTransaction(w http.ResponseWriter, r *http.Request) {
	var record entities.Tx
	if !h.decode(w, r, &record) {
		return
	}
	result, err := h.transactions.Store(r.Context(), record)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, StoreTransactionResponse{Success: true, FraudStatus: result.FraudStatus})
}

func (h *Handler) ListTransactionsByWalletPublicKey(w http.ResponseWriter, r *http.Request) {
	var req WalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	list, err := h.transactions.ListByWallet(r.Context(), req.WalletPublicKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTransactionListResponse(list))
}

func (h *Handler) ListAllTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := h.transactions.ListAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newAllTransactionsResponse(list))
}

func (h *Handler) ListAllTransactionsObfuscated(w http.ResponseWriter, r *http.Request) {
	list, err := h.transactions.ListObfuscated(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newAllTransactionsResponse(list))
}

func (h *Handler) RevealTransactions(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	if !h.decode(w, r, &req) {
		return
	}
	list, err := h.transactions.Reveal(r.Context(), req.InputKeys)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newAllTransactionsResponse(list))
}

func (h *Handler) DeleteAllTransactionLogs(w http.ResponseWriter, r *http.Request) {
	if err := h.transactions.DeleteAll(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) ListAllWalletPublicKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.transactions.ListWalletPublicKeys(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, WalletPublicKeysResponse{Success: true, WalletPublicKeys: keys})
}

func (h *Handler) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	var req WalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	balance, err := h.transactions.WalletBalance(r.Context(), req.WalletPublicKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, WalletBalanceResponse{Success: true, WalletBalance: *balance})
}

func (h *Handler) CreateSecureElement(w http.ResponseWriter, r *http.Request) {
	var element entities.SecureElement
	if !h.decode(w, r, &element) {
		return
	}
	created, err := h.secureElements.Create(r.Context(), element)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, CreateSecureElementResponse{Success: true, Value: *created})
}

func (h *Handler) GetSecureElement(w http.ResponseWriter, r *http.Request) {
	var req WalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	element, err := h.secureElements.Get(r.Context(), req.WalletPublicKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SecureElementResponse{Success: true, SecureElement: *element})
}

func (h *Handler) ListSecureElements(w http.ResponseWriter, r *http.Request) {
	elements, err := h.secureElements.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SecureElementListResponse{Success: true, SecureElements: elements})
}

func (h *Handler) StoreValue(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.values.Store(r.Context(), req.Key, req.Value); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) FetchValue(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !h.decode(w, r, &req) {
		return
	}
	value, err := h.values.Fetch(r.Context(), req.Key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ValueResponse{Success: true, Value: value})
}

func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Content-Type", "application/json")
	_, _ = w.Write([]byte("{\"status\":\"UP\"}"))
}

// decode reads the json body into v. An empty body leaves v untouched.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.logger.Debugw("Invalid request body", "path", r.URL.Path, "error", err)
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Success: false, Message: "Invalid request body"})
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validationErr *entities.ValidationError
	var notFoundErr *entities.NotFoundError
	var duplicateErr *entities.DuplicateError

	switch {
	case errors.As(err, &validationErr):
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: validationErr.Message, Fields: validationErr.Fields})
	case errors.As(err, &notFoundErr):
		h.writeJSON(w, http.StatusNotFound, ErrorResponse{Message: notFoundErr.Message})
	case errors.As(err, &duplicateErr):
		h.writeJSON(w, http.StatusConflict, ErrorResponse{Message: duplicateErr.Message})
	default:
		h.logger.Errorw("Error handling request", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "Internal error"})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorw("Error encoding response", "error", err)
	}
}
