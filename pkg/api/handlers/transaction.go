// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/coinsaga/coinsaga/pkg/api/middleware"
	"github.com/coinsaga/coinsaga/pkg/api/models"
	"github.com/coinsaga/coinsaga/pkg/api/response"
	"github.com/coinsaga/coinsaga/pkg/logger"
	"github.com/coinsaga/coinsaga/pkg/service"
	"github.com/coinsaga/coinsaga/pkg/transaction"
)

const defaultListLimit = 20

// Minimum accepted values for a transaction request. Quantity and unit price
// allow one satoshi-scale unit; the derived total must be at least one cent.
var (
	minQuantity   = decimal.New(1, -8) // 0.00000001
	minUnitPrice  = decimal.New(1, -8)
	minTotalValue = decimal.New(1, -2) // 0.01
)

// TransactionHandler handles transaction API endpoints.
type TransactionHandler struct {
	service   *service.TransactionService
	logger    logger.Logger
	validator *validator.Validate
}

// NewTransactionHandler creates a transaction handler.
func NewTransactionHandler(svc *service.TransactionService, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{
		service:   svc,
		logger:    log,
		validator: validator.New(),
	}
}

// CreateTransaction handles POST /api/v1/transactions.
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", getRequestID(r.Context()))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return
	}
	if req.Quantity.Cmp(minQuantity) < 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"quantity must be at least "+minQuantity.String(), getRequestID(r.Context()))
		return
	}
	if req.UnitPrice.Cmp(minUnitPrice) < 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"unit price must be at least "+minUnitPrice.String(), getRequestID(r.Context()))
		return
	}
	if req.Quantity.Mul(req.UnitPrice).Cmp(minTotalValue) < 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"total value must be at least "+minTotalValue.String(), getRequestID(r.Context()))
		return
	}

	txn, err := h.service.Create(r.Context(), service.CreateInput{
		UserID:    middleware.GetUserID(r.Context()),
		AssetID:   req.AssetID,
		Kind:      transaction.Kind(req.Kind),
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
	})
	if err != nil {
		h.logger.Error("transaction creation failed", "error", err, "request_id", getRequestID(r.Context()))
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusCreated, toResponse(txn))
}

// GetTransaction handles GET /api/v1/transactions/{id}.
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "transaction id is required", getRequestID(r.Context()))
		return
	}

	txn, err := h.service.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}
	response.JSON(w, http.StatusOK, toResponse(txn))
}

// ListTransactions handles GET /api/v1/transactions. An asset_id query
// parameter narrows the listing to one asset.
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := parseListFilter(r)
	userID := middleware.GetUserID(r.Context())

	var (
		txns  []*transaction.Transaction
		total int
		err   error
	)
	if assetID := r.URL.Query().Get("asset_id"); assetID != "" {
		txns, total, err = h.service.ListByAsset(r.Context(), userID, assetID, filter)
	} else {
		txns, total, err = h.service.List(r.Context(), userID, filter)
	}
	if err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}

	items := make([]models.TransactionResponse, 0, len(txns))
	for _, txn := range txns {
		items = append(items, toResponse(txn))
	}
	response.JSON(w, http.StatusOK, models.TransactionListResponse{
		Transactions: items,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
}

// DeleteTransaction handles DELETE /api/v1/transactions/{id}. Rows whose
// saga is still pending cannot be deleted.
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "transaction id is required", getRequestID(r.Context()))
		return
	}

	if err := h.service.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		response.HandleError(w, err, getRequestID(r.Context()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseListFilter(r *http.Request) transaction.ListFilter {
	filter := transaction.ListFilter{Limit: defaultListLimit}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	return filter
}

func toResponse(txn *transaction.Transaction) models.TransactionResponse {
	return models.TransactionResponse{
		ID:            txn.ID,
		SagaID:        txn.SagaID,
		UserID:        txn.UserID,
		AssetID:       txn.AssetID,
		Kind:          string(txn.Kind),
		Quantity:      txn.Quantity,
		UnitPrice:     txn.UnitPrice,
		TotalValue:    txn.TotalValue,
		Status:        string(txn.Status),
		FailureReason: txn.FailureReason,
		CreatedAt:     txn.CreatedAt,
		UpdatedAt:     txn.UpdatedAt,
	}
}

func getRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}
