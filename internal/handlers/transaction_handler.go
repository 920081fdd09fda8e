package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walletmaster/backend/internal/middleware"
	"github.com/walletmaster/backend/internal/models"
	"github.com/walletmaster/backend/internal/services"
	"github.com/walletmaster/backend/internal/store"
)

// TransactionHandler serves the transaction history and manual entry. Entries
// created here are bookkeeping records; they never move card balances.
type TransactionHandler struct {
	store     store.Store
	validator *services.ValidationHelper
}

func NewTransactionHandler(st store.Store) *TransactionHandler {
	return &TransactionHandler{
		store:     st,
		validator: services.NewValidationHelper(),
	}
}

// List returns the caller's transactions, newest first. An optional limit
// query parameter caps the result.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			services.SendErrorResponse(w, "Invalid limit", http.StatusBadRequest, nil)
			return
		}
		limit = parsed
	}

	txns, err := h.store.ListTransactionsByUser(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[TXN] Failed to list transactions for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	services.SendJSON(w, http.StatusOK, txns)
}

// Create records a manual transaction
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		CardID      int             `json:"cardId" validate:"required,gt=0"`
		CategoryID  int             `json:"categoryId" validate:"required,gt=0"`
		Merchant    string          `json:"merchant" validate:"required"`
		Amount      decimal.Decimal `json:"amount"`
		Type        string          `json:"type" validate:"required,oneof=income expense"`
		Date        *time.Time      `json:"date"`
		Description string          `json:"description"`
	}
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if !req.Amount.IsPositive() {
		services.SendErrorResponse(w, "Amount must be a positive number", http.StatusBadRequest, nil)
		return
	}

	card, err := h.store.GetCard(r.Context(), req.CardID)
	if err != nil || card.UserID != userID {
		services.SendErrorResponse(w, "Card not found", http.StatusNotFound, nil)
		return
	}
	if _, err := h.store.GetCategory(r.Context(), req.CategoryID); err != nil {
		services.SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		return
	}

	date := time.Now()
	if req.Date != nil {
		date = *req.Date
	}

	txn, err := h.store.CreateTransaction(r.Context(), &models.Transaction{
		UserID:      userID,
		CardID:      req.CardID,
		CategoryID:  req.CategoryID,
		Merchant:    req.Merchant,
		Amount:      req.Amount,
		Type:        req.Type,
		Date:        date,
		Description: req.Description,
	})
	if err != nil {
		log.Printf("[TXN] Failed to create transaction for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}
	services.SendJSON(w, http.StatusCreated, txn)
}
