package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/walletmaster/backend/internal/middleware"
	"github.com/walletmaster/backend/internal/models"
	"github.com/walletmaster/backend/internal/services"
	"github.com/walletmaster/backend/internal/store"
)

// CardHandler manages the caller's cards. Full card numbers are accepted on
// create, reduced to the last four digits, and never serialized back out.
type CardHandler struct {
	store     store.Store
	validator *services.ValidationHelper
}

func NewCardHandler(st store.Store) *CardHandler {
	return &CardHandler{
		store:     st,
		validator: services.NewValidationHelper(),
	}
}

type cardRequest struct {
	CardType   string          `json:"cardType" validate:"required,oneof=debit credit prepaid"`
	BankName   string          `json:"bankName" validate:"required"`
	CardNumber string          `json:"cardNumber" validate:"required,numeric,min=13,max=19"`
	ExpiryDate string          `json:"expiryDate" validate:"required"`
	Balance    decimal.Decimal `json:"balance"`
	CardColor  string          `json:"cardColor"`
	IsDefault  bool            `json:"isDefault"`
}

// List returns the caller's cards
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	cards, err := h.store.ListCardsByUser(r.Context(), userID)
	if err != nil {
		log.Printf("[CARDS] Failed to list cards for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch cards", http.StatusInternalServerError, nil)
		return
	}
	if cards == nil {
		cards = []models.Card{}
	}
	services.SendJSON(w, http.StatusOK, cards)
}

// Create adds a card for the caller
func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req cardRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if req.Balance.IsNegative() {
		services.SendErrorResponse(w, "Balance cannot be negative", http.StatusBadRequest, nil)
		return
	}

	card, err := h.store.CreateCard(r.Context(), &models.Card{
		UserID:     userID,
		CardType:   req.CardType,
		BankName:   req.BankName,
		CardNumber: req.CardNumber,
		LastFour:   req.CardNumber[len(req.CardNumber)-4:],
		ExpiryDate: req.ExpiryDate,
		Balance:    req.Balance,
		CardColor:  req.CardColor,
		IsDefault:  req.IsDefault,
	})
	if err != nil {
		log.Printf("[CARDS] Failed to create card for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to create card", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CARDS] Card created: id=%d user=%d bank=%s", card.ID, userID, card.BankName)
	services.SendJSON(w, http.StatusCreated, card)
}

// Update modifies display fields of the caller's card. Balance is excluded;
// it only moves through payment operations.
func (h *CardHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	card, ok := h.ownedCard(w, r, userID)
	if !ok {
		return
	}

	var req struct {
		CardType   string `json:"cardType"`
		BankName   string `json:"bankName"`
		ExpiryDate string `json:"expiryDate"`
		CardColor  string `json:"cardColor"`
		IsDefault  *bool  `json:"isDefault"`
	}
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if req.CardType != "" {
		card.CardType = req.CardType
	}
	if req.BankName != "" {
		card.BankName = req.BankName
	}
	if req.ExpiryDate != "" {
		card.ExpiryDate = req.ExpiryDate
	}
	if req.CardColor != "" {
		card.CardColor = req.CardColor
	}
	if req.IsDefault != nil {
		card.IsDefault = *req.IsDefault
	}

	updated, err := h.store.UpdateCard(r.Context(), card)
	if err != nil {
		log.Printf("[CARDS] Failed to update card %d: %v", card.ID, err)
		services.SendErrorResponse(w, "Failed to update card", http.StatusInternalServerError, nil)
		return
	}
	services.SendJSON(w, http.StatusOK, updated)
}

// Delete removes the caller's card
func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	card, ok := h.ownedCard(w, r, userID)
	if !ok {
		return
	}

	if err := h.store.DeleteCard(r.Context(), card.ID); err != nil {
		log.Printf("[CARDS] Failed to delete card %d: %v", card.ID, err)
		services.SendErrorResponse(w, "Failed to delete card", http.StatusInternalServerError, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedCard resolves the {id} path parameter and enforces ownership,
// writing the error response itself when the lookup fails.
func (h *CardHandler) ownedCard(w http.ResponseWriter, r *http.Request, userID int) (*models.Card, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid card id", http.StatusBadRequest, nil)
		return nil, false
	}

	card, err := h.store.GetCard(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			services.SendErrorResponse(w, "Card not found", http.StatusNotFound, nil)
		} else {
			services.SendErrorResponse(w, "Failed to fetch card", http.StatusInternalServerError, nil)
		}
		return nil, false
	}
	if card.UserID != userID {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return nil, false
	}
	return card, true
}
