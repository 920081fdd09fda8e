package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/walletmaster/backend/internal/gateway"
	"github.com/walletmaster/backend/internal/middleware"
	"github.com/walletmaster/backend/internal/services"
)

// PaymentHandler exposes the payment orchestration endpoints
type PaymentHandler struct {
	service   *services.PaymentService
	gateways  *gateway.Registry
	validator *services.ValidationHelper
}

func NewPaymentHandler(service *services.PaymentService, gateways *gateway.Registry) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		gateways:  gateways,
		validator: services.NewValidationHelper(),
	}
}

// sendFailure maps orchestrator errors onto HTTP responses. Anything that is
// not an operation error is an internal fault and stays opaque to the client.
func sendFailure(w http.ResponseWriter, err error) {
	var opErr *services.OpError
	if errors.As(err, &opErr) {
		services.SendOpError(w, opErr)
		return
	}
	log.Printf("[PAYMENT] Unexpected error: %v", err)
	services.SendErrorResponse(w, "Payment processing failed", http.StatusInternalServerError, nil)
}

// CreateIntent registers a payment intent with the active gateway
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount   decimal.Decimal   `json:"amount"`
		Currency string            `json:"currency"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	intent, err := h.service.CreateIntent(r.Context(), userID, req.Amount, req.Currency, req.Metadata)
	if err != nil {
		sendFailure(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, intent)
}

// AddFunds deposits onto one of the caller's cards
func (h *PaymentHandler) AddFunds(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		CardID          int             `json:"cardId" validate:"required,gt=0"`
		Amount          decimal.Decimal `json:"amount"`
		PaymentMethodID string          `json:"paymentMethodId"`
	}
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.AddFunds(r.Context(), userID, req.CardID, req.Amount, req.PaymentMethodID)
	if err != nil {
		sendFailure(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"card":        result.Card,
		"transaction": result.Transaction,
	})
}

// PayUtility pays a bill from one of the caller's cards
func (h *PaymentHandler) PayUtility(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		CardID          int             `json:"cardId" validate:"required,gt=0"`
		Amount          decimal.Decimal `json:"amount"`
		UtilityName     string          `json:"utilityName" validate:"required"`
		UtilityCategory string          `json:"utilityCategory"`
		Description     string          `json:"description"`
	}
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.PayUtility(r.Context(), userID, req.CardID, req.Amount, req.UtilityName, req.UtilityCategory, req.Description)
	if err != nil {
		sendFailure(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"card":        result.Card,
		"transaction": result.Transaction,
		"paymentId":   result.PaymentID,
	})
}

// Transfer sends funds to another user's default card
func (h *PaymentHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		RecipientID int             `json:"recipientId" validate:"required,gt=0"`
		CardID      int             `json:"cardId" validate:"required,gt=0"`
		Amount      decimal.Decimal `json:"amount"`
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

	result, err := h.service.Transfer(r.Context(), userID, req.RecipientID, req.CardID, req.Amount, req.Description)
	if err != nil {
		sendFailure(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"senderCard":           result.SenderCard,
		"recipientCard":        result.RecipientCard,
		"senderTransaction":    result.SenderTransaction,
		"recipientTransaction": result.RecipientTransaction,
		"paymentId":            result.PaymentID,
	})
}

// ListGateways reports the configured payment processors
func (h *PaymentHandler) ListGateways(w http.ResponseWriter, r *http.Request) {
	type gatewayInfo struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := []gatewayInfo{}
	for _, g := range h.gateways.All() {
		out = append(out, gatewayInfo{ID: g.ID(), Name: g.Name()})
	}
	services.SendJSON(w, http.StatusOK, out)
}
