package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/walletmaster/backend/internal/middleware"
	"github.com/walletmaster/backend/internal/models"
	"github.com/walletmaster/backend/internal/services"
	"github.com/walletmaster/backend/internal/store"
)

// BudgetHandler manages per-category spending budgets
type BudgetHandler struct {
	store     store.Store
	validator *services.ValidationHelper
}

func NewBudgetHandler(st store.Store) *BudgetHandler {
	return &BudgetHandler{
		store:     st,
		validator: services.NewValidationHelper(),
	}
}

type budgetRequest struct {
	CategoryID int             `json:"categoryId" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Period     string          `json:"period" validate:"required,oneof=weekly monthly yearly"`
	StartDate  *time.Time      `json:"startDate"`
	EndDate    *time.Time      `json:"endDate"`
}

// List returns the caller's budgets
func (h *BudgetHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	budgets, err := h.store.ListBudgetsByUser(r.Context(), userID)
	if err != nil {
		log.Printf("[BUDGET] Failed to list budgets for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch budgets", http.StatusInternalServerError, nil)
		return
	}
	if budgets == nil {
		budgets = []models.Budget{}
	}
	services.SendJSON(w, http.StatusOK, budgets)
}

// Create adds a budget for the caller
func (h *BudgetHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req budgetRequest
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
	if _, err := h.store.GetCategory(r.Context(), req.CategoryID); err != nil {
		services.SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		return
	}

	start := time.Now()
	if req.StartDate != nil {
		start = *req.StartDate
	}

	budget, err := h.store.CreateBudget(r.Context(), &models.Budget{
		UserID:     userID,
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Period:     req.Period,
		StartDate:  start,
		EndDate:    req.EndDate,
	})
	if err != nil {
		log.Printf("[BUDGET] Failed to create budget for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to create budget", http.StatusInternalServerError, nil)
		return
	}
	services.SendJSON(w, http.StatusCreated, budget)
}

// Update modifies the caller's budget
func (h *BudgetHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	budget, ok := h.ownedBudget(w, r, userID)
	if !ok {
		return
	}

	var req struct {
		CategoryID *int             `json:"categoryId"`
		Amount     *decimal.Decimal `json:"amount"`
		Period     string           `json:"period"`
		StartDate  *time.Time       `json:"startDate"`
		EndDate    *time.Time       `json:"endDate"`
	}
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if req.CategoryID != nil {
		if _, err := h.store.GetCategory(r.Context(), *req.CategoryID); err != nil {
			services.SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
			return
		}
		budget.CategoryID = *req.CategoryID
	}
	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			services.SendErrorResponse(w, "Amount must be a positive number", http.StatusBadRequest, nil)
			return
		}
		budget.Amount = *req.Amount
	}
	if req.Period != "" {
		budget.Period = req.Period
	}
	if req.StartDate != nil {
		budget.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		budget.EndDate = req.EndDate
	}

	updated, err := h.store.UpdateBudget(r.Context(), budget)
	if err != nil {
		log.Printf("[BUDGET] Failed to update budget %d: %v", budget.ID, err)
		services.SendErrorResponse(w, "Failed to update budget", http.StatusInternalServerError, nil)
		return
	}
	services.SendJSON(w, http.StatusOK, updated)
}

// Delete removes the caller's budget
func (h *BudgetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	budget, ok := h.ownedBudget(w, r, userID)
	if !ok {
		return
	}

	if err := h.store.DeleteBudget(r.Context(), budget.ID); err != nil {
		log.Printf("[BUDGET] Failed to delete budget %d: %v", budget.ID, err)
		services.SendErrorResponse(w, "Failed to delete budget", http.StatusInternalServerError, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BudgetHandler) ownedBudget(w http.ResponseWriter, r *http.Request, userID int) (*models.Budget, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid budget id", http.StatusBadRequest, nil)
		return nil, false
	}

	budget, err := h.store.GetBudget(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			services.SendErrorResponse(w, "Budget not found", http.StatusNotFound, nil)
		} else {
			services.SendErrorResponse(w, "Failed to fetch budget", http.StatusInternalServerError, nil)
		}
		return nil, false
	}
	if budget.UserID != userID {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return nil, false
	}
	return budget, true
}
