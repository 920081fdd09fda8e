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

// GoalHandler manages savings goals
type GoalHandler struct {
	store     store.Store
	validator *services.ValidationHelper
}

func NewGoalHandler(st store.Store) *GoalHandler {
	return &GoalHandler{
		store:     st,
		validator: services.NewValidationHelper(),
	}
}

// List returns the caller's savings goals
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	goals, err := h.store.ListSavingsGoalsByUser(r.Context(), userID)
	if err != nil {
		log.Printf("[GOALS] Failed to list goals for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to fetch savings goals", http.StatusInternalServerError, nil)
		return
	}
	if goals == nil {
		goals = []models.SavingsGoal{}
	}
	services.SendJSON(w, http.StatusOK, goals)
}

// Create adds a savings goal for the caller
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Name          string          `json:"name" validate:"required"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
		TargetDate    *time.Time      `json:"targetDate"`
	}
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if !req.TargetAmount.IsPositive() {
		services.SendErrorResponse(w, "Target amount must be a positive number", http.StatusBadRequest, nil)
		return
	}
	if req.CurrentAmount.IsNegative() {
		services.SendErrorResponse(w, "Current amount cannot be negative", http.StatusBadRequest, nil)
		return
	}

	goal, err := h.store.CreateSavingsGoal(r.Context(), &models.SavingsGoal{
		UserID:        userID,
		Name:          req.Name,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    req.TargetDate,
	})
	if err != nil {
		log.Printf("[GOALS] Failed to create goal for user %d: %v", userID, err)
		services.SendErrorResponse(w, "Failed to create savings goal", http.StatusInternalServerError, nil)
		return
	}
	services.SendJSON(w, http.StatusCreated, goal)
}

// Update modifies the caller's savings goal
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	goal, ok := h.ownedGoal(w, r, userID)
	if !ok {
		return
	}

	var req struct {
		Name          string           `json:"name"`
		TargetAmount  *decimal.Decimal `json:"targetAmount"`
		CurrentAmount *decimal.Decimal `json:"currentAmount"`
		TargetDate    *time.Time       `json:"targetDate"`
	}
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if req.Name != "" {
		goal.Name = req.Name
	}
	if req.TargetAmount != nil {
		if !req.TargetAmount.IsPositive() {
			services.SendErrorResponse(w, "Target amount must be a positive number", http.StatusBadRequest, nil)
			return
		}
		goal.TargetAmount = *req.TargetAmount
	}
	if req.CurrentAmount != nil {
		if req.CurrentAmount.IsNegative() {
			services.SendErrorResponse(w, "Current amount cannot be negative", http.StatusBadRequest, nil)
			return
		}
		goal.CurrentAmount = *req.CurrentAmount
	}
	if req.TargetDate != nil {
		goal.TargetDate = req.TargetDate
	}

	updated, err := h.store.UpdateSavingsGoal(r.Context(), goal)
	if err != nil {
		log.Printf("[GOALS] Failed to update goal %d: %v", goal.ID, err)
		services.SendErrorResponse(w, "Failed to update savings goal", http.StatusInternalServerError, nil)
		return
	}
	services.SendJSON(w, http.StatusOK, updated)
}

// Delete removes the caller's savings goal
func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	goal, ok := h.ownedGoal(w, r, userID)
	if !ok {
		return
	}

	if err := h.store.DeleteSavingsGoal(r.Context(), goal.ID); err != nil {
		log.Printf("[GOALS] Failed to delete goal %d: %v", goal.ID, err)
		services.SendErrorResponse(w, "Failed to delete savings goal", http.StatusInternalServerError, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GoalHandler) ownedGoal(w http.ResponseWriter, r *http.Request, userID int) (*models.SavingsGoal, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid savings goal id", http.StatusBadRequest, nil)
		return nil, false
	}

	goal, err := h.store.GetSavingsGoal(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			services.SendErrorResponse(w, "Savings goal not found", http.StatusNotFound, nil)
		} else {
			services.SendErrorResponse(w, "Failed to fetch savings goal", http.StatusInternalServerError, nil)
		}
		return nil, false
	}
	if goal.UserID != userID {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return nil, false
	}
	return goal, true
}
