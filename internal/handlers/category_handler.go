package handlers

import (
	"log"
	"net/http"

	"github.com/walletmaster/backend/internal/services"
	"github.com/walletmaster/backend/internal/store"
)

// CategoryHandler serves the shared category catalog
type CategoryHandler struct {
	store store.Store
}

func NewCategoryHandler(st store.Store) *CategoryHandler {
	return &CategoryHandler{store: st}
}

// List returns every category. Categories are global, not per-user.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.store.ListCategories(r.Context())
	if err != nil {
		log.Printf("[CATEGORY] Failed to list categories: %v", err)
		services.SendErrorResponse(w, "Failed to fetch categories", http.StatusInternalServerError, nil)
		return
	}
	services.SendJSON(w, http.StatusOK, categories)
}
