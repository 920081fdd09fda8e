package handlers

import (
	"net/http"
	"strings"

	"github.com/walletmaster/backend/internal/middleware"
	"github.com/walletmaster/backend/internal/services"
	"github.com/walletmaster/backend/internal/store"
)

// UserHandler serves recipient lookup for transfers
type UserHandler struct {
	store store.Store
}

func NewUserHandler(st store.Store) *UserHandler {
	return &UserHandler{store: st}
}

// Find resolves a transfer recipient by email. Only the public view of the
// user is returned, and looking yourself up is rejected so the client can
// surface the self-transfer error before attempting a payment.
func (h *UserHandler) Find(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		services.SendErrorResponse(w, "Email is required", http.StatusBadRequest, nil)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		services.SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}
	if user.ID == userID {
		services.SendErrorResponse(w, "Cannot transfer funds to yourself", http.StatusBadRequest, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, user.Public())
}
