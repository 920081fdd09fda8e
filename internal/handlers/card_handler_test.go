package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletmaster/backend/internal/models"
	"github.com/walletmaster/backend/internal/store"
)

func cardTestRouter(h *CardHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/cards", h.List)
	r.Post("/api/cards", h.Create)
	r.Put("/api/cards/{id}", h.Update)
	r.Delete("/api/cards/{id}", h.Delete)
	return r
}

func TestCardHandler_Create(t *testing.T) {
	st := store.NewMemoryStore()
	user, err := st.CreateUser(context.Background(), &models.User{
		Username: "alice", Password: "hash", FirstName: "Alice", LastName: "Nguyen", Email: "alice@example.com",
	})
	require.NoError(t, err)
	router := cardTestRouter(NewCardHandler(st))

	t.Run("create returns the card with only the last four digits", func(t *testing.T) {
		r := authedRequest("POST", "/api/cards", map[string]any{
			"cardType": "debit", "bankName": "First Bank", "cardNumber": "4111111111111111",
			"expiryDate": "12/27", "balance": "250.00", "cardColor": "#3B82F6", "isDefault": true,
		}, user.ID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var card models.Card
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
		assert.Equal(t, "1111", card.LastFour)
		assert.True(t, card.Balance.Equal(decimal.NewFromFloat(250.00)))
		assert.NotContains(t, w.Body.String(), "4111111111111111")
	})

	t.Run("non-numeric card number fails validation", func(t *testing.T) {
		r := authedRequest("POST", "/api/cards", map[string]any{
			"cardType": "debit", "bankName": "First Bank", "cardNumber": "4111-1111-1111-1111",
			"expiryDate": "12/27",
		}, user.ID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("negative starting balance is rejected", func(t *testing.T) {
		r := authedRequest("POST", "/api/cards", map[string]any{
			"cardType": "debit", "bankName": "First Bank", "cardNumber": "4111111111111111",
			"expiryDate": "12/27", "balance": "-5.00",
		}, user.ID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCardHandler_Ownership(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	alice, err := st.CreateUser(ctx, &models.User{
		Username: "alice", Password: "hash", FirstName: "Alice", LastName: "Nguyen", Email: "alice@example.com",
	})
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, &models.User{
		Username: "bob", Password: "hash", FirstName: "Bob", LastName: "Okafor", Email: "bob@example.com",
	})
	require.NoError(t, err)

	bobCard, err := st.CreateCard(ctx, &models.Card{
		UserID: bob.ID, CardType: "debit", BankName: "Union Bank", CardNumber: "4222222222222222",
		LastFour: "2222", ExpiryDate: "03/28", Balance: decimal.NewFromInt(25),
	})
	require.NoError(t, err)

	router := cardTestRouter(NewCardHandler(st))

	t.Run("updating someone else's card is forbidden", func(t *testing.T) {
		r := authedRequest("PUT", fmt.Sprintf("/api/cards/%d", bobCard.ID), map[string]any{
			"bankName": "Hijacked Bank",
		}, alice.ID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("deleting someone else's card is forbidden", func(t *testing.T) {
		r := authedRequest("DELETE", fmt.Sprintf("/api/cards/%d", bobCard.ID), nil, alice.ID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing card is 404", func(t *testing.T) {
		r := authedRequest("DELETE", "/api/cards/999", nil, alice.ID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("owner can update and delete", func(t *testing.T) {
		card, err := st.CreateCard(ctx, &models.Card{
			UserID: alice.ID, CardType: "debit", BankName: "First Bank", CardNumber: "4111111111111111",
			LastFour: "1111", ExpiryDate: "12/27", Balance: decimal.NewFromInt(10),
		})
		require.NoError(t, err)

		r := authedRequest("PUT", fmt.Sprintf("/api/cards/%d", card.ID), map[string]any{
			"cardColor": "#10B981",
		}, alice.ID)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		var updated models.Card
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
		assert.Equal(t, "#10B981", updated.CardColor)

		r = authedRequest("DELETE", fmt.Sprintf("/api/cards/%d", card.ID), nil, alice.ID)
		w = httptest.NewRecorder()
		router.ServeHTTP(w, r)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestUserHandler_Find(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	alice, err := st.CreateUser(ctx, &models.User{
		Username: "alice", Password: "secret-hash", FirstName: "Alice", LastName: "Nguyen", Email: "alice@example.com",
	})
	require.NoError(t, err)
	bob, err := st.CreateUser(ctx, &models.User{
		Username: "bob", Password: "hash", FirstName: "Bob", LastName: "Okafor", Email: "bob@example.com",
	})
	require.NoError(t, err)

	handler := NewUserHandler(st)

	t.Run("finds a recipient by email without leaking the hash", func(t *testing.T) {
		r := authedRequest("GET", "/api/users/find?email=bob@example.com", nil, alice.ID)
		w := httptest.NewRecorder()

		handler.Find(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var found models.PublicUser
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
		assert.Equal(t, bob.ID, found.ID)
		assert.Equal(t, "Bob", found.FirstName)
		assert.NotContains(t, w.Body.String(), "hash")
		assert.NotContains(t, w.Body.String(), "username")
	})

	t.Run("self lookup is rejected", func(t *testing.T) {
		r := authedRequest("GET", "/api/users/find?email=alice@example.com", nil, alice.ID)
		w := httptest.NewRecorder()

		handler.Find(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown email is 404", func(t *testing.T) {
		r := authedRequest("GET", "/api/users/find?email=nobody@example.com", nil, alice.ID)
		w := httptest.NewRecorder()

		handler.Find(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
