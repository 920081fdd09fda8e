package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationHelper(t *testing.T) {
	vh := NewValidationHelper()

	type payload struct {
		Email  string `validate:"required,email"`
		Amount int    `validate:"gt=0"`
	}

	assert.NoError(t, vh.ValidateStruct(&payload{Email: "a@example.com", Amount: 5}))
	assert.Error(t, vh.ValidateStruct(&payload{Email: "not-an-email", Amount: 5}))
	assert.Error(t, vh.ValidateStruct(&payload{Email: "a@example.com", Amount: 0}))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok"}`))
		w := httptest.NewRecorder()

		var p payload
		require.NoError(t, DecodeJSON(w, r, &p))
		assert.Equal(t, "ok", p.Name)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok","extra":1}`))
		w := httptest.NewRecorder()

		var p payload
		assert.Error(t, DecodeJSON(w, r, &p))
	})

	t.Run("second JSON object is rejected", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"ok"}{"name":"again"}`))
		w := httptest.NewRecorder()

		var p payload
		assert.Error(t, DecodeJSON(w, r, &p))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Something failed", http.StatusBadRequest, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Something failed", resp.Error)
		assert.Empty(t, resp.Details)
	})

	t.Run("validation details are included", func(t *testing.T) {
		vh := NewValidationHelper()
		err := vh.ValidateStruct(&struct {
			Email string `validate:"required,email"`
		}{Email: "nope"})
		require.Error(t, err)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Details, "Email")
	})
}

func TestSendOpError(t *testing.T) {
	w := httptest.NewRecorder()
	SendOpError(w, insufficientFunds())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, CodeInsufficientFunds, resp.Error)
}

func TestOpErrorHTTPStatus(t *testing.T) {
	cases := []struct {
		err    *OpError
		status int
	}{
		{invalidRequest("bad"), http.StatusBadRequest},
		{insufficientFunds(), http.StatusBadRequest},
		{recipientHasNoCard(), http.StatusBadRequest},
		{paymentDeclined(""), http.StatusBadRequest},
		{gatewayUnavailable(), http.StatusInternalServerError},
		{processingFailed(), http.StatusInternalServerError},
		{reconciliationRequired(), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, tc.err.HTTPStatus(), tc.err.Code)
	}
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 2_000_000)
	body := `{"name":"` + string(big) + `"}`
	r := httptest.NewRequest("POST", "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	var p struct {
		Name string `json:"name"`
	}
	assert.Error(t, DecodeJSON(w, r, &p))
}
