package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOpenAI(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if status >= 300 {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func newTestClient(baseURL string) *Client {
	viper.Set("openai.api_key", "test-key")
	viper.Set("openai.api_base", baseURL)
	viper.Set("openai.model", "gpt-4o")
	return NewClient()
}

func TestClient_Advice(t *testing.T) {
	t.Run("returns the model response", func(t *testing.T) {
		srv := fakeOpenAI(t, "Spend less on coffee.", http.StatusOK)
		defer srv.Close()

		c := newTestClient(srv.URL)
		advice := c.Advice(context.Background(), "How do I save more?", map[string]any{"balance": "100.00"})
		assert.Equal(t, "Spend less on coffee.", advice)
	})

	t.Run("falls back on API failure", func(t *testing.T) {
		srv := fakeOpenAI(t, "", http.StatusInternalServerError)
		defer srv.Close()

		c := newTestClient(srv.URL)
		advice := c.Advice(context.Background(), "How do I save more?", nil)
		assert.Equal(t, "I'm experiencing technical difficulties. Please try again later.", advice)
	})

	t.Run("falls back without an API key", func(t *testing.T) {
		viper.Set("openai.api_key", "")
		viper.Set("openai.api_base", defaultAPIBase)
		c := NewClient()

		advice := c.Advice(context.Background(), "Help", nil)
		assert.Equal(t, "I'm experiencing technical difficulties. Please try again later.", advice)
	})
}

func TestClient_Insights(t *testing.T) {
	t.Run("parses insight cards from json mode", func(t *testing.T) {
		payload, err := json.Marshal(map[string]any{
			"insights": []Insight{
				{Text: "Cut delivery spending.", Type: "spending", Icon: "utensils", Color: "#3B82F6"},
			},
		})
		require.NoError(t, err)

		srv := fakeOpenAI(t, string(payload), http.StatusOK)
		defer srv.Close()

		c := newTestClient(srv.URL)
		insights := c.Insights(context.Background(), map[string]any{})
		require.Len(t, insights, 1)
		assert.Equal(t, "Cut delivery spending.", insights[0].Text)
		assert.Equal(t, "spending", insights[0].Type)
	})

	t.Run("malformed model output falls back to canned insights", func(t *testing.T) {
		srv := fakeOpenAI(t, "not json", http.StatusOK)
		defer srv.Close()

		c := newTestClient(srv.URL)
		insights := c.Insights(context.Background(), map[string]any{})
		require.Len(t, insights, 2)
		assert.Equal(t, "spending", insights[0].Type)
		assert.Equal(t, "saving", insights[1].Type)
	})

	t.Run("API failure falls back to canned insights", func(t *testing.T) {
		srv := fakeOpenAI(t, "", http.StatusBadGateway)
		defer srv.Close()

		c := newTestClient(srv.URL)
		insights := c.Insights(context.Background(), map[string]any{})
		require.Len(t, insights, 2)
		assert.Equal(t, "saving", insights[0].Type)
	})
}

func TestClient_SpendingAnalysis(t *testing.T) {
	t.Run("parses recommendations", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]any{
			"recommendations": []string{"Batch your errands.", "Cook at home twice a week."},
		})

		srv := fakeOpenAI(t, string(payload), http.StatusOK)
		defer srv.Close()

		c := newTestClient(srv.URL)
		recs := c.SpendingAnalysis(context.Background(), map[string]any{})
		require.Len(t, recs, 2)
		assert.Equal(t, "Batch your errands.", recs[0])
	})

	t.Run("falls back on failure", func(t *testing.T) {
		srv := fakeOpenAI(t, "", http.StatusServiceUnavailable)
		defer srv.Close()

		c := newTestClient(srv.URL)
		recs := c.SpendingAnalysis(context.Background(), map[string]any{})
		assert.Len(t, recs, 3)
	})
}
