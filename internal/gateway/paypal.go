package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const paypalSandboxBase = "https://api-m.sandbox.paypal.com"

// PayPalGateway implements the redirect-based PayPal orders flow: create an
// order, send the payer to the approve link, capture after approval.
type PayPalGateway struct {
	clientID     string
	clientSecret string
	baseURL      string
	http         *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalGateway() *PayPalGateway {
	viper.SetDefault("payment.paypal_api_base", paypalSandboxBase)
	return &PayPalGateway{
		clientID:     viper.GetString("payment.paypal_client_id"),
		clientSecret: viper.GetString("payment.paypal_client_secret"),
		baseURL:      viper.GetString("payment.paypal_api_base"),
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *PayPalGateway) Name() string { return "PayPal" }
func (g *PayPalGateway) ID() string   { return "paypal" }

func (g *PayPalGateway) configured() bool {
	return g.clientID != "" && g.clientSecret != ""
}

// getAccessToken exchanges client credentials for a bearer token, cached
// until shortly before expiry.
func (g *PayPalGateway) getAccessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	auth := base64.StdEncoding.EncodeToString([]byte(g.clientID + ":" + g.clientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("paypal: token exchange failed with status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", err
	}
	g.accessToken = token.AccessToken
	g.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)
	return g.accessToken, nil
}

func (g *PayPalGateway) doJSON(ctx context.Context, method, path string, payload, out any) error {
	token, err := g.getAccessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("paypal: %s", apiErr.Message)
		}
		return fmt.Errorf("paypal: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

func (g *PayPalGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*PaymentIntent, error) {
	if !g.configured() {
		return nil, ErrGatewayUnavailable
	}

	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": strings.ToUpper(currency),
				"value":         amount.StringFixed(2),
			},
			"description": metadata["description"],
			"custom_id":   metadata["userId"],
		}},
	}

	var order paypalOrder
	if err := g.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", payload, &order); err != nil {
		return nil, err
	}

	intent := &PaymentIntent{ID: order.ID, Status: strings.ToLower(order.Status)}
	for _, link := range order.Links {
		if link.Rel == "approve" {
			intent.RedirectURL = link.Href
			break
		}
	}
	return intent, nil
}

func (g *PayPalGateway) ProcessPayment(ctx context.Context, paymentID, _ string) (*ProcessResult, error) {
	if !g.configured() {
		return nil, ErrGatewayUnavailable
	}

	var captured struct {
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID string `json:"id"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	err := g.doJSON(ctx, http.MethodPost, "/v2/checkout/orders/"+paymentID+"/capture", struct{}{}, &captured)
	if err != nil {
		return &ProcessResult{Success: false, Status: StatusFailed, Error: err.Error()}, nil
	}

	result := &ProcessResult{
		Success: captured.Status == "COMPLETED",
		Status:  strings.ToLower(captured.Status),
	}
	if len(captured.PurchaseUnits) > 0 && len(captured.PurchaseUnits[0].Payments.Captures) > 0 {
		result.TransactionID = captured.PurchaseUnits[0].Payments.Captures[0].ID
	}
	return result, nil
}

func (g *PayPalGateway) RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal) (*RefundResult, error) {
	if !g.configured() {
		return nil, ErrGatewayUnavailable
	}

	payload := map[string]any{}
	if amount != nil {
		payload["amount"] = map[string]string{
			"value":         amount.StringFixed(2),
			"currency_code": "USD",
		}
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := g.doJSON(ctx, http.MethodPost, "/v2/payments/captures/"+paymentID+"/refund", payload, &refund)
	if err != nil {
		return &RefundResult{Success: false, Error: err.Error()}, nil
	}
	return &RefundResult{
		Success:  refund.Status == "COMPLETED",
		RefundID: refund.ID,
	}, nil
}
