package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeGateway talks to the Stripe payment intents API over its
// form-encoded HTTP interface.
type StripeGateway struct {
	secretKey string
	baseURL   string
	http      *http.Client
}

// NewStripeGateway reads credentials from viper. A missing secret key leaves
// the gateway constructed but unavailable.
func NewStripeGateway() *StripeGateway {
	viper.SetDefault("payment.stripe_api_base", stripeAPIBase)
	return &StripeGateway{
		secretKey: viper.GetString("payment.stripe_secret_key"),
		baseURL:   viper.GetString("payment.stripe_api_base"),
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *StripeGateway) Name() string { return "Stripe" }
func (g *StripeGateway) ID() string   { return "stripe" }

type stripeIntent struct {
	ID               string `json:"id"`
	ClientSecret     string `json:"client_secret"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// do posts a form (or GETs when form is nil) and decodes the response into out
func (g *StripeGateway) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr stripeError
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe: %s", apiErr.Error.Message)
		}
		return fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (g *StripeGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*PaymentIntent, error) {
	if g.secretKey == "" {
		return nil, ErrGatewayUnavailable
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toCents(amount), 10))
	form.Set("currency", strings.ToLower(currency))
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	var intent stripeIntent
	if err := g.do(ctx, http.MethodPost, "/payment_intents", form, &intent); err != nil {
		return nil, err
	}
	return &PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       intent.Status,
	}, nil
}

func (g *StripeGateway) ProcessPayment(ctx context.Context, paymentID, paymentMethodID string) (*ProcessResult, error) {
	if g.secretKey == "" {
		return nil, ErrGatewayUnavailable
	}

	// Attach and confirm the payment method first when one is supplied.
	if paymentMethodID != "" {
		form := url.Values{}
		form.Set("payment_method", paymentMethodID)
		var confirmed stripeIntent
		if err := g.do(ctx, http.MethodPost, "/payment_intents/"+paymentID+"/confirm", form, &confirmed); err != nil {
			return &ProcessResult{Success: false, Status: StatusFailed, Error: err.Error()}, nil
		}
	}

	var intent stripeIntent
	if err := g.do(ctx, http.MethodGet, "/payment_intents/"+paymentID, nil, &intent); err != nil {
		return &ProcessResult{Success: false, Status: StatusFailed, Error: err.Error()}, nil
	}

	result := &ProcessResult{
		Success:       intent.Status == "succeeded",
		Status:        intent.Status,
		TransactionID: intent.ID,
	}
	if intent.LastPaymentError != nil {
		result.Error = intent.LastPaymentError.Message
	}
	return result, nil
}

func (g *StripeGateway) RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal) (*RefundResult, error) {
	if g.secretKey == "" {
		return nil, ErrGatewayUnavailable
	}

	form := url.Values{}
	form.Set("payment_intent", paymentID)
	if amount != nil {
		form.Set("amount", strconv.FormatInt(toCents(*amount), 10))
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodPost, "/refunds", form, &refund); err != nil {
		return &RefundResult{Success: false, Error: err.Error()}, nil
	}
	return &RefundResult{
		Success:  refund.Status == "succeeded",
		RefundID: refund.ID,
	}, nil
}
