package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Intent statuses shared by all gateway implementations
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrGatewayUnavailable means the selected gateway has no usable
// credentials or configuration. Operational fault, not a decline.
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// PaymentIntent is the gateway-side record of one payment attempt
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
	Status       string `json:"status"`
}

// ProcessResult reports the outcome of confirming a payment. A decline is a
// value (Success=false with Error set), never a Go error; errors are reserved
// for transport and configuration faults.
type ProcessResult struct {
	Success       bool   `json:"success"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Error         string `json:"error,omitempty"`
}

// RefundResult reports the outcome of a refund attempt
type RefundResult struct {
	Success  bool   `json:"success"`
	RefundID string `json:"refundId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Gateway is the capability contract every payment processor adapter
// implements. Amounts are major currency units; adapters convert to minor
// units at their own wire boundary.
type Gateway interface {
	Name() string
	ID() string
	CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*PaymentIntent, error)
	ProcessPayment(ctx context.Context, paymentID, paymentMethodID string) (*ProcessResult, error)
	RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal) (*RefundResult, error)
}

// Registry maps gateway identifiers to constructed adapters. Built once at
// startup; call sites resolve by id instead of branching per processor.
type Registry struct {
	gateways  map[string]Gateway
	defaultID string
}

// NewRegistry builds a registry from the given gateways. The first gateway
// whose id matches defaultID becomes the default.
func NewRegistry(defaultID string, gateways ...Gateway) *Registry {
	r := &Registry{
		gateways:  make(map[string]Gateway, len(gateways)),
		defaultID: defaultID,
	}
	for _, g := range gateways {
		r.gateways[g.ID()] = g
	}
	return r
}

// Get resolves a gateway by identifier
func (r *Registry) Get(id string) (Gateway, error) {
	g, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("payment gateway %q not found", id)
	}
	return g, nil
}

// Default returns the configured default gateway
func (r *Registry) Default() (Gateway, error) {
	return r.Get(r.defaultID)
}

// All returns every registered gateway
func (r *Registry) All() []Gateway {
	out := make([]Gateway, 0, len(r.gateways))
	for _, g := range r.gateways {
		out = append(out, g)
	}
	return out
}

// toCents converts a major-unit amount to minor units, rounding to the
// nearest cent the way processors expect.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
