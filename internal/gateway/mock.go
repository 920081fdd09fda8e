package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// forcedDeclineCents marks amounts whose fractional part is exactly .99 so
// test suites can exercise the decline path without a processor sandbox.
const forcedDeclineCents = 99

// MockPayment is an in-memory intent held by the mock gateway
type MockPayment struct {
	ID        string
	Amount    decimal.Decimal
	Currency  string
	Status    string
	Metadata  map[string]string
	CreatedAt time.Time
}

// MockRefund is an in-memory refund record
type MockRefund struct {
	ID        string
	PaymentID string
	Amount    *decimal.Decimal
	Status    string
	CreatedAt time.Time
}

// MockGateway simulates a payment processor in local memory for
// deterministic tests and credential-free development.
type MockGateway struct {
	mu       sync.Mutex
	payments map[string]*MockPayment
	refunds  map[string]*MockRefund
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		payments: make(map[string]*MockPayment),
		refunds:  make(map[string]*MockRefund),
	}
}

func (g *MockGateway) Name() string { return "Test Gateway" }
func (g *MockGateway) ID() string   { return "mock" }

func (g *MockGateway) CreatePayment(_ context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := "mock_payment_" + uuid.NewString()
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	g.payments[id] = &MockPayment{
		ID:        id,
		Amount:    amount,
		Currency:  currency,
		Status:    StatusPending,
		Metadata:  meta,
		CreatedAt: time.Now(),
	}

	return &PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString(),
		Status:       StatusPending,
	}, nil
}

func (g *MockGateway) ProcessPayment(_ context.Context, paymentID, _ string) (*ProcessResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	payment, ok := g.payments[paymentID]
	if !ok {
		return &ProcessResult{Success: false, Status: StatusFailed, Error: "Payment not found"}, nil
	}

	// Deterministic failure rule: fractional part of exactly .99 declines.
	if toCents(payment.Amount)%100 == forcedDeclineCents {
		payment.Status = StatusFailed
		return &ProcessResult{
			Success:       false,
			Status:        StatusFailed,
			TransactionID: paymentID,
			Error:         "Mock payment failure",
		}, nil
	}

	payment.Status = StatusSucceeded
	return &ProcessResult{
		Success:       true,
		Status:        StatusSucceeded,
		TransactionID: paymentID,
	}, nil
}

func (g *MockGateway) RefundPayment(_ context.Context, paymentID string, amount *decimal.Decimal) (*RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	payment, ok := g.payments[paymentID]
	if !ok {
		return &RefundResult{Success: false, Error: "Payment not found"}, nil
	}
	if payment.Status != StatusSucceeded {
		return &RefundResult{Success: false, Error: "Cannot refund a payment that has not succeeded"}, nil
	}

	refundID := "mock_refund_" + uuid.NewString()
	g.refunds[refundID] = &MockRefund{
		ID:        refundID,
		PaymentID: paymentID,
		Amount:    amount,
		Status:    StatusSucceeded,
		CreatedAt: time.Now(),
	}
	return &RefundResult{Success: true, RefundID: refundID}, nil
}

// Payment returns the stored intent, for test assertions
func (g *MockGateway) Payment(paymentID string) *MockPayment {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.payments[paymentID]
}

// Refund returns the stored refund record, for test assertions
func (g *MockGateway) Refund(refundID string) *MockRefund {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds[refundID]
}

// Reset clears all mock state between tests
func (g *MockGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments = make(map[string]*MockPayment)
	g.refunds = make(map[string]*MockRefund)
}
