package services

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/walletmaster/backend/internal/gateway"
	"github.com/walletmaster/backend/internal/models"
	"github.com/walletmaster/backend/internal/store"
)

// Metrics
var (
	paymentOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_payment_operations_total",
		Help: "Payment operations by kind and outcome",
	}, []string{"operation", "outcome"})

	reconcileIncidents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wallet_payment_reconciliation_incidents_total",
		Help: "Gateway-confirmed charges whose ledger update failed",
	})
)

// Operation kinds carried in gateway metadata and metric labels
const (
	opDeposit  = "deposit"
	opUtility  = "utility_payment"
	opTransfer = "transfer"
)

// Fallback categories for orchestrator-created transactions
const (
	categoryBills   = "Bills & Utilities"
	categoryDefault = "Other"
)

// cardLockTable hands out one mutex per card id so balance writes against
// the same card are serialized. Locks are acquired in ascending id order;
// that is what keeps a concurrent A->B and B->A transfer from deadlocking.
type cardLockTable struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newCardLockTable() *cardLockTable {
	return &cardLockTable{locks: make(map[int]*sync.Mutex)}
}

func (t *cardLockTable) lockFor(cardID int) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[cardID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[cardID] = l
	}
	return l
}

// acquire locks the given card ids in ascending order and returns the
// release function.
func (t *cardLockTable) acquire(cardIDs ...int) func() {
	ids := append([]int(nil), cardIDs...)
	sort.Ints(ids)

	held := make([]*sync.Mutex, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		l := t.lockFor(id)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// PaymentService orchestrates the three financial operations: deposit to a
// card, utility bill payment, and peer transfer. Every operation follows the
// same shape: validate, check sufficiency for debits, confirm with the
// gateway, and only then touch the ledger.
type PaymentService struct {
	store    store.Store
	gateways *gateway.Registry
	locks    *cardLockTable
	currency string
}

func NewPaymentService(st store.Store, gateways *gateway.Registry) *PaymentService {
	viper.SetDefault("payment.currency", "usd")
	return &PaymentService{
		store:    st,
		gateways: gateways,
		locks:    newCardLockTable(),
		currency: viper.GetString("payment.currency"),
	}
}

// DepositResult is returned by AddFunds
type DepositResult struct {
	Card        *models.Card        `json:"card"`
	Transaction *models.Transaction `json:"transaction"`
}

// BillPaymentResult is returned by PayUtility
type BillPaymentResult struct {
	Card        *models.Card        `json:"card"`
	Transaction *models.Transaction `json:"transaction"`
	PaymentID   string              `json:"paymentId"`
}

// TransferResult is returned by Transfer
type TransferResult struct {
	SenderCard           *models.Card        `json:"senderCard"`
	RecipientCard        *models.Card        `json:"recipientCard"`
	SenderTransaction    *models.Transaction `json:"senderTransaction"`
	RecipientTransaction *models.Transaction `json:"recipientTransaction"`
	PaymentID            string              `json:"paymentId"`
}

// CreateIntent registers a payment intent with the default gateway. The
// caller's identity is injected into the metadata server-side; client
// supplied metadata cannot override it.
func (s *PaymentService) CreateIntent(ctx context.Context, userID int, amount decimal.Decimal, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	if !amount.IsPositive() {
		return nil, invalidRequest("Amount must be a positive number")
	}
	if currency == "" {
		currency = s.currency
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["userId"] = strconv.Itoa(userID)

	g, err := s.gateways.Default()
	if err != nil {
		return nil, gatewayUnavailable()
	}
	intent, err := g.CreatePayment(ctx, amount, currency, meta)
	if err != nil {
		return nil, s.mapGatewayError("create-intent", err)
	}
	return intent, nil
}

// AddFunds charges the gateway and credits the card. No sufficiency check:
// deposits only ever increase the balance.
func (s *PaymentService) AddFunds(ctx context.Context, userID, cardID int, amount decimal.Decimal, paymentMethodID string) (*DepositResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	card, err := s.ownedCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}

	release := s.locks.acquire(card.ID)
	defer release()

	paymentID, opErr := s.charge(ctx, amount, paymentMethodID, map[string]string{
		"userId":    strconv.Itoa(userID),
		"operation": opDeposit,
		"cardId":    strconv.Itoa(card.ID),
	})
	if opErr != nil {
		paymentOps.WithLabelValues(opDeposit, opErr.Code).Inc()
		return nil, opErr
	}

	// Gateway has confirmed; from here every failure is a ledger incident.
	card, err = s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, s.ledgerIncident(opDeposit, paymentID, err)
	}
	updated, err := s.store.UpdateCardBalance(ctx, card.ID, card.Balance.Add(amount))
	if err != nil {
		return nil, s.ledgerIncident(opDeposit, paymentID, err)
	}

	txn, err := s.store.CreateTransaction(ctx, &models.Transaction{
		UserID:      userID,
		CardID:      card.ID,
		CategoryID:  s.resolveCategory(ctx, "", categoryDefault),
		Merchant:    "Added Funds",
		Amount:      amount,
		Type:        models.TransactionTypeIncome,
		Date:        time.Now(),
		Description: "Funds added to card",
		PaymentRef:  paymentID,
	})
	if err != nil {
		return nil, s.ledgerIncident(opDeposit, paymentID, err)
	}

	paymentOps.WithLabelValues(opDeposit, "success").Inc()
	log.Printf("[PAYMENT] Deposit completed: user=%d card=%d amount=%s payment=%s", userID, card.ID, amount.String(), paymentID)
	return &DepositResult{Card: updated, Transaction: txn}, nil
}

// PayUtility charges the gateway and debits the card for a third-party
// biller. The sufficiency check runs before the gateway is ever contacted.
func (s *PaymentService) PayUtility(ctx context.Context, userID, cardID int, amount decimal.Decimal, utilityName, utilityCategory, description string) (*BillPaymentResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if utilityName == "" {
		return nil, invalidRequest("Utility name is required")
	}
	card, err := s.ownedCard(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}

	release := s.locks.acquire(card.ID)
	defer release()

	card, err = s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, invalidRequest("Card not found")
	}
	if card.Balance.LessThan(amount) {
		paymentOps.WithLabelValues(opUtility, CodeInsufficientFunds).Inc()
		return nil, insufficientFunds()
	}

	paymentID, opErr := s.charge(ctx, amount, "", map[string]string{
		"userId":    strconv.Itoa(userID),
		"operation": opUtility,
		"utility":   utilityName,
	})
	if opErr != nil {
		paymentOps.WithLabelValues(opUtility, opErr.Code).Inc()
		return nil, opErr
	}

	updated, err := s.store.UpdateCardBalance(ctx, card.ID, card.Balance.Sub(amount))
	if err != nil {
		return nil, s.ledgerIncident(opUtility, paymentID, err)
	}

	if description == "" {
		description = "Utility bill payment"
	}
	txn, err := s.store.CreateTransaction(ctx, &models.Transaction{
		UserID:      userID,
		CardID:      card.ID,
		CategoryID:  s.resolveCategory(ctx, utilityCategory, categoryBills),
		Merchant:    utilityName,
		Amount:      amount,
		Type:        models.TransactionTypeExpense,
		Date:        time.Now(),
		Description: description,
		PaymentRef:  paymentID,
	})
	if err != nil {
		return nil, s.ledgerIncident(opUtility, paymentID, err)
	}

	paymentOps.WithLabelValues(opUtility, "success").Inc()
	log.Printf("[PAYMENT] Utility payment completed: user=%d card=%d utility=%q amount=%s payment=%s",
		userID, card.ID, utilityName, amount.String(), paymentID)
	return &BillPaymentResult{Card: updated, Transaction: txn, PaymentID: paymentID}, nil
}

// Transfer moves funds from the sender's card to the recipient's default
// card. Two transaction records are created, one per side, sharing the
// gateway payment id for correlation.
func (s *PaymentService) Transfer(ctx context.Context, senderID, recipientID, cardID int, amount decimal.Decimal, description string) (*TransferResult, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if senderID == recipientID {
		return nil, invalidRequest("Cannot transfer funds to yourself")
	}

	sender, err := s.store.GetUser(ctx, senderID)
	if err != nil {
		return nil, invalidRequest("Sender not found")
	}
	recipient, err := s.store.GetUser(ctx, recipientID)
	if err != nil {
		return nil, invalidRequest("Recipient not found")
	}

	senderCard, err := s.ownedCard(ctx, senderID, cardID)
	if err != nil {
		return nil, err
	}
	recipientCard, opErr := s.recipientCard(ctx, recipientID)
	if opErr != nil {
		paymentOps.WithLabelValues(opTransfer, opErr.Code).Inc()
		return nil, opErr
	}

	release := s.locks.acquire(senderCard.ID, recipientCard.ID)
	defer release()

	// Re-read both cards under the locks; the pre-lock reads only resolved
	// identity and ownership.
	senderCard, err = s.store.GetCard(ctx, senderCard.ID)
	if err != nil {
		return nil, invalidRequest("Card not found")
	}
	recipientCard, err = s.store.GetCard(ctx, recipientCard.ID)
	if err != nil {
		return nil, recipientHasNoCard()
	}

	if senderCard.Balance.LessThan(amount) {
		paymentOps.WithLabelValues(opTransfer, CodeInsufficientFunds).Inc()
		return nil, insufficientFunds()
	}

	paymentID, opErr := s.charge(ctx, amount, "", map[string]string{
		"userId":      strconv.Itoa(senderID),
		"operation":   opTransfer,
		"recipientId": strconv.Itoa(recipientID),
	})
	if opErr != nil {
		paymentOps.WithLabelValues(opTransfer, opErr.Code).Inc()
		return nil, opErr
	}

	debited, err := s.store.UpdateCardBalance(ctx, senderCard.ID, senderCard.Balance.Sub(amount))
	if err != nil {
		return nil, s.ledgerIncident(opTransfer, paymentID, err)
	}
	credited, err := s.store.UpdateCardBalance(ctx, recipientCard.ID, recipientCard.Balance.Add(amount))
	if err != nil {
		// Compensate the debit so the ledger does not lose the sender's
		// funds; the charge itself still needs reconciliation.
		if _, rbErr := s.store.UpdateCardBalance(ctx, senderCard.ID, senderCard.Balance); rbErr != nil {
			log.Printf("[RECONCILE] Transfer compensation failed: card=%d payment=%s err=%v", senderCard.ID, paymentID, rbErr)
		}
		return nil, s.ledgerIncident(opTransfer, paymentID, err)
	}

	if description == "" {
		description = "Peer transfer"
	}
	now := time.Now()
	categoryID := s.resolveCategory(ctx, "", categoryDefault)

	senderTxn, err := s.store.CreateTransaction(ctx, &models.Transaction{
		UserID:      senderID,
		CardID:      senderCard.ID,
		CategoryID:  categoryID,
		Merchant:    recipient.DisplayName(),
		Amount:      amount,
		Type:        models.TransactionTypeExpense,
		Date:        now,
		Description: description,
		PaymentRef:  paymentID,
	})
	if err != nil {
		return nil, s.ledgerIncident(opTransfer, paymentID, err)
	}
	recipientTxn, err := s.store.CreateTransaction(ctx, &models.Transaction{
		UserID:      recipientID,
		CardID:      recipientCard.ID,
		CategoryID:  categoryID,
		Merchant:    sender.DisplayName(),
		Amount:      amount,
		Type:        models.TransactionTypeIncome,
		Date:        now,
		Description: description,
		PaymentRef:  paymentID,
	})
	if err != nil {
		return nil, s.ledgerIncident(opTransfer, paymentID, err)
	}

	paymentOps.WithLabelValues(opTransfer, "success").Inc()
	log.Printf("[PAYMENT] Transfer completed: sender=%d recipient=%d amount=%s payment=%s",
		senderID, recipientID, amount.String(), paymentID)
	return &TransferResult{
		SenderCard:           debited,
		RecipientCard:        credited,
		SenderTransaction:    senderTxn,
		RecipientTransaction: recipientTxn,
		PaymentID:            paymentID,
	}, nil
}

// charge runs the two-step gateway sequence: create the intent, then
// process it. Returns the gateway payment id only when the gateway reports
// success; every other outcome is mapped into the operation error taxonomy.
// A panicking adapter is contained here, not surfaced to the caller.
func (s *PaymentService) charge(ctx context.Context, amount decimal.Decimal, paymentMethodID string, metadata map[string]string) (paymentID string, opErr *OpError) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[PAYMENT] Gateway panic during %s: %v", metadata["operation"], r)
			paymentID, opErr = "", processingFailed()
		}
	}()

	g, err := s.gateways.Default()
	if err != nil {
		return "", gatewayUnavailable()
	}

	intent, err := g.CreatePayment(ctx, amount, s.currency, metadata)
	if err != nil {
		return "", s.mapGatewayError(metadata["operation"], err)
	}

	result, err := g.ProcessPayment(ctx, intent.ID, paymentMethodID)
	if err != nil {
		return "", s.mapGatewayError(metadata["operation"], err)
	}
	if !result.Success {
		return "", paymentDeclined(result.Error)
	}
	return intent.ID, nil
}

func (s *PaymentService) mapGatewayError(operation string, err error) *OpError {
	if errors.Is(err, gateway.ErrGatewayUnavailable) {
		log.Printf("[PAYMENT] Gateway unavailable during %s: %v", operation, err)
		return gatewayUnavailable()
	}
	log.Printf("[PAYMENT] Gateway error during %s: %v", operation, err)
	return processingFailed()
}

// ledgerIncident records a failure that happened after the gateway
// confirmed the charge. Money moved at the processor but the ledger did not
// follow; this must be alertable, never a generic failure.
func (s *PaymentService) ledgerIncident(operation, paymentID string, err error) *OpError {
	reconcileIncidents.Inc()
	paymentOps.WithLabelValues(operation, CodeReconciliationRequired).Inc()
	log.Printf("[RECONCILE] Ledger update failed after gateway success: operation=%s payment=%s err=%v", operation, paymentID, err)
	return reconciliationRequired()
}

// ownedCard loads the card and verifies the actor owns it
func (s *PaymentService) ownedCard(ctx context.Context, userID, cardID int) (*models.Card, error) {
	if cardID <= 0 {
		return nil, invalidRequest("Card id is required")
	}
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, invalidRequest("Card not found")
	}
	if card.UserID != userID {
		return nil, invalidRequest("Card does not belong to the authenticated user")
	}
	return card, nil
}

// recipientCard picks the recipient's default card, falling back to their
// first card when none is flagged default.
func (s *PaymentService) recipientCard(ctx context.Context, recipientID int) (*models.Card, *OpError) {
	cards, err := s.store.ListCardsByUser(ctx, recipientID)
	if err != nil || len(cards) == 0 {
		return nil, recipientHasNoCard()
	}
	for i := range cards {
		if cards[i].IsDefault {
			return &cards[i], nil
		}
	}
	return &cards[0], nil
}

// resolveCategory finds a category by name, trying the caller's choice
// first, then the fallback, then whatever category exists.
func (s *PaymentService) resolveCategory(ctx context.Context, name, fallback string) int {
	if name != "" {
		if cat, err := s.store.GetCategoryByName(ctx, name); err == nil {
			return cat.ID
		}
	}
	if cat, err := s.store.GetCategoryByName(ctx, fallback); err == nil {
		return cat.ID
	}
	if cats, err := s.store.ListCategories(ctx); err == nil && len(cats) > 0 {
		return cats[0].ID
	}
	return 0
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalidRequest("Amount must be a positive number")
	}
	return nil
}
