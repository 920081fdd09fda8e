package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walletmaster/backend/internal/gateway"
	"github.com/walletmaster/backend/internal/models"
	"github.com/walletmaster/backend/internal/store"
)

// spyGateway counts calls so tests can assert the gateway was or was not
// contacted, delegating the actual behavior to the mock gateway.
type spyGateway struct {
	*gateway.MockGateway
	mu           sync.Mutex
	createCalls  int
	processCalls int
}

func newSpyGateway() *spyGateway {
	return &spyGateway{MockGateway: gateway.NewMockGateway()}
}

func (g *spyGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	g.mu.Lock()
	g.createCalls++
	g.mu.Unlock()
	return g.MockGateway.CreatePayment(ctx, amount, currency, metadata)
}

func (g *spyGateway) ProcessPayment(ctx context.Context, paymentID, paymentMethodID string) (*gateway.ProcessResult, error) {
	g.mu.Lock()
	g.processCalls++
	g.mu.Unlock()
	return g.MockGateway.ProcessPayment(ctx, paymentID, paymentMethodID)
}

// panicGateway simulates a buggy adapter blowing up mid-charge
type panicGateway struct {
	*gateway.MockGateway
}

func (g *panicGateway) ProcessPayment(context.Context, string, string) (*gateway.ProcessResult, error) {
	panic("adapter bug")
}

// failingBalanceStore injects a ledger write failure after the gateway step
type failingBalanceStore struct {
	store.Store
	failures int
}

func (s *failingBalanceStore) UpdateCardBalance(ctx context.Context, id int, balance decimal.Decimal) (*models.Card, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("write timeout")
	}
	return s.Store.UpdateCardBalance(ctx, id, balance)
}

type paymentFixture struct {
	store   *store.MemoryStore
	gateway *spyGateway
	svc     *PaymentService

	alice     *models.User
	bob       *models.User
	aliceCard *models.Card
	bobCard   *models.Card
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
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

	aliceCard, err := st.CreateCard(ctx, &models.Card{
		UserID: alice.ID, CardType: "debit", BankName: "First Bank", CardNumber: "4111111111111111",
		LastFour: "1111", ExpiryDate: "12/27", Balance: decimal.NewFromFloat(100.00), IsDefault: true,
	})
	require.NoError(t, err)
	bobCard, err := st.CreateCard(ctx, &models.Card{
		UserID: bob.ID, CardType: "debit", BankName: "Union Bank", CardNumber: "4222222222222222",
		LastFour: "2222", ExpiryDate: "03/28", Balance: decimal.NewFromFloat(25.00), IsDefault: true,
	})
	require.NoError(t, err)

	spy := newSpyGateway()
	return &paymentFixture{
		store:   st,
		gateway: spy,
		svc:     NewPaymentService(st, gateway.NewRegistry("mock", spy)),

		alice:     alice,
		bob:       bob,
		aliceCard: aliceCard,
		bobCard:   bobCard,
	}
}

func (f *paymentFixture) cardBalance(t *testing.T, id int) decimal.Decimal {
	t.Helper()
	card, err := f.store.GetCard(context.Background(), id)
	require.NoError(t, err)
	return card.Balance
}

func requireOpError(t *testing.T, err error, code string) *OpError {
	t.Helper()
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, code, opErr.Code)
	return opErr
}

func TestPaymentService_AddFunds(t *testing.T) {
	ctx := context.Background()

	t.Run("deposit credits the card and records one income transaction", func(t *testing.T) {
		f := newPaymentFixture(t)

		result, err := f.svc.AddFunds(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromFloat(50.00), "pm_test")
		require.NoError(t, err)

		assert.True(t, result.Card.Balance.Equal(decimal.NewFromFloat(150.00)),
			"expected 150.00, got %s", result.Card.Balance)
		assert.Equal(t, models.TransactionTypeIncome, result.Transaction.Type)
		assert.Equal(t, "Added Funds", result.Transaction.Merchant)
		assert.True(t, result.Transaction.Amount.Equal(decimal.NewFromFloat(50.00)))
		assert.NotEmpty(t, result.Transaction.PaymentRef)

		txns, err := f.store.ListTransactionsByUser(ctx, f.alice.ID, 0)
		require.NoError(t, err)
		assert.Len(t, txns, 1)
	})

	t.Run("declined charge leaves balance and transactions untouched", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.AddFunds(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromFloat(10.99), "pm_test")
		opErr := requireOpError(t, err, CodePaymentDeclined)
		assert.Equal(t, "Mock payment failure", opErr.Message)

		assert.True(t, f.cardBalance(t, f.aliceCard.ID).Equal(decimal.NewFromFloat(100.00)))
		txns, err := f.store.ListTransactionsByUser(ctx, f.alice.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, txns)
	})

	t.Run("non-positive amount is rejected before the gateway", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.AddFunds(ctx, f.alice.ID, f.aliceCard.ID, decimal.Zero, "pm_test")
		requireOpError(t, err, CodeInvalidRequest)
		assert.Zero(t, f.gateway.createCalls)
	})

	t.Run("card owned by someone else is rejected", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.AddFunds(ctx, f.alice.ID, f.bobCard.ID, decimal.NewFromInt(10), "pm_test")
		requireOpError(t, err, CodeInvalidRequest)
		assert.Zero(t, f.gateway.createCalls)
	})

	t.Run("ledger failure after gateway success is a reconciliation incident", func(t *testing.T) {
		f := newPaymentFixture(t)
		failing := &failingBalanceStore{Store: f.store, failures: 1}
		svc := NewPaymentService(failing, gateway.NewRegistry("mock", f.gateway))

		_, err := svc.AddFunds(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromInt(30), "pm_test")
		requireOpError(t, err, CodeReconciliationRequired)
		assert.Equal(t, 1, f.gateway.processCalls)
	})

	t.Run("panicking gateway surfaces as a processing failure", func(t *testing.T) {
		f := newPaymentFixture(t)
		svc := NewPaymentService(f.store, gateway.NewRegistry("mock", &panicGateway{MockGateway: gateway.NewMockGateway()}))

		_, err := svc.AddFunds(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromInt(10), "pm_test")
		requireOpError(t, err, CodeProcessingFailed)
		assert.True(t, f.cardBalance(t, f.aliceCard.ID).Equal(decimal.NewFromFloat(100.00)))

		txns, err := f.store.ListTransactionsByUser(ctx, f.alice.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, txns)
	})
}

func TestPaymentService_Concurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("parallel debits cannot double-spend", func(t *testing.T) {
		f := newPaymentFixture(t)
		amount := decimal.NewFromInt(60)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.PayUtility(ctx, f.alice.ID, f.aliceCard.ID, amount, "City Power", "", "")
			}(i)
		}
		wg.Wait()

		var succeeded int
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			requireOpError(t, err, CodeInsufficientFunds)
		}
		assert.Equal(t, 1, succeeded, "exactly one debit may win")

		balance := f.cardBalance(t, f.aliceCard.ID)
		assert.False(t, balance.IsNegative(), "balance must never go negative")
		assert.True(t, balance.Equal(decimal.NewFromInt(40)))
	})

	t.Run("opposing transfers complete without deadlock", func(t *testing.T) {
		f := newPaymentFixture(t)
		amount := decimal.NewFromInt(10)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = f.svc.Transfer(ctx, f.alice.ID, f.bob.ID, f.aliceCard.ID, amount, "")
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = f.svc.Transfer(ctx, f.bob.ID, f.alice.ID, f.bobCard.ID, amount, "")
		}()
		wg.Wait()

		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		total := f.cardBalance(t, f.aliceCard.ID).Add(f.cardBalance(t, f.bobCard.ID))
		assert.True(t, total.Equal(decimal.NewFromFloat(125.00)), "opposing transfers must conserve total balance")

		txns, err := f.store.ListTransactionsByUser(ctx, f.alice.ID, 0)
		require.NoError(t, err)
		assert.Len(t, txns, 2)
	})
}

func TestPaymentService_PayUtility(t *testing.T) {
	ctx := context.Background()

	t.Run("bill payment debits the card and records an expense", func(t *testing.T) {
		f := newPaymentFixture(t)

		result, err := f.svc.PayUtility(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromFloat(40.00), "City Power", "", "")
		require.NoError(t, err)

		assert.True(t, result.Card.Balance.Equal(decimal.NewFromFloat(60.00)))
		assert.Equal(t, models.TransactionTypeExpense, result.Transaction.Type)
		assert.Equal(t, "City Power", result.Transaction.Merchant)
		assert.Equal(t, result.PaymentID, result.Transaction.PaymentRef)

		cat, err := f.store.GetCategory(ctx, result.Transaction.CategoryID)
		require.NoError(t, err)
		assert.Equal(t, "Bills & Utilities", cat.Name)
	})

	t.Run("insufficient funds never reaches the gateway", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.PayUtility(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromFloat(100.01), "City Power", "", "")
		requireOpError(t, err, CodeInsufficientFunds)

		assert.Zero(t, f.gateway.createCalls)
		assert.Zero(t, f.gateway.processCalls)
		assert.True(t, f.cardBalance(t, f.aliceCard.ID).Equal(decimal.NewFromFloat(100.00)))
	})

	t.Run("balance exactly equal to the amount is sufficient", func(t *testing.T) {
		f := newPaymentFixture(t)

		result, err := f.svc.PayUtility(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromFloat(100.00), "City Power", "", "")
		require.NoError(t, err)
		assert.True(t, result.Card.Balance.IsZero())
	})

	t.Run("declined bill payment leaves the balance untouched", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.PayUtility(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromFloat(20.99), "City Power", "", "")
		requireOpError(t, err, CodePaymentDeclined)
		assert.True(t, f.cardBalance(t, f.aliceCard.ID).Equal(decimal.NewFromFloat(100.00)))
	})

	t.Run("caller category is honored when it exists", func(t *testing.T) {
		f := newPaymentFixture(t)

		result, err := f.svc.PayUtility(ctx, f.alice.ID, f.aliceCard.ID, decimal.NewFromInt(10), "Netflix", "Entertainment", "")
		require.NoError(t, err)
		cat, err := f.store.GetCategory(ctx, result.Transaction.CategoryID)
		require.NoError(t, err)
		assert.Equal(t, "Entertainment", cat.Name)
	})
}

func TestPaymentService_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("transfer conserves total balance and records both sides", func(t *testing.T) {
		f := newPaymentFixture(t)
		amount := decimal.NewFromFloat(35.00)

		result, err := f.svc.Transfer(ctx, f.alice.ID, f.bob.ID, f.aliceCard.ID, amount, "")
		require.NoError(t, err)

		assert.True(t, result.SenderCard.Balance.Equal(decimal.NewFromFloat(65.00)))
		assert.True(t, result.RecipientCard.Balance.Equal(decimal.NewFromFloat(60.00)))

		total := result.SenderCard.Balance.Add(result.RecipientCard.Balance)
		assert.True(t, total.Equal(decimal.NewFromFloat(125.00)), "transfer must conserve total balance")

		assert.Equal(t, models.TransactionTypeExpense, result.SenderTransaction.Type)
		assert.Equal(t, models.TransactionTypeIncome, result.RecipientTransaction.Type)
		assert.Equal(t, f.bob.DisplayName(), result.SenderTransaction.Merchant)
		assert.Equal(t, f.alice.DisplayName(), result.RecipientTransaction.Merchant)
		assert.Equal(t, result.PaymentID, result.SenderTransaction.PaymentRef)
		assert.Equal(t, result.PaymentID, result.RecipientTransaction.PaymentRef)
	})

	t.Run("recipient default card is preferred over earlier cards", func(t *testing.T) {
		f := newPaymentFixture(t)

		// Demote Bob's existing card, then add a default one.
		f.bobCard.IsDefault = false
		_, err := f.store.UpdateCard(ctx, f.bobCard)
		require.NoError(t, err)
		preferred, err := f.store.CreateCard(ctx, &models.Card{
			UserID: f.bob.ID, CardType: "credit", BankName: "Union Bank", CardNumber: "4333333333333333",
			LastFour: "3333", ExpiryDate: "01/29", Balance: decimal.Zero, IsDefault: true,
		})
		require.NoError(t, err)

		result, err := f.svc.Transfer(ctx, f.alice.ID, f.bob.ID, f.aliceCard.ID, decimal.NewFromInt(10), "")
		require.NoError(t, err)
		assert.Equal(t, preferred.ID, result.RecipientCard.ID)
		assert.True(t, f.cardBalance(t, f.bobCard.ID).Equal(decimal.NewFromFloat(25.00)), "non-default card untouched")
	})

	t.Run("recipient without cards fails before the gateway", func(t *testing.T) {
		f := newPaymentFixture(t)
		carol, err := f.store.CreateUser(ctx, &models.User{
			Username: "carol", Password: "hash", FirstName: "Carol", LastName: "Iwu", Email: "carol@example.com",
		})
		require.NoError(t, err)

		_, err = f.svc.Transfer(ctx, f.alice.ID, carol.ID, f.aliceCard.ID, decimal.NewFromInt(10), "")
		requireOpError(t, err, CodeRecipientHasNoCard)
		assert.Zero(t, f.gateway.createCalls)
	})

	t.Run("self transfer is rejected before any lookup", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.Transfer(ctx, f.alice.ID, f.alice.ID, f.aliceCard.ID, decimal.NewFromInt(10), "")
		requireOpError(t, err, CodeInvalidRequest)
		assert.Zero(t, f.gateway.createCalls)
	})

	t.Run("insufficient funds short-circuits the transfer", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.Transfer(ctx, f.alice.ID, f.bob.ID, f.aliceCard.ID, decimal.NewFromFloat(500.00), "")
		requireOpError(t, err, CodeInsufficientFunds)
		assert.Zero(t, f.gateway.createCalls)
		assert.True(t, f.cardBalance(t, f.aliceCard.ID).Equal(decimal.NewFromFloat(100.00)))
		assert.True(t, f.cardBalance(t, f.bobCard.ID).Equal(decimal.NewFromFloat(25.00)))
	})

	t.Run("declined transfer mutates neither card", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.Transfer(ctx, f.alice.ID, f.bob.ID, f.aliceCard.ID, decimal.NewFromFloat(15.99), "")
		requireOpError(t, err, CodePaymentDeclined)
		assert.True(t, f.cardBalance(t, f.aliceCard.ID).Equal(decimal.NewFromFloat(100.00)))
		assert.True(t, f.cardBalance(t, f.bobCard.ID).Equal(decimal.NewFromFloat(25.00)))

		txns, err := f.store.ListTransactionsByUser(ctx, f.alice.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, txns)
	})

	t.Run("credit failure compensates the debit", func(t *testing.T) {
		f := newPaymentFixture(t)
		// First balance write (debit) succeeds, second (credit) fails.
		svc := NewPaymentService(&creditFailStore{Store: f.store, failOnCall: 2}, gateway.NewRegistry("mock", f.gateway))

		_, err := svc.Transfer(ctx, f.alice.ID, f.bob.ID, f.aliceCard.ID, decimal.NewFromInt(10), "")
		requireOpError(t, err, CodeReconciliationRequired)
		assert.True(t, f.cardBalance(t, f.aliceCard.ID).Equal(decimal.NewFromFloat(100.00)), "debit must be compensated")
		assert.True(t, f.cardBalance(t, f.bobCard.ID).Equal(decimal.NewFromFloat(25.00)))
	})
}

// creditFailStore fails the nth UpdateCardBalance call only
type creditFailStore struct {
	store.Store
	calls      int
	failOnCall int
}

func (s *creditFailStore) UpdateCardBalance(ctx context.Context, id int, balance decimal.Decimal) (*models.Card, error) {
	s.calls++
	if s.calls == s.failOnCall {
		return nil, errors.New("write timeout")
	}
	return s.Store.UpdateCardBalance(ctx, id, balance)
}

func TestPaymentService_CreateIntent(t *testing.T) {
	ctx := context.Background()

	t.Run("intent carries the caller identity in metadata", func(t *testing.T) {
		f := newPaymentFixture(t)

		intent, err := f.svc.CreateIntent(ctx, f.alice.ID, decimal.NewFromFloat(12.50), "", map[string]string{"userId": "999", "note": "top-up"})
		require.NoError(t, err)

		stored := f.gateway.Payment(intent.ID)
		require.NotNil(t, stored)
		assert.Equal(t, "1", stored.Metadata["userId"], "client metadata must not override identity")
		assert.Equal(t, "top-up", stored.Metadata["note"])
		assert.Equal(t, gateway.StatusPending, intent.Status)
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		f := newPaymentFixture(t)

		_, err := f.svc.CreateIntent(ctx, f.alice.ID, decimal.NewFromInt(-5), "usd", nil)
		requireOpError(t, err, CodeInvalidRequest)
		assert.Zero(t, f.gateway.createCalls)
	})
}
