package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. Amount is always positive; the sign of the effect on the
// card balance is carried by Type.
const (
	TransactionTypeIncome  = "income"
	TransactionTypeExpense = "expense"
)

// Transaction is an immutable historical record of money moving on a card
type Transaction struct {
	ID          int             `json:"id" db:"id"`
	UserID      int             `json:"userId" db:"user_id"`
	CardID      int             `json:"cardId" db:"card_id"`
	CategoryID  int             `json:"categoryId" db:"category_id"`
	Merchant    string          `json:"merchant" db:"merchant"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Type        string          `json:"type" db:"type"`
	Date        time.Time       `json:"date" db:"date"`
	Description string          `json:"description,omitempty" db:"description"`
	PaymentRef  string          `json:"paymentRef,omitempty" db:"payment_ref"` // gateway payment id, for reconciliation
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}
