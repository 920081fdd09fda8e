package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Card represents a linked payment card with an in-app balance
type Card struct {
	ID         int             `json:"id" db:"id"`
	UserID     int             `json:"userId" db:"user_id"`
	CardType   string          `json:"cardType" db:"card_type"` // visa, mastercard, etc.
	BankName   string          `json:"bankName" db:"bank_name"`
	CardNumber string          `json:"-" db:"card_number"` // full PAN, never serialized
	LastFour   string          `json:"lastFour" db:"last_four"`
	ExpiryDate string          `json:"expiryDate" db:"expiry_date"`
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	CardColor  string          `json:"cardColor,omitempty" db:"card_color"`
	IsDefault  bool            `json:"isDefault" db:"is_default"`
	Version    int             `json:"-" db:"version"` // optimistic lock counter, postgres store only
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}
