package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget is a per-category spending allowance over a period
type Budget struct {
	ID         int             `json:"id" db:"id"`
	UserID     int             `json:"userId" db:"user_id"`
	CategoryID int             `json:"categoryId" db:"category_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Period     string          `json:"period" db:"period"` // weekly, monthly, yearly
	StartDate  time.Time       `json:"startDate" db:"start_date"`
	EndDate    *time.Time      `json:"endDate,omitempty" db:"end_date"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}
