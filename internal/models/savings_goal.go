package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsGoal tracks progress toward a named savings target
type SavingsGoal struct {
	ID            int             `json:"id" db:"id"`
	UserID        int             `json:"userId" db:"user_id"`
	Name          string          `json:"name" db:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount" db:"target_amount"`
	CurrentAmount decimal.Decimal `json:"currentAmount" db:"current_amount"`
	TargetDate    *time.Time      `json:"targetDate,omitempty" db:"target_date"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}
