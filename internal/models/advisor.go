package models

import "time"

// AdvisorMessage is one chat exchange with the AI assistant
type AdvisorMessage struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"userId" db:"user_id"`
	Message   string    `json:"message" db:"message"`
	Response  string    `json:"response" db:"response"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// AdvisorInsight is a generated, persisted insight card
type AdvisorInsight struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"userId" db:"user_id"`
	Insight   string    `json:"insight" db:"insight"`
	Type      string    `json:"type" db:"type"` // spending, saving, investment
	Icon      string    `json:"icon" db:"icon"`
	Color     string    `json:"color" db:"color"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
