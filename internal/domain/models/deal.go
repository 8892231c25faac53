package models

import "time"

// Deal is a business transaction being advised on. Its gate tag tracks
// progress through the journey's stages (intake, valuation, ...).
type Deal struct {
	ID          int64     `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Journey     string    `json:"journey" db:"journey"`
	CurrentGate string    `json:"current_gate" db:"current_gate"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Deliverable is a generated report artifact tied to a deal, produced
// when a paywall purchase unlocks a gate.
type Deliverable struct {
	ID        string    `json:"id" db:"id"`
	DealID    int64     `json:"deal_id" db:"deal_id"`
	Gate      string    `json:"gate" db:"gate"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
