package models

import "time"

// CreditEntryKind classifies a ledger entry.
type CreditEntryKind string

const (
	CreditGrant CreditEntryKind = "grant"
	CreditDebit CreditEntryKind = "debit"
)

// CreditEntry is one row in the append-only credit ledger. A user's
// balance is the sum of their entries; debits are stored negative.
type CreditEntry struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Kind        CreditEntryKind `json:"kind" db:"kind"`
	AmountCents int64           `json:"amount_cents" db:"amount_cents"`
	Reference   string          `json:"reference,omitempty" db:"reference"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
