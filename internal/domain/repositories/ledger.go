package repositories

import (
	"context"

	"dealdesk/internal/domain/models"
)

// LedgerRepository defines data access for the append-only credit
// ledger.
type LedgerRepository interface {
	// Insert appends an entry. Debits must be stored negative.
	Insert(ctx context.Context, entry *models.CreditEntry) error

	// BalanceCents returns the sum of a user's entries.
	BalanceCents(ctx context.Context, userID string) (int64, error)
}
