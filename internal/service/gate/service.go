// Package gate owns deal-stage progression: deciding when a
// conversation advances to its next gate, pricing paywalled gates
// against the user's credit balance, and fulfilling purchases.
package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"dealdesk/internal/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
)

// Service evaluates gate progression and fulfills paywall purchases.
type Service struct {
	journeys      *config.Journeys
	conversations repositories.ConversationRepository
	deals         repositories.DealRepository
	ledger        repositories.LedgerRepository
	deliverables  repositories.DeliverableRepository
	txManager     repositories.TransactionManager
	logger        *slog.Logger
}

// NewService creates a new gate service.
func NewService(
	journeys *config.Journeys,
	conversations repositories.ConversationRepository,
	deals repositories.DealRepository,
	ledger repositories.LedgerRepository,
	deliverables repositories.DeliverableRepository,
	txManager repositories.TransactionManager,
	logger *slog.Logger,
) *Service {
	return &Service{
		journeys:      journeys,
		conversations: conversations,
		deals:         deals,
		ledger:        ledger,
		deliverables:  deliverables,
		txManager:     txManager,
		logger:        logger,
	}
}

// TurnOutcome describes what a completed turn did to gate state.
// AdvancedTo is set when a free gate was crossed; Offer is set when the
// next gate is priced and must be purchased.
type TurnOutcome struct {
	AdvancedTo string
	Offer      *models.PaywallOffer
}

// EvaluateTurn decides whether the conversation crosses into its next
// gate after a completed assistant turn. Progression is driven by
// conversation substance (user turn count against the gate's
// threshold): a free next gate advances immediately and persists on
// both conversation and deal; a priced next gate produces a paywall
// offer instead, computed against the user's current balance.
func (s *Service) EvaluateTurn(ctx context.Context, conv *models.Conversation, userTurns int) (*TurnOutcome, error) {
	journey := s.journeys.Find(conv.Journey)
	if journey == nil {
		// Unknown journey tags are skipped, not fatal: old conversations
		// keep working after a journeys config change.
		s.logger.Warn("conversation references unknown journey",
			"conversation_id", conv.ID,
			"journey", conv.Journey,
		)
		return &TurnOutcome{}, nil
	}

	idx := journey.GateIndex(conv.CurrentGate)
	if idx < 0 || idx+1 >= len(journey.Gates) {
		return &TurnOutcome{}, nil // final gate, nothing to advance to
	}

	next := journey.Gates[idx+1]
	if userTurns < next.AdvanceAfterTurns {
		return &TurnOutcome{}, nil
	}

	if next.PriceCents > 0 {
		offer, err := s.buildOffer(ctx, conv, next)
		if err != nil {
			return nil, err
		}
		return &TurnOutcome{Offer: offer}, nil
	}

	if err := s.advance(ctx, conv, next.Name); err != nil {
		return nil, err
	}

	return &TurnOutcome{AdvancedTo: next.Name}, nil
}

// buildOffer prices the gate against the user's ledger balance.
func (s *Service) buildOffer(ctx context.Context, conv *models.Conversation, gate config.Gate) (*models.PaywallOffer, error) {
	balanceCents, err := s.ledger.BalanceCents(ctx, conv.UserID)
	if err != nil {
		return nil, fmt.Errorf("paywall balance lookup: %w", err)
	}

	price := decimal.NewFromInt(gate.PriceCents)
	balance := decimal.NewFromInt(balanceCents)

	return &models.PaywallOffer{
		Gate:         gate.Name,
		CurrentGate:  conv.CurrentGate,
		PriceCents:   gate.PriceCents,
		BalanceCents: balanceCents,
		Sufficient:   balance.GreaterThanOrEqual(price),
	}, nil
}

// advance persists a free-gate crossing on the conversation and, when
// linked, the deal.
func (s *Service) advance(ctx context.Context, conv *models.Conversation, gateName string) error {
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.conversations.UpdateGate(txCtx, conv.ID, gateName); err != nil {
			return err
		}
		if conv.DealID != nil {
			if err := s.deals.UpdateGate(txCtx, *conv.DealID, gateName); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("advance gate: %w", err)
	}

	conv.CurrentGate = gateName

	s.logger.Info("gate advanced",
		"conversation_id", conv.ID,
		"gate", gateName,
	)

	return nil
}

// PurchaseResult describes a fulfilled gate unlock.
type PurchaseResult struct {
	Gate            string `json:"gate"`
	DeliverableID   string `json:"deliverable_id"`
	NewBalanceCents int64  `json:"new_balance_cents"`
}

// Purchase unlocks a priced gate for the conversation's deal: debits the
// credit ledger, advances conversation and deal, and creates the gate's
// deliverable. The debit and the gate change commit atomically.
func (s *Service) Purchase(ctx context.Context, userID string, conversationID int64, gateName string) (*PurchaseResult, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	journey := s.journeys.Find(conv.Journey)
	if journey == nil {
		return nil, fmt.Errorf("%w: conversation has no journey", domain.ErrValidation)
	}

	idx := journey.GateIndex(gateName)
	if idx < 0 {
		return nil, fmt.Errorf("gate %s: %w", gateName, domain.ErrNotFound)
	}
	gate := journey.Gates[idx]
	if gate.PriceCents <= 0 {
		return nil, fmt.Errorf("%w: gate %s is not purchasable", domain.ErrValidation, gateName)
	}

	currentIdx := journey.GateIndex(conv.CurrentGate)
	if idx != currentIdx+1 {
		return nil, fmt.Errorf("%w: gate %s is not the next stage", domain.ErrValidation, gateName)
	}

	// Ordering and balance are re-checked under the transaction: two
	// racing purchases of the same gate must not both pass and debit
	// twice.
	var deliverable *models.Deliverable
	var newBalanceCents int64
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		fresh, err := s.conversations.GetByID(txCtx, conversationID, userID)
		if err != nil {
			return err
		}
		if journey.GateIndex(fresh.CurrentGate)+1 != idx {
			return fmt.Errorf("%w: gate %s is not the next stage", domain.ErrValidation, gateName)
		}

		balanceCents, err := s.ledger.BalanceCents(txCtx, userID)
		if err != nil {
			return fmt.Errorf("purchase balance lookup: %w", err)
		}
		if decimal.NewFromInt(balanceCents).LessThan(decimal.NewFromInt(gate.PriceCents)) {
			return &domain.InsufficientBalanceError{
				Gate:         gateName,
				PriceCents:   gate.PriceCents,
				BalanceCents: balanceCents,
			}
		}

		debit := &models.CreditEntry{
			UserID:      userID,
			Kind:        models.CreditDebit,
			AmountCents: -gate.PriceCents,
			Reference:   fmt.Sprintf("gate:%s:conversation:%d", gateName, conversationID),
		}
		if err := s.ledger.Insert(txCtx, debit); err != nil {
			return err
		}

		if err := s.conversations.UpdateGate(txCtx, fresh.ID, gateName); err != nil {
			return err
		}

		if fresh.DealID != nil {
			if err := s.deals.UpdateGate(txCtx, *fresh.DealID, gateName); err != nil {
				return err
			}

			title := gate.DeliverableTitle
			if title == "" {
				title = gateName
			}
			deliverable = &models.Deliverable{
				DealID: *fresh.DealID,
				Gate:   gateName,
				Title:  title,
			}
			if err := s.deliverables.Create(txCtx, deliverable); err != nil {
				return err
			}
		}

		newBalanceCents = balanceCents - gate.PriceCents
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fulfill purchase: %w", err)
	}

	result := &PurchaseResult{
		Gate:            gateName,
		NewBalanceCents: newBalanceCents,
	}
	if deliverable != nil {
		result.DeliverableID = deliverable.ID
	}

	s.logger.Info("gate purchased",
		"user_id", userID,
		"conversation_id", conversationID,
		"gate", gateName,
		"price_cents", gate.PriceCents,
	)

	return result, nil
}
