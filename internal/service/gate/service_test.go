package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"dealdesk/internal/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
)

// --- fakes ---

type fakeConversationRepo struct {
	conv      *models.Conversation
	gateSet   string
	getErr    error
	updateErr error
}

func (f *fakeConversationRepo) Create(ctx context.Context, conv *models.Conversation) error {
	return nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id int64, userID string) (*models.Conversation, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.conv == nil || f.conv.ID != id || f.conv.UserID != userID {
		return nil, domain.ErrNotFound
	}
	c := *f.conv
	return &c, nil
}

func (f *fakeConversationRepo) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	return nil, nil
}

func (f *fakeConversationRepo) Touch(ctx context.Context, id int64) error { return nil }

func (f *fakeConversationRepo) UpdateGate(ctx context.Context, id int64, gate string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.gateSet = gate
	if f.conv != nil && f.conv.ID == id {
		f.conv.CurrentGate = gate
	}
	return nil
}

func (f *fakeConversationRepo) AttachDeal(ctx context.Context, id int64, dealID int64) error {
	return nil
}

type fakeDealRepo struct {
	gateSet string
}

func (f *fakeDealRepo) Create(ctx context.Context, deal *models.Deal) error { return nil }

func (f *fakeDealRepo) GetByID(ctx context.Context, id int64, userID string) (*models.Deal, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeDealRepo) ListByUser(ctx context.Context, userID string) ([]models.Deal, error) {
	return nil, nil
}

func (f *fakeDealRepo) UpdateGate(ctx context.Context, id int64, gate string) error {
	f.gateSet = gate
	return nil
}

type fakeLedgerRepo struct {
	balance int64
	entries []models.CreditEntry

	// balanceChecks records, per BalanceCents call, whether the call
	// ran inside ExecTx.
	tx            *fakeTxManager
	balanceChecks []bool
}

func (f *fakeLedgerRepo) Insert(ctx context.Context, entry *models.CreditEntry) error {
	f.entries = append(f.entries, *entry)
	f.balance += entry.AmountCents
	return nil
}

func (f *fakeLedgerRepo) BalanceCents(ctx context.Context, userID string) (int64, error) {
	if f.tx != nil {
		f.balanceChecks = append(f.balanceChecks, f.tx.inTx)
	}
	return f.balance, nil
}

type fakeDeliverableRepo struct {
	created []models.Deliverable
}

func (f *fakeDeliverableRepo) Create(ctx context.Context, d *models.Deliverable) error {
	d.ID = "deliv-1"
	f.created = append(f.created, *d)
	return nil
}

func (f *fakeDeliverableRepo) GetByID(ctx context.Context, id string) (*models.Deliverable, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeDeliverableRepo) ListByDeal(ctx context.Context, dealID int64) ([]models.Deliverable, error) {
	return f.created, nil
}

type fakeTxManager struct{ inTx bool }

func (f *fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	f.inTx = true
	defer func() { f.inTx = false }()
	return fn(ctx)
}

type fixture struct {
	svc           *Service
	conversations *fakeConversationRepo
	deals         *fakeDealRepo
	ledger        *fakeLedgerRepo
	deliverables  *fakeDeliverableRepo
}

func newFixture(conv *models.Conversation, balanceCents int64) *fixture {
	conversations := &fakeConversationRepo{conv: conv}
	deals := &fakeDealRepo{}
	tx := &fakeTxManager{}
	ledger := &fakeLedgerRepo{balance: balanceCents, tx: tx}
	deliverables := &fakeDeliverableRepo{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(
		config.DefaultJourneys(),
		conversations,
		deals,
		ledger,
		deliverables,
		tx,
		logger,
	)

	return &fixture{
		svc:           svc,
		conversations: conversations,
		deals:         deals,
		ledger:        ledger,
		deliverables:  deliverables,
	}
}

func dealConv(gate string) *models.Conversation {
	dealID := int64(7)
	return &models.Conversation{
		ID:          1,
		UserID:      "user-1",
		Journey:     "acquisition",
		CurrentGate: gate,
		DealID:      &dealID,
	}
}

// --- EvaluateTurn ---

func TestEvaluateTurnBelowThreshold(t *testing.T) {
	f := newFixture(dealConv("intake"), 0)

	outcome, err := f.svc.EvaluateTurn(context.Background(), dealConv("intake"), 1)
	if err != nil {
		t.Fatalf("EvaluateTurn: %v", err)
	}
	if outcome.AdvancedTo != "" || outcome.Offer != nil {
		t.Errorf("expected no-op outcome, got %+v", outcome)
	}
}

func TestEvaluateTurnAdvancesFreeGate(t *testing.T) {
	f := newFixture(dealConv("intake"), 0)
	conv := dealConv("intake")

	outcome, err := f.svc.EvaluateTurn(context.Background(), conv, 2)
	if err != nil {
		t.Fatalf("EvaluateTurn: %v", err)
	}
	if outcome.AdvancedTo != "profile" {
		t.Errorf("AdvancedTo = %q, want profile", outcome.AdvancedTo)
	}
	if conv.CurrentGate != "profile" {
		t.Errorf("conversation gate = %q, want profile", conv.CurrentGate)
	}
	if f.conversations.gateSet != "profile" {
		t.Errorf("persisted conversation gate = %q, want profile", f.conversations.gateSet)
	}
	if f.deals.gateSet != "profile" {
		t.Errorf("persisted deal gate = %q, want profile", f.deals.gateSet)
	}
}

func TestEvaluateTurnOffersPaywallForPricedGate(t *testing.T) {
	tests := []struct {
		name           string
		balanceCents   int64
		wantSufficient bool
	}{
		{"insufficient balance", 1000, false},
		{"sufficient balance", 10000, true},
		{"exact balance", 4900, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(dealConv("profile"), tt.balanceCents)
			conv := dealConv("profile")

			outcome, err := f.svc.EvaluateTurn(context.Background(), conv, 4)
			if err != nil {
				t.Fatalf("EvaluateTurn: %v", err)
			}
			if outcome.Offer == nil {
				t.Fatal("expected a paywall offer")
			}
			if outcome.AdvancedTo != "" {
				t.Errorf("priced gate must not auto-advance, got %q", outcome.AdvancedTo)
			}
			if outcome.Offer.Gate != "valuation" || outcome.Offer.CurrentGate != "profile" {
				t.Errorf("offer gates = %q/%q, want valuation/profile", outcome.Offer.Gate, outcome.Offer.CurrentGate)
			}
			if outcome.Offer.PriceCents != 4900 {
				t.Errorf("PriceCents = %d, want 4900", outcome.Offer.PriceCents)
			}
			if outcome.Offer.Sufficient != tt.wantSufficient {
				t.Errorf("Sufficient = %v, want %v", outcome.Offer.Sufficient, tt.wantSufficient)
			}
			if conv.CurrentGate != "profile" {
				t.Errorf("conversation gate changed to %q", conv.CurrentGate)
			}
		})
	}
}

func TestEvaluateTurnAtFinalGate(t *testing.T) {
	f := newFixture(dealConv("closing"), 0)

	outcome, err := f.svc.EvaluateTurn(context.Background(), dealConv("closing"), 50)
	if err != nil {
		t.Fatalf("EvaluateTurn: %v", err)
	}
	if outcome.AdvancedTo != "" || outcome.Offer != nil {
		t.Errorf("final gate should be a no-op, got %+v", outcome)
	}
}

func TestEvaluateTurnUnknownJourney(t *testing.T) {
	conv := dealConv("intake")
	conv.Journey = "franchise"
	f := newFixture(conv, 0)

	outcome, err := f.svc.EvaluateTurn(context.Background(), conv, 10)
	if err != nil {
		t.Fatalf("unknown journey should not error: %v", err)
	}
	if outcome.AdvancedTo != "" || outcome.Offer != nil {
		t.Errorf("unknown journey should be a no-op, got %+v", outcome)
	}
}

// --- Purchase ---

func TestPurchaseUnlocksGate(t *testing.T) {
	f := newFixture(dealConv("profile"), 10000)

	result, err := f.svc.Purchase(context.Background(), "user-1", 1, "valuation")
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	if result.Gate != "valuation" {
		t.Errorf("Gate = %q, want valuation", result.Gate)
	}
	if result.DeliverableID != "deliv-1" {
		t.Errorf("DeliverableID = %q, want deliv-1", result.DeliverableID)
	}
	if result.NewBalanceCents != 5100 {
		t.Errorf("NewBalanceCents = %d, want 5100", result.NewBalanceCents)
	}

	if len(f.ledger.entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(f.ledger.entries))
	}
	entry := f.ledger.entries[0]
	if entry.Kind != models.CreditDebit {
		t.Errorf("entry kind = %q, want debit", entry.Kind)
	}
	if entry.AmountCents != -4900 {
		t.Errorf("debit amount = %d, want -4900", entry.AmountCents)
	}

	if f.conversations.gateSet != "valuation" || f.deals.gateSet != "valuation" {
		t.Errorf("persisted gates = %q/%q, want valuation/valuation",
			f.conversations.gateSet, f.deals.gateSet)
	}

	if len(f.deliverables.created) != 1 {
		t.Fatalf("deliverables created = %d, want 1", len(f.deliverables.created))
	}
	d := f.deliverables.created[0]
	if d.DealID != 7 || d.Gate != "valuation" || d.Title != "Valuation Report" {
		t.Errorf("deliverable = %+v", d)
	}
}

func TestPurchaseInsufficientBalance(t *testing.T) {
	f := newFixture(dealConv("profile"), 1000)

	_, err := f.svc.Purchase(context.Background(), "user-1", 1, "valuation")

	var insufficientErr *domain.InsufficientBalanceError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if insufficientErr.PriceCents != 4900 || insufficientErr.BalanceCents != 1000 {
		t.Errorf("error payload = %+v", insufficientErr)
	}
	if len(f.ledger.entries) != 0 {
		t.Error("failed purchase must not write ledger entries")
	}
	if f.conversations.gateSet != "" {
		t.Error("failed purchase must not change the gate")
	}
}

func TestPurchaseChecksBalanceInsideTransaction(t *testing.T) {
	f := newFixture(dealConv("profile"), 10000)

	if _, err := f.svc.Purchase(context.Background(), "user-1", 1, "valuation"); err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	if len(f.ledger.balanceChecks) != 1 {
		t.Fatalf("balance checked %d times, want 1", len(f.ledger.balanceChecks))
	}
	if !f.ledger.balanceChecks[0] {
		t.Error("balance must be checked inside the purchase transaction")
	}
}

func TestPurchaseSameGateTwice(t *testing.T) {
	f := newFixture(dealConv("profile"), 20000)

	if _, err := f.svc.Purchase(context.Background(), "user-1", 1, "valuation"); err != nil {
		t.Fatalf("first purchase: %v", err)
	}

	// The gate already advanced; the repeat fails on the in-transaction
	// ordering re-check and writes nothing.
	_, err := f.svc.Purchase(context.Background(), "user-1", 1, "valuation")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("repeat purchase error = %v, want ErrValidation", err)
	}
	if len(f.ledger.entries) != 1 {
		t.Errorf("ledger entries = %d, want 1", len(f.ledger.entries))
	}
	if len(f.deliverables.created) != 1 {
		t.Errorf("deliverables created = %d, want 1", len(f.deliverables.created))
	}
}

func TestPurchaseValidation(t *testing.T) {
	tests := []struct {
		name    string
		gate    string
		wantErr error
	}{
		{"free gate is not purchasable", "profile", domain.ErrValidation},
		{"unknown gate", "escrow", domain.ErrNotFound},
		{"skipping a stage", "diligence", domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(dealConv("profile"), 100000)

			_, err := f.svc.Purchase(context.Background(), "user-1", 1, tt.gate)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Purchase(%q) error = %v, want %v", tt.gate, err, tt.wantErr)
			}
		})
	}
}

func TestPurchaseUnknownConversation(t *testing.T) {
	f := newFixture(dealConv("profile"), 100000)

	_, err := f.svc.Purchase(context.Background(), "user-1", 99, "valuation")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
