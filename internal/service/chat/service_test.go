package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"dealdesk/internal/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/domain/models"
	"dealdesk/internal/domain/repositories"
	"dealdesk/internal/service/gate"
	"dealdesk/internal/service/llm"
	"dealdesk/pkg/stream"
)

// --- fakes ---

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*models.Session)}
}

func (f *fakeSessionRepo) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[session.Token]; ok {
		return domain.ErrConflict
	}
	copied := *session
	f.sessions[session.Token] = &copied
	return nil
}

func (f *fakeSessionRepo) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSessionRepo) DecrementRemaining(ctx context.Context, token string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if s.MessagesRemaining > 0 {
		s.MessagesRemaining--
	}
	return s.MessagesRemaining, nil
}

func (f *fakeSessionRepo) Delete(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[token]; !ok {
		return domain.ErrNotFound
	}
	delete(f.sessions, token)
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []models.ChatMessage
}

func (f *fakeMessageRepo) Append(ctx context.Context, msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = fmt.Sprintf("msg-%d", len(f.messages)+1)
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeMessageRepo) ListByConversation(ctx context.Context, conversationID int64) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range f.messages {
		if m.ConversationID != nil && *m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) ListBySession(ctx context.Context, token string) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ChatMessage
	for _, m := range f.messages {
		if m.SessionToken != nil && *m.SessionToken == token {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) CountByConversationAndRole(ctx context.Context, conversationID int64, role models.Role) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.messages {
		if m.ConversationID != nil && *m.ConversationID == conversationID && m.Role == role {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageRepo) lastByRole(role models.Role) *models.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].Role == role {
			m := f.messages[i]
			return &m
		}
	}
	return nil
}

type fakeConversationRepo struct {
	mu            sync.Mutex
	nextID        int64
	conversations map[int64]*models.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{nextID: 1, conversations: make(map[int64]*models.Conversation)}
}

func (f *fakeConversationRepo) Create(ctx context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv.ID = f.nextID
	f.nextID++
	copied := *conv
	f.conversations[conv.ID] = &copied
	return nil
}

func (f *fakeConversationRepo) GetByID(ctx context.Context, id int64, userID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok || c.UserID != userID {
		return nil, domain.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeConversationRepo) ListByUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, c := range f.conversations {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeConversationRepo) Touch(ctx context.Context, id int64) error { return nil }

func (f *fakeConversationRepo) UpdateGate(ctx context.Context, id int64, gateName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.CurrentGate = gateName
	return nil
}

func (f *fakeConversationRepo) AttachDeal(ctx context.Context, id int64, dealID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.DealID = &dealID
	return nil
}

type fakeDealRepo struct {
	mu     sync.Mutex
	nextID int64
	deals  map[int64]*models.Deal
}

func newFakeDealRepo() *fakeDealRepo {
	return &fakeDealRepo{nextID: 1, deals: make(map[int64]*models.Deal)}
}

func (f *fakeDealRepo) Create(ctx context.Context, deal *models.Deal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	deal.ID = f.nextID
	f.nextID++
	copied := *deal
	f.deals[deal.ID] = &copied
	return nil
}

func (f *fakeDealRepo) GetByID(ctx context.Context, id int64, userID string) (*models.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deals[id]
	if !ok || d.UserID != userID {
		return nil, domain.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (f *fakeDealRepo) ListByUser(ctx context.Context, userID string) ([]models.Deal, error) {
	return nil, nil
}

func (f *fakeDealRepo) UpdateGate(ctx context.Context, id int64, gateName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deals[id]
	if !ok {
		return domain.ErrNotFound
	}
	d.CurrentGate = gateName
	return nil
}

type fakeLedgerRepo struct{ balance int64 }

func (f *fakeLedgerRepo) Insert(ctx context.Context, entry *models.CreditEntry) error {
	f.balance += entry.AmountCents
	return nil
}

func (f *fakeLedgerRepo) BalanceCents(ctx context.Context, userID string) (int64, error) {
	return f.balance, nil
}

type fakeDeliverableRepo struct{}

func (f *fakeDeliverableRepo) Create(ctx context.Context, d *models.Deliverable) error {
	d.ID = "deliv-1"
	return nil
}

func (f *fakeDeliverableRepo) GetByID(ctx context.Context, id string) (*models.Deliverable, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeDeliverableRepo) ListByDeal(ctx context.Context, dealID int64) ([]models.Deliverable, error) {
	return nil, nil
}

type fakeTxManager struct{}

func (f *fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

// failingProvider always errors mid-stream after one delta.
type failingProvider struct{}

func (p *failingProvider) Name() string { return "failing" }

func (p *failingProvider) SupportsModel(model string) bool { return true }

func (p *failingProvider) StreamResponse(ctx context.Context, req *llm.GenerateRequest) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 2)
	ch <- llm.StreamEvent{Text: "partial "}
	ch <- llm.StreamEvent{Error: errors.New("upstream connection reset")}
	close(ch)
	return ch, nil
}

// --- fixture ---

type fixture struct {
	svc           *Service
	sessions      *fakeSessionRepo
	messages      *fakeMessageRepo
	conversations *fakeConversationRepo
	deals         *fakeDealRepo
	ledger        *fakeLedgerRepo
}

func newFixture(t *testing.T, provider llm.Provider) *fixture {
	t.Helper()

	sessions := newFakeSessionRepo()
	messages := &fakeMessageRepo{}
	conversations := newFakeConversationRepo()
	deals := newFakeDealRepo()
	ledger := &fakeLedgerRepo{balance: 10000}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	journeys := config.DefaultJourneys()
	tx := &fakeTxManager{}

	gates := gate.NewService(journeys, conversations, deals, ledger, &fakeDeliverableRepo{}, tx, logger)

	svc := NewService(
		sessions, conversations, messages, deals,
		provider, gates, journeys, tx,
		"scripted-fast", 3, logger,
	)

	return &fixture{
		svc:           svc,
		sessions:      sessions,
		messages:      messages,
		conversations: conversations,
		deals:         deals,
		ledger:        ledger,
	}
}

// collect drains a turn's event channel.
func collect(t *testing.T, events <-chan stream.Event) []stream.Event {
	t.Helper()
	var out []stream.Event
	for ev := range events {
		out = append(out, ev)
	}
	if len(out) == 0 {
		t.Fatal("stream emitted no events")
	}
	return out
}

func terminal(t *testing.T, events []stream.Event) stream.Event {
	t.Helper()
	last := events[len(events)-1]
	if !last.IsTerminal() {
		t.Fatalf("last event %q is not terminal", last.Type)
	}
	return last
}

func concatDeltas(events []stream.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == stream.EventTextDelta {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

// --- sessions ---

func TestCreateSessionSeedsAllowance(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())

	session, err := f.svc.CreateSession(context.Background(), "/pricing")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Token == "" {
		t.Error("session token must be assigned")
	}
	if session.MessagesRemaining != 3 {
		t.Errorf("MessagesRemaining = %d, want 3", session.MessagesRemaining)
	}
	if session.SourcePage != "/pricing" {
		t.Errorf("SourcePage = %q", session.SourcePage)
	}
}

func TestGetSessionUnknownToken(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())

	_, err := f.svc.GetSession(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// --- anonymous turns ---

func TestStreamAnonymousTurn(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())
	session, _ := f.svc.CreateSession(context.Background(), "")

	events, err := f.svc.StreamAnonymousTurn(context.Background(), session.Token, "I want to buy a bakery")
	if err != nil {
		t.Fatalf("StreamAnonymousTurn: %v", err)
	}

	all := collect(t, events)
	done := terminal(t, all)
	if done.Type != stream.EventDone {
		t.Fatalf("terminal = %q, want done", done.Type)
	}
	if done.MessagesRemaining == nil || *done.MessagesRemaining != 2 {
		t.Errorf("MessagesRemaining = %v, want 2", done.MessagesRemaining)
	}

	text := concatDeltas(all)
	if text == "" {
		t.Fatal("expected text deltas")
	}

	assistant := f.messages.lastByRole(models.RoleAssistant)
	if assistant == nil {
		t.Fatal("assistant message not persisted")
	}
	if assistant.Content != text {
		t.Errorf("persisted content differs from streamed deltas:\n%q\nvs\n%q", assistant.Content, text)
	}
	if user := f.messages.lastByRole(models.RoleUser); user == nil || user.Content != "I want to buy a bakery" {
		t.Errorf("user message not persisted correctly: %+v", user)
	}
}

func TestStreamAnonymousTurnCountsDown(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())
	session, _ := f.svc.CreateSession(context.Background(), "")

	for want := 2; want >= 0; want-- {
		events, err := f.svc.StreamAnonymousTurn(context.Background(), session.Token, "next question")
		if err != nil {
			t.Fatalf("turn at remaining=%d: %v", want+1, err)
		}
		done := terminal(t, collect(t, events))
		if done.MessagesRemaining == nil || *done.MessagesRemaining != want {
			t.Fatalf("MessagesRemaining = %v, want %d", done.MessagesRemaining, want)
		}
	}

	// Allowance exhausted: the next send is refused before streaming.
	_, err := f.svc.StreamAnonymousTurn(context.Background(), session.Token, "one more")
	var limitErr *domain.LimitReachedError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitReachedError, got %v", err)
	}
	if !errors.Is(err, domain.ErrForbidden) {
		t.Error("LimitReachedError should match ErrForbidden")
	}
}

func TestStreamAnonymousTurnUnknownSession(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())

	_, err := f.svc.StreamAnonymousTurn(context.Background(), "ghost-token", "hello")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStreamAnonymousTurnRejectsInvalidContent(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())
	session, _ := f.svc.CreateSession(context.Background(), "")

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t"},
		{"oversized", strings.Repeat("a", config.MaxMessageLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.StreamAnonymousTurn(context.Background(), session.Token, tt.content)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestStreamAnonymousTurnProviderFailure(t *testing.T) {
	f := newFixture(t, &failingProvider{})
	session, _ := f.svc.CreateSession(context.Background(), "")

	events, err := f.svc.StreamAnonymousTurn(context.Background(), session.Token, "hello")
	if err != nil {
		t.Fatalf("StreamAnonymousTurn: %v", err)
	}

	last := terminal(t, collect(t, events))
	if last.Type != stream.EventError {
		t.Fatalf("terminal = %q, want error", last.Type)
	}
	if strings.Contains(last.Error, "connection reset") {
		t.Error("internal error detail must not reach the wire")
	}

	if f.messages.lastByRole(models.RoleAssistant) != nil {
		t.Error("failed turn must not persist an assistant message")
	}

	restored, _ := f.svc.GetSession(context.Background(), session.Token)
	if restored.Session.MessagesRemaining != 3 {
		t.Errorf("failed turn consumed allowance: remaining = %d", restored.Session.MessagesRemaining)
	}
}

func TestStreamAnonymousTurnClientGone(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())
	session, _ := f.svc.CreateSession(context.Background(), "")

	ctx, cancel := context.WithCancel(context.Background())
	events, err := f.svc.StreamAnonymousTurn(ctx, session.Token, "walk me through the whole process in detail")
	if err != nil {
		t.Fatalf("StreamAnonymousTurn: %v", err)
	}
	cancel()

	// The turn goroutine must release the channel even when the
	// consumer stops draining after disconnect.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel did not close after the client went away")
		}
	}
}

// --- conversations ---

func TestCreateConversationAttachesDeal(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())

	conv, err := f.svc.CreateConversation(context.Background(), "user-1", "Bakery acquisition", "")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.Journey != config.DefaultJourneyName {
		t.Errorf("Journey = %q, want default", conv.Journey)
	}
	if conv.CurrentGate != "intake" {
		t.Errorf("CurrentGate = %q, want intake", conv.CurrentGate)
	}
	if conv.DealID == nil {
		t.Fatal("conversation must have a deal attached")
	}

	deal, err := f.deals.GetByID(context.Background(), *conv.DealID, "user-1")
	if err != nil {
		t.Fatalf("deal lookup: %v", err)
	}
	if deal.Name != "Bakery acquisition" || deal.CurrentGate != "intake" {
		t.Errorf("deal = %+v", deal)
	}
}

func TestCreateConversationUnknownJourney(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())

	_, err := f.svc.CreateConversation(context.Background(), "user-1", "t", "franchise")
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestStreamConversationTurn(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())
	conv, _ := f.svc.CreateConversation(context.Background(), "user-1", "Bakery", "")

	events, err := f.svc.StreamConversationTurn(context.Background(), "user-1", conv.ID, "What multiples apply here?")
	if err != nil {
		t.Fatalf("StreamConversationTurn: %v", err)
	}

	all := collect(t, events)
	done := terminal(t, all)
	if done.Type != stream.EventDone {
		t.Fatalf("terminal = %q, want done", done.Type)
	}
	if done.ConversationID == nil || *done.ConversationID != conv.ID {
		t.Errorf("ConversationID = %v, want %d", done.ConversationID, conv.ID)
	}
	if done.DealID == nil || *done.DealID != *conv.DealID {
		t.Errorf("DealID = %v, want %d", done.DealID, *conv.DealID)
	}

	if concatDeltas(all) == "" {
		t.Error("expected text deltas")
	}
}

func TestStreamConversationTurnWrongOwner(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())
	conv, _ := f.svc.CreateConversation(context.Background(), "user-1", "Bakery", "")

	_, err := f.svc.StreamConversationTurn(context.Background(), "intruder", conv.ID, "hello")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStreamConversationTurnAdvancesGate(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())
	conv, _ := f.svc.CreateConversation(context.Background(), "user-1", "Bakery", "")

	// Second user turn crosses the "profile" threshold.
	var sawAdvance bool
	for turn := 0; turn < 2; turn++ {
		events, err := f.svc.StreamConversationTurn(context.Background(), "user-1", conv.ID, "more detail")
		if err != nil {
			t.Fatalf("turn %d: %v", turn, err)
		}
		for _, ev := range collect(t, events) {
			if ev.Type == stream.EventGateAdvance {
				if ev.ToGate != "profile" {
					t.Errorf("ToGate = %q, want profile", ev.ToGate)
				}
				sawAdvance = true
			}
		}
	}
	if !sawAdvance {
		t.Fatal("expected a gate_advance event after the second user turn")
	}

	updated, _ := f.conversations.GetByID(context.Background(), conv.ID, "user-1")
	if updated.CurrentGate != "profile" {
		t.Errorf("conversation gate = %q, want profile", updated.CurrentGate)
	}
	deal, _ := f.deals.GetByID(context.Background(), *conv.DealID, "user-1")
	if deal.CurrentGate != "profile" {
		t.Errorf("deal gate = %q, want profile", deal.CurrentGate)
	}
}

func TestStreamConversationTurnEmitsPaywall(t *testing.T) {
	f := newFixture(t, llm.NewScriptedProvider())
	f.ledger.balance = 1000
	conv, _ := f.svc.CreateConversation(context.Background(), "user-1", "Bakery", "")

	var offer *stream.Event
	for turn := 0; turn < 4; turn++ {
		events, err := f.svc.StreamConversationTurn(context.Background(), "user-1", conv.ID, "more detail")
		if err != nil {
			t.Fatalf("turn %d: %v", turn, err)
		}
		for _, ev := range collect(t, events) {
			if ev.Type == stream.EventPaywall {
				copied := ev
				offer = &copied
			}
		}
	}

	if offer == nil {
		t.Fatal("expected a paywall event by the fourth user turn")
	}
	if offer.Gate != "valuation" || offer.PriceCents != 4900 {
		t.Errorf("offer = %+v", offer)
	}
	if offer.Sufficient {
		t.Error("balance of 1000 cannot afford a 4900 gate")
	}

	// Priced gates never auto-advance.
	updated, _ := f.conversations.GetByID(context.Background(), conv.ID, "user-1")
	if updated.CurrentGate != "profile" {
		t.Errorf("conversation gate = %q, want profile", updated.CurrentGate)
	}
}
