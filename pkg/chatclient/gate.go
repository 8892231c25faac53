package chatclient

import (
	"context"
	"fmt"
	"sync"

	"dealdesk/pkg/stream"
)

// Offer is a pending paywall: the priced gate blocking progress and
// how it compares to the user's balance.
type Offer struct {
	Gate         string
	CurrentGate  string
	PriceCents   int64
	BalanceCents int64
	Sufficient   bool
}

// GateCoordinator tracks deal-stage progress on the client: it absorbs
// gate_advance and paywall events from the turn stream, holds at most
// one active offer (a newer offer replaces an unresolved one), and
// fulfills purchases. Wire its HandleEvent in via WithGateHandler.
type GateCoordinator struct {
	client       *Client
	conversation *AuthenticatedConversation
	onAdvance    func(gate string)

	mu          sync.Mutex
	offer       *Offer
	currentGate string
}

// GateOption customizes a GateCoordinator.
type GateOption func(*GateCoordinator)

// WithAdvanceCallback registers a callback invoked whenever the gate
// changes, from a free advance or a purchase. Typical use is
// refreshing deal views.
func WithAdvanceCallback(fn func(gate string)) GateOption {
	return func(g *GateCoordinator) { g.onAdvance = fn }
}

// NewGateCoordinator creates a coordinator bound to a conversation.
// Sending a new message on that conversation dismisses any unresolved
// offer.
func NewGateCoordinator(client *Client, conversation *AuthenticatedConversation, opts ...GateOption) *GateCoordinator {
	g := &GateCoordinator{client: client, conversation: conversation}
	for _, opt := range opts {
		opt(g)
	}
	if conversation != nil {
		conversation.setSendObserver(g.ClearOffer)
	}
	return g
}

// HandleEvent absorbs a gate-related stream event. Other event types
// are ignored, so it can be wired directly as the gate handler.
func (g *GateCoordinator) HandleEvent(ev stream.Event) {
	switch ev.Type {
	case stream.EventGateAdvance:
		g.mu.Lock()
		g.currentGate = ev.ToGate
		onAdvance := g.onAdvance
		g.mu.Unlock()
		if onAdvance != nil {
			onAdvance(ev.ToGate)
		}

	case stream.EventPaywall:
		g.mu.Lock()
		g.offer = &Offer{
			Gate:         ev.Gate,
			CurrentGate:  ev.CurrentGate,
			PriceCents:   ev.PriceCents,
			BalanceCents: ev.BalanceCents,
			Sufficient:   ev.Sufficient,
		}
		g.currentGate = ev.CurrentGate
		g.mu.Unlock()
	}
}

// ActiveOffer returns the pending offer, or nil.
func (g *GateCoordinator) ActiveOffer() *Offer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.offer == nil {
		return nil
	}
	offer := *g.offer
	return &offer
}

// ClearOffer dismisses the pending offer without purchasing. Call it
// when the user declines or sends a new message instead.
func (g *GateCoordinator) ClearOffer() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offer = nil
}

// CurrentGate returns the last known gate, or "".
func (g *GateCoordinator) CurrentGate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentGate
}

// CompletePurchase fulfills the active offer. On success the offer is
// cleared, the gate advances, and the unlocked deliverable's ID is
// returned. Insufficient credit surfaces as ErrInsufficientBalance
// with the offer left in place.
func (g *GateCoordinator) CompletePurchase(ctx context.Context) (string, error) {
	g.mu.Lock()
	offer := g.offer
	g.mu.Unlock()
	if offer == nil {
		return "", fmt.Errorf("no active offer")
	}

	conversationID := g.conversation.ConversationID()
	if conversationID == 0 {
		return "", fmt.Errorf("no conversation to purchase for")
	}

	result, err := g.client.PurchaseGate(ctx, offer.Gate, conversationID)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.offer = nil
	g.currentGate = result.Gate
	onAdvance := g.onAdvance
	g.mu.Unlock()

	if onAdvance != nil {
		onAdvance(result.Gate)
	}

	return result.DeliverableID, nil
}
