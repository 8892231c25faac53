package chatclient

import (
	"context"
	"io"
	"sync"
	"unicode/utf8"

	"dealdesk/pkg/stream"
)

// syntheticFailureMessage is shown inline, as an assistant entry, when
// an authenticated turn fails. Authenticated chat renders failures in
// the transcript rather than as a dismissible banner.
const syntheticFailureMessage = "Something went wrong. Please try again."

const maxDerivedTitleLength = 60

// AuthenticatedConversation drives an authenticated chat thread. The
// first send lazily creates the conversation (titled from the
// message); server-assigned identifiers are adopted from the done
// event of each turn.
type AuthenticatedConversation struct {
	client      *Client
	journey     string
	gateHandler func(stream.Event)
	onSend      func()

	mu             sync.Mutex
	conversationID int64
	dealID         *int64
	history        []Entry
	acc            Accumulator
	streaming      bool
	cancel         context.CancelFunc
}

// ConversationOption customizes an AuthenticatedConversation.
type ConversationOption func(*AuthenticatedConversation)

// WithJourney selects the advisory track for a lazily created
// conversation.
func WithJourney(journey string) ConversationOption {
	return func(c *AuthenticatedConversation) { c.journey = journey }
}

// WithConversationID resumes an existing conversation instead of
// creating one on first send.
func WithConversationID(id int64) ConversationOption {
	return func(c *AuthenticatedConversation) { c.conversationID = id }
}

// WithGateHandler registers a callback for gate_advance and paywall
// events; typically a GateCoordinator's HandleEvent.
func WithGateHandler(fn func(stream.Event)) ConversationOption {
	return func(c *AuthenticatedConversation) { c.gateHandler = fn }
}

// setSendObserver registers a callback fired at the start of every
// accepted Send. The gate coordinator uses it to drop a stale offer
// when the user moves on instead of purchasing.
func (c *AuthenticatedConversation) setSendObserver(fn func()) {
	c.onSend = fn
}

// NewAuthenticatedConversation creates a controller over the given
// client. The client must carry a bearer token.
func NewAuthenticatedConversation(client *Client, opts ...ConversationOption) *AuthenticatedConversation {
	c := &AuthenticatedConversation{client: client}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load pulls an existing conversation's transcript.
func (c *AuthenticatedConversation) Load(ctx context.Context) error {
	c.mu.Lock()
	id := c.conversationID
	c.mu.Unlock()
	if id == 0 {
		return nil
	}

	state, err := c.client.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dealID = state.Conversation.DealID
	c.history = c.history[:0]
	for _, m := range state.Messages {
		c.history = append(c.history, Entry{Role: m.Role, Content: m.Content})
	}
	return nil
}

// Send runs one turn, creating the conversation first if this is the
// opening message. It blocks until the turn's terminal event.
func (c *AuthenticatedConversation) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return ErrBusy
	}

	turnCtx, cancel := context.WithCancel(ctx)
	c.streaming = true
	c.cancel = cancel
	c.acc.Reset()
	needsCreate := c.conversationID == 0
	onSend := c.onSend
	c.mu.Unlock()

	// A new message supersedes any unresolved paywall offer.
	if onSend != nil {
		onSend()
	}

	defer func() {
		cancel()
		c.mu.Lock()
		c.streaming = false
		c.cancel = nil
		c.acc.Reset()
		c.mu.Unlock()
	}()

	if needsCreate {
		conv, err := c.client.CreateConversation(turnCtx, deriveTitle(content), c.journey)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.conversationID = conv.ID
		c.dealID = conv.DealID
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.history = append(c.history, Entry{Role: "user", Content: content})
	id := c.conversationID
	c.mu.Unlock()

	es, err := c.client.StreamConversationMessage(turnCtx, id, content)
	if err != nil {
		c.mu.Lock()
		if n := len(c.history); n > 0 && c.history[n-1].Role == "user" {
			c.history = c.history[:n-1]
		}
		c.mu.Unlock()
		return err
	}
	defer es.Close()

	return c.consume(turnCtx, es)
}

// Cancel aborts the in-flight turn, discarding its partial text.
func (c *AuthenticatedConversation) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *AuthenticatedConversation) consume(ctx context.Context, es *EventStream) error {
	for {
		ev, err := es.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == io.EOF {
				c.finalizeInterrupted()
				return nil
			}
			c.finalizeInterrupted()
			return nil
		}

		switch ev.Type {
		case stream.EventTextDelta:
			c.acc.Append(ev.Text)

		case stream.EventGateAdvance, stream.EventPaywall:
			if c.gateHandler != nil {
				c.gateHandler(*ev)
			}

		case stream.EventDone:
			text, ok := c.acc.FinalizeDone()
			c.mu.Lock()
			if ok {
				c.history = append(c.history, Entry{Role: "assistant", Content: text})
			}
			if ev.ConversationID != nil {
				c.conversationID = *ev.ConversationID
			}
			if ev.DealID != nil {
				dealID := *ev.DealID
				c.dealID = &dealID
			}
			c.mu.Unlock()
			return nil

		case stream.EventError:
			c.finalizeTurnError(ev.Error)
			return nil
		}
	}
}

// finalizeTurnError records a turn the server ended with an error
// event: the error text replaces whatever streamed and becomes the
// turn's single assistant message.
func (c *AuthenticatedConversation) finalizeTurnError(msg string) {
	text, ok := c.acc.FinalizeError(msg)
	if !ok {
		return
	}
	c.mu.Lock()
	c.history = append(c.history, Entry{Role: "assistant", Content: text})
	c.mu.Unlock()
}

// finalizeInterrupted handles a stream that broke without a terminal
// event: whatever streamed is kept, followed by the inline failure
// notice.
func (c *AuthenticatedConversation) finalizeInterrupted() {
	partial, ok := c.acc.FinalizeInterrupted()
	c.mu.Lock()
	if ok {
		c.history = append(c.history, Entry{Role: "assistant", Content: partial})
	}
	c.history = append(c.history, Entry{Role: "assistant", Content: syntheticFailureMessage, Synthetic: true})
	c.mu.Unlock()
}

// History returns a copy of the transcript, synthetic entries
// included.
func (c *AuthenticatedConversation) History() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.history))
	copy(out, c.history)
	return out
}

// StreamingText returns the partial assistant text of the in-flight
// turn, or "" when idle.
func (c *AuthenticatedConversation) StreamingText() string {
	return c.acc.Partial()
}

// ConversationID returns the server-assigned conversation ID, or 0
// before the first turn completes.
func (c *AuthenticatedConversation) ConversationID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// DealID returns the linked deal ID, or nil.
func (c *AuthenticatedConversation) DealID() *int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dealID
}

// deriveTitle trims the opening message into a conversation title.
func deriveTitle(content string) string {
	if utf8.RuneCountInString(content) <= maxDerivedTitleLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxDerivedTitleLength-1]) + "…"
}
