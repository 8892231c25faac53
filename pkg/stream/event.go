// Package stream defines the wire-level event protocol shared by the
// dealdesk server and client SDK. Events are delivered as SSE records
// ("data: <json>\n\n") over a chunked HTTP response body.
package stream

import "encoding/json"

// EventType identifies the kind of a stream event.
type EventType string

const (
	// EventTextDelta carries an incremental chunk of assistant text.
	EventTextDelta EventType = "text_delta"
	// EventDone terminates a successful turn. It may carry server-assigned
	// identifiers and the authoritative remaining-message counter.
	EventDone EventType = "done"
	// EventGateAdvance signals that the deal progressed to a new gate.
	EventGateAdvance EventType = "gate_advance"
	// EventPaywall signals a priced gate unlock offer.
	EventPaywall EventType = "paywall"
	// EventError terminates a failed turn.
	EventError EventType = "error"
)

// Event is the tagged union carried over the wire. Exactly one terminal
// event (done or error) is emitted per turn; text_delta events precede it
// and are concatenated in arrival order.
type Event struct {
	Type EventType `json:"type"`

	// text_delta
	Text string `json:"text,omitempty"`

	// done
	ConversationID    *int64 `json:"conversationId,omitempty"`
	DealID            *int64 `json:"dealId,omitempty"`
	MessagesRemaining *int   `json:"messagesRemaining,omitempty"`

	// gate_advance
	ToGate string `json:"toGate,omitempty"`

	// paywall
	Gate         string `json:"gate,omitempty"`
	CurrentGate  string `json:"currentGate,omitempty"`
	PriceCents   int64  `json:"priceCents,omitempty"`
	BalanceCents int64  `json:"balanceCents,omitempty"`
	Sufficient   bool   `json:"sufficient,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// MarshalJSON emits only the fields that belong to the event's type, so
// that e.g. a text_delta record never carries paywall fields. The paywall
// shape always includes "sufficient", even when false.
func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{"type": e.Type}

	switch e.Type {
	case EventTextDelta:
		m["text"] = e.Text
	case EventDone:
		if e.ConversationID != nil {
			m["conversationId"] = *e.ConversationID
		}
		if e.DealID != nil {
			m["dealId"] = *e.DealID
		}
		if e.MessagesRemaining != nil {
			m["messagesRemaining"] = *e.MessagesRemaining
		}
	case EventGateAdvance:
		m["toGate"] = e.ToGate
	case EventPaywall:
		m["gate"] = e.Gate
		m["currentGate"] = e.CurrentGate
		m["priceCents"] = e.PriceCents
		m["balanceCents"] = e.BalanceCents
		m["sufficient"] = e.Sufficient
	case EventError:
		m["error"] = e.Error
	}

	return json.Marshal(m)
}

// IsTerminal reports whether the event ends a turn.
func (e *Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// TextDelta builds a text_delta event.
func TextDelta(text string) Event {
	return Event{Type: EventTextDelta, Text: text}
}

// GateAdvance builds a gate_advance event.
func GateAdvance(toGate string) Event {
	return Event{Type: EventGateAdvance, ToGate: toGate}
}

// ErrorEvent builds an error event with the given message.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Error: msg}
}
