package stream

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

// collect drains the decoder until EOF and returns the events seen.
func collect(t *testing.T, d *Decoder) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := d.Next(context.Background())
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		events = append(events, *ev)
	}
}

func TestDecoder_TextDeltasInOrder(t *testing.T) {
	input := "data: {\"type\":\"text_delta\",\"text\":\"Hel\"}\n\n" +
		"data: {\"type\":\"text_delta\",\"text\":\"lo\"}\n\n" +
		"data: {\"type\":\"done\",\"messagesRemaining\":7}\n\n"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Text != "Hel" || events[1].Text != "lo" {
		t.Errorf("deltas out of order: %q, %q", events[0].Text, events[1].Text)
	}
	if events[2].Type != EventDone {
		t.Errorf("expected terminal done event, got %s", events[2].Type)
	}
	if events[2].MessagesRemaining == nil || *events[2].MessagesRemaining != 7 {
		t.Errorf("expected messagesRemaining=7, got %v", events[2].MessagesRemaining)
	}
}

func TestDecoder_RecordSplitAcrossChunks(t *testing.T) {
	// OneByteReader forces every record to arrive one byte at a time, so
	// each line is assembled from many partial reads.
	input := "data: {\"type\":\"text_delta\",\"text\":\"split record\"}\n\ndata: {\"type\":\"done\"}\n\n"
	d := NewDecoder(iotest.OneByteReader(strings.NewReader(input)))

	events := collect(t, d)

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Text != "split record" {
		t.Errorf("expected reassembled delta, got %q", events[0].Text)
	}
}

func TestDecoder_SkipsMalformedRecords(t *testing.T) {
	input := "data: {\"type\":\"text_delta\",\"text\":\"a\"}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"type\":\"text_delta\",\"text\":\"b\"}\n\n" +
		"data: {\"type\":\"done\"}\n\n"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	if len(events) != 3 {
		t.Fatalf("expected malformed record to be skipped, got %d events", len(events))
	}
	if events[0].Text+events[1].Text != "ab" {
		t.Errorf("expected surviving deltas a,b; got %q,%q", events[0].Text, events[1].Text)
	}
}

func TestDecoder_IgnoresSentinelAndComments(t *testing.T) {
	input := ": keepalive\n\n" +
		"data: {\"type\":\"text_delta\",\"text\":\"x\"}\n\n" +
		"data: [DONE]\n\n" +
		"data: {\"type\":\"done\"}\n\n"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestDecoder_StreamEndWithoutTerminal(t *testing.T) {
	// Stream cut off mid-turn: decoder reports EOF, callers treat the
	// missing terminal event as an implicit error.
	input := "data: {\"type\":\"text_delta\",\"text\":\"partial\"}\n\n"
	d := NewDecoder(strings.NewReader(input))

	ev, err := d.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.Type != EventTextDelta {
		t.Fatalf("expected text_delta, got %s", ev.Type)
	}

	if _, err := d.Next(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF after truncated stream, got %v", err)
	}
}

func TestDecoder_TrailingPartialLineDropped(t *testing.T) {
	input := "data: {\"type\":\"text_delta\",\"text\":\"ok\"}\n\ndata: {\"type\":\"done\""
	d := NewDecoder(strings.NewReader(input))

	events := collect(t, d)

	if len(events) != 1 {
		t.Fatalf("incomplete trailing record should not be parsed, got %d events", len(events))
	}
}

func TestDecoder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDecoder(strings.NewReader("data: {\"type\":\"done\"}\n\n"))
	if _, err := d.Next(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDecoder_GateAndPaywallEvents(t *testing.T) {
	input := "data: {\"type\":\"gate_advance\",\"toGate\":\"valuation\"}\n\n" +
		"data: {\"type\":\"paywall\",\"gate\":\"diligence\",\"currentGate\":\"valuation\",\"priceCents\":4900,\"balanceCents\":1000,\"sufficient\":false}\n\n" +
		"data: {\"type\":\"done\"}\n\n"

	events := collect(t, NewDecoder(strings.NewReader(input)))

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].ToGate != "valuation" {
		t.Errorf("expected toGate=valuation, got %q", events[0].ToGate)
	}
	pw := events[1]
	if pw.Gate != "diligence" || pw.PriceCents != 4900 || pw.Sufficient {
		t.Errorf("unexpected paywall payload: %+v", pw)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	remaining := 4
	tests := []struct {
		name string
		ev   Event
	}{
		{"text_delta", TextDelta("hello")},
		{"done with counter", Event{Type: EventDone, MessagesRemaining: &remaining}},
		{"gate_advance", GateAdvance("closing")},
		{"error", ErrorEvent("boom")},
		{"paywall insufficient", Event{
			Type: EventPaywall, Gate: "diligence", CurrentGate: "valuation",
			PriceCents: 4900, BalanceCents: 0, Sufficient: false,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framed, err := Encode(tt.ev)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			d := NewDecoder(strings.NewReader(string(framed)))
			got, err := d.Next(context.Background())
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got.Type != tt.ev.Type {
				t.Errorf("type mismatch: got %s, want %s", got.Type, tt.ev.Type)
			}
		})
	}
}

func TestEvent_PaywallMarshalIncludesSufficientFalse(t *testing.T) {
	payload, err := json.Marshal(Event{Type: EventPaywall, Gate: "diligence", Sufficient: false})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(payload), "\"sufficient\":false") {
		t.Errorf("paywall payload must always carry sufficient, got %s", payload)
	}
}

func TestEvent_TextDeltaMarshalOmitsForeignFields(t *testing.T) {
	payload, err := json.Marshal(TextDelta("hi"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(payload), "sufficient") || strings.Contains(string(payload), "toGate") {
		t.Errorf("text_delta payload leaked foreign fields: %s", payload)
	}
}
