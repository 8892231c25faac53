package chatclient

import (
	"encoding/json"
	"net/http"
	"testing"

	"dealdesk/pkg/stream"
)

// writeSSE writes a complete SSE response for one turn.
func writeSSE(t *testing.T, w http.ResponseWriter, events ...stream.Event) {
	t.Helper()
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, ev := range events {
		record, err := stream.Encode(ev)
		if err != nil {
			t.Fatalf("encode event: %v", err)
		}
		if _, err := w.Write(record); err != nil {
			t.Fatalf("write event: %v", err)
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// writeProblem writes a problem+json error response.
func writeProblem(w http.ResponseWriter, status int, detail string, extras map[string]interface{}) {
	body := map[string]interface{}{
		"type":   "about:blank",
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	}
	for k, v := range extras {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func doneEvent(remaining int) stream.Event {
	return stream.Event{Type: stream.EventDone, MessagesRemaining: &remaining}
}

func conversationDone(conversationID, dealID int64) stream.Event {
	return stream.Event{
		Type:           stream.EventDone,
		ConversationID: &conversationID,
		DealID:         &dealID,
	}
}
