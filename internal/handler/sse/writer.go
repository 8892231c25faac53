// Package sse writes server-sent-event responses. A handler commits to
// a stream by calling WriteHeaders; after that point failures can only
// be reported in-band as error events.
package sse

import (
	"fmt"
	"net/http"

	"dealdesk/pkg/stream"
)

// Writer frames stream events onto an HTTP response. It is not safe
// for concurrent use; the owning handler serializes event and
// keep-alive writes through its select loop.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter wraps a response writer for SSE output. Returns an error
// if the underlying writer cannot flush, since unflushed SSE is
// indistinguishable from a hung connection.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// WriteHeaders sends the SSE response headers and commits the stream.
func (s *Writer) WriteHeaders() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// WriteEvent frames and flushes a single event.
// Returns error if the connection is closed or the write fails.
func (s *Writer) WriteEvent(ev stream.Event) error {
	record, err := stream.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := s.w.Write(record); err != nil {
		return fmt.Errorf("write event failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteKeepAlive writes an SSE comment (: keepalive\n\n) and flushes.
// Returns error if the connection is closed or the write fails.
func (s *Writer) WriteKeepAlive() error {
	if _, err := fmt.Fprintf(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}
