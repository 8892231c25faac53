package chatclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"dealdesk/pkg/stream"
)

// Entry is one rendered transcript entry. Synthetic entries are
// client-injected notices (e.g. a failure message) that never came
// from the server transcript.
type Entry struct {
	Role      string
	Content   string
	Synthetic bool
}

// AnonymousSession drives an anonymous chat: sequential turns against
// a token-identified session with a server-managed message allowance.
// One turn streams at a time; a send during an active stream is
// rejected with ErrBusy rather than queued.
type AnonymousSession struct {
	client *Client
	store  *SessionStore

	mu        sync.Mutex
	session   *Session
	history   []Entry
	acc       Accumulator
	streaming bool
	cancel    context.CancelFunc
	remaining int
	lastError string
}

// NewAnonymousSession creates a controller over the given client and
// session store.
func NewAnonymousSession(client *Client, store *SessionStore) *AnonymousSession {
	return &AnonymousSession{client: client, store: store}
}

// Start ensures a live session, creating one if needed.
func (s *AnonymousSession) Start(ctx context.Context, sourcePage string) error {
	session, err := s.store.EnsureSession(ctx, sourcePage)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	s.remaining = session.MessagesRemaining
	return nil
}

// Restore adopts a previously stored session and its transcript.
// Returns false when there is nothing to restore; the caller then
// decides whether to Start fresh.
func (s *AnonymousSession) Restore(ctx context.Context) (bool, error) {
	state, ok, err := s.store.Restore(ctx)
	if err != nil || !ok {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = state.Session
	s.remaining = state.Session.MessagesRemaining
	s.history = s.history[:0]
	for _, m := range state.Messages {
		s.history = append(s.history, Entry{Role: m.Role, Content: m.Content})
	}
	return true, nil
}

// Send runs one turn: posts the message, streams the reply, and
// finalizes the transcript. It blocks until the turn's terminal event.
// At an exhausted allowance it refuses locally with ErrLimitReached,
// without a network round trip.
func (s *AnonymousSession) Send(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.session == nil {
		s.mu.Unlock()
		return fmt.Errorf("session not started")
	}
	if s.remaining <= 0 {
		s.mu.Unlock()
		return ErrLimitReached
	}

	turnCtx, cancel := context.WithCancel(ctx)
	s.streaming = true
	s.cancel = cancel
	s.lastError = ""
	s.acc.Reset()
	s.history = append(s.history, Entry{Role: "user", Content: content})
	token := s.session.Token
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.streaming = false
		s.cancel = nil
		s.acc.Reset()
		s.mu.Unlock()
	}()

	es, err := s.client.StreamSessionMessage(turnCtx, token, content)
	if errors.Is(err, ErrNotFound) {
		// The server forgot the session (expiry, wipe). Mint a fresh one
		// and resend once; the local transcript is all that remains.
		es, err = s.recreateAndResend(turnCtx, content)
	}
	if err != nil {
		s.dropLastUserEntry()
		return err
	}
	defer es.Close()

	return s.consume(turnCtx, es)
}

// Cancel aborts the in-flight turn, discarding its partial text. The
// transcript keeps the user message; no assistant message is created.
func (s *AnonymousSession) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *AnonymousSession) recreateAndResend(ctx context.Context, content string) (*EventStream, error) {
	if err := s.store.Clear(); err != nil {
		return nil, err
	}

	session, err := s.store.EnsureSession(ctx, "")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = session
	s.remaining = session.MessagesRemaining
	s.mu.Unlock()

	return s.client.StreamSessionMessage(ctx, session.Token, content)
}

// consume drains one turn's event stream into the transcript.
func (s *AnonymousSession) consume(ctx context.Context, es *EventStream) error {
	for {
		ev, err := es.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled: partial text is discarded, no finalization.
				return ctx.Err()
			}
			if err == io.EOF {
				// Stream ended without a terminal event: implicit failure.
				s.finalizeInterrupted("The response was interrupted. Please try again.")
				return nil
			}
			s.finalizeInterrupted("The response was interrupted. Please try again.")
			return nil
		}

		switch ev.Type {
		case stream.EventTextDelta:
			s.acc.Append(ev.Text)

		case stream.EventDone:
			text, ok := s.acc.FinalizeDone()
			s.mu.Lock()
			if ok {
				s.history = append(s.history, Entry{Role: "assistant", Content: text})
			}
			if ev.MessagesRemaining != nil {
				s.remaining = *ev.MessagesRemaining
			}
			s.mu.Unlock()
			return nil

		case stream.EventError:
			s.finalizeTurnError(ev.Error)
			return nil
		}
	}
}

// finalizeTurnError records a turn the server ended with an error
// event: the error text replaces whatever streamed and becomes the
// turn's single assistant message.
func (s *AnonymousSession) finalizeTurnError(msg string) {
	text, ok := s.acc.FinalizeError(msg)
	s.mu.Lock()
	if ok {
		s.history = append(s.history, Entry{Role: "assistant", Content: text})
	}
	s.mu.Unlock()
}

// finalizeInterrupted handles a stream that broke without a terminal
// event: whatever streamed is kept and a dismissible error is recorded
// for display.
func (s *AnonymousSession) finalizeInterrupted(msg string) {
	partial, ok := s.acc.FinalizeInterrupted()
	s.mu.Lock()
	if ok {
		s.history = append(s.history, Entry{Role: "assistant", Content: partial})
	}
	s.lastError = msg
	s.mu.Unlock()
}

func (s *AnonymousSession) dropLastUserEntry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 && s.history[n-1].Role == "user" {
		s.history = s.history[:n-1]
	}
}

// History returns a copy of the transcript.
func (s *AnonymousSession) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.history))
	copy(out, s.history)
	return out
}

// StreamingText returns the partial assistant text of the in-flight
// turn, or "" when idle.
func (s *AnonymousSession) StreamingText() string {
	return s.acc.Partial()
}

// MessagesRemaining mirrors the server's counter as of the last done
// event or session payload.
func (s *AnonymousSession) MessagesRemaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// LimitReached reports whether the allowance is exhausted.
func (s *AnonymousSession) LimitReached() bool {
	return s.MessagesRemaining() <= 0
}

// LastError returns the dismissible error from the last failed turn.
func (s *AnonymousSession) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// DismissError clears the displayed error.
func (s *AnonymousSession) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = ""
}

// Token returns the current session token, or "".
func (s *AnonymousSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.Token
}
