package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// SessionStore manages the anonymous session lifecycle: minting a
// session on first use, persisting its token, and silently recovering
// when a stored token has expired server-side.
type SessionStore struct {
	client *Client
	tokens TokenStore

	mu     sync.Mutex
	cached *Session
}

// NewSessionStore creates a session store.
func NewSessionStore(client *Client, tokens TokenStore) *SessionStore {
	return &SessionStore{client: client, tokens: tokens}
}

// EnsureSession returns a live session, reusing the stored token when
// the server still knows it and creating a fresh session otherwise.
// Once a session has been established in this process, repeat calls
// return it without a network round trip. Rate-limit refusals (429)
// surface as ErrRateLimited with the server's detail preserved;
// callers display it verbatim.
func (s *SessionStore) EnsureSession(ctx context.Context, sourcePage string) (*Session, error) {
	if session := s.heldSession(); session != nil {
		return session, nil
	}

	token, err := s.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("load session token: %w", err)
	}

	if token != "" {
		state, err := s.client.GetSession(ctx, token)
		if err == nil {
			s.hold(state.Session)
			return state.Session, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// Stored token is stale; fall through to a fresh session.
		if err := s.tokens.Clear(); err != nil {
			return nil, fmt.Errorf("clear stale token: %w", err)
		}
	}

	session, err := s.client.CreateSession(ctx, sourcePage)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(session.Token); err != nil {
		return nil, fmt.Errorf("save session token: %w", err)
	}

	s.hold(session)
	return session, nil
}

// heldSession returns a copy of the in-process session, or nil.
func (s *SessionStore) heldSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		return nil
	}
	session := *s.cached
	return &session
}

func (s *SessionStore) hold(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held := *session
	s.cached = &held
}

// Restore returns the stored session and its transcript, or ok=false
// when no stored token exists or the server no longer knows it. An
// invalid token is cleared silently; restore never creates a session.
// Unlike EnsureSession, Restore always re-validates against the
// server, because only the server holds the transcript.
func (s *SessionStore) Restore(ctx context.Context) (*SessionState, bool, error) {
	token, err := s.tokens.Load()
	if err != nil {
		return nil, false, fmt.Errorf("load session token: %w", err)
	}
	if token == "" {
		return nil, false, nil
	}

	state, err := s.client.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if clearErr := s.tokens.Clear(); clearErr != nil {
				return nil, false, fmt.Errorf("clear stale token: %w", clearErr)
			}
			return nil, false, nil
		}
		return nil, false, err
	}

	s.hold(state.Session)
	return state, true, nil
}

// Clear drops the stored token and the in-process session.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return s.tokens.Clear()
}
