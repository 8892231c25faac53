package chatclient

import (
	"context"
	"sync"
	"time"
)

// MorphState is the phase of the landing-page-to-chat transition.
type MorphState string

const (
	// StatePublic is the resting state: marketing surface, no chat.
	StatePublic MorphState = "public"
	// StateMorphing is the brief visual transition into chat.
	StateMorphing MorphState = "morphing"
	// StateChat is the live chat surface.
	StateChat MorphState = "chat"
)

const defaultMorphDelay = 400 * time.Millisecond

// Navigator receives the single history marker pushed when the surface
// enters chat, so back navigation can leave it again.
type Navigator interface {
	Push(marker string)
}

// chatMarker is pushed onto the navigator exactly once per entry into
// chat.
const chatMarker = "chat"

// HistoryStack is an in-memory Navigator: a plain marker stack whose
// Pop models back navigation.
type HistoryStack struct {
	mu      sync.Mutex
	markers []string
}

// Push appends a marker.
func (s *HistoryStack) Push(marker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, marker)
}

// Pop removes and returns the top marker; ok is false on an empty
// stack.
func (s *HistoryStack) Pop() (marker string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.markers) == 0 {
		return "", false
	}
	marker = s.markers[len(s.markers)-1]
	s.markers = s.markers[:len(s.markers)-1]
	return marker, true
}

// Depth returns the number of markers on the stack.
func (s *HistoryStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// Morph orchestrates the public → morphing → chat transition. The
// first message is captured at Begin and sent exactly once, after the
// morph completes, so the visual transition never races the stream.
type Morph struct {
	session    *AnonymousSession
	nav        Navigator
	delay      time.Duration
	sourcePage string
	schedule   func(d time.Duration, fn func()) (cancel func())

	mu          sync.Mutex
	state       MorphState
	deferred    string
	pushed      bool
	cancelTimer func()
}

// MorphOption customizes a Morph.
type MorphOption func(*Morph)

// WithMorphDelay overrides the transition duration.
func WithMorphDelay(d time.Duration) MorphOption {
	return func(m *Morph) { m.delay = d }
}

// WithSourcePage tags sessions minted by Begin with the page the
// visitor started from.
func WithSourcePage(page string) MorphOption {
	return func(m *Morph) { m.sourcePage = page }
}

// WithScheduler injects the timer, so tests can fire the morph
// deterministically. The returned func cancels the pending fire.
func WithScheduler(schedule func(d time.Duration, fn func()) (cancel func())) MorphOption {
	return func(m *Morph) { m.schedule = schedule }
}

// NewMorph creates an orchestrator over an anonymous session.
func NewMorph(session *AnonymousSession, nav Navigator, opts ...MorphOption) *Morph {
	m := &Morph{
		session: session,
		nav:     nav,
		delay:   defaultMorphDelay,
		state:   StatePublic,
	}
	m.schedule = func(d time.Duration, fn func()) func() {
		t := time.AfterFunc(d, fn)
		return func() { t.Stop() }
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current phase.
func (m *Morph) State() MorphState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin starts the transition from the public surface, capturing the
// visitor's first message for deferred delivery. Calls while already
// morphing or in chat are ignored; the captured message is not
// replaced.
func (m *Morph) Begin(ctx context.Context, firstMessage string) error {
	m.mu.Lock()
	if m.state != StatePublic {
		m.mu.Unlock()
		return nil
	}
	m.state = StateMorphing
	m.deferred = firstMessage
	m.pushMarkerLocked()
	m.mu.Unlock()

	if m.session.Token() == "" {
		if err := m.session.Start(ctx, m.sourcePage); err != nil {
			m.mu.Lock()
			m.state = StatePublic
			m.deferred = ""
			m.mu.Unlock()
			return err
		}
	}

	m.mu.Lock()
	m.cancelTimer = m.schedule(m.delay, func() { m.finishMorph(ctx) })
	m.mu.Unlock()
	return nil
}

// finishMorph lands in chat and delivers the deferred message exactly
// once. The deferred slot is cleared before sending, so a re-entrant
// fire cannot double-send.
func (m *Morph) finishMorph(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateMorphing {
		m.mu.Unlock()
		return
	}
	m.state = StateChat
	msg := m.deferred
	m.deferred = ""
	m.cancelTimer = nil
	m.mu.Unlock()

	if msg != "" {
		// Errors surface through the session's own error state.
		_ = m.session.Send(ctx, msg)
	}
}

// RestoreFromSession skips the transition when a stored session
// restores with messages in it: the surface opens directly in chat
// with the transcript in place. Returns false when there was nothing
// to restore, or when the restored session never got past an empty
// transcript; the visitor then lands on the public surface as usual.
func (m *Morph) RestoreFromSession(ctx context.Context) (bool, error) {
	ok, err := m.session.Restore(ctx)
	if err != nil || !ok {
		return false, err
	}
	if len(m.session.History()) == 0 {
		return false, nil
	}

	m.mu.Lock()
	m.state = StateChat
	m.pushMarkerLocked()
	m.mu.Unlock()
	return true, nil
}

// Back returns to the public surface, abandoning a pending morph and
// its deferred message. The session itself survives for a later
// re-entry.
func (m *Morph) Back() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelTimer != nil {
		m.cancelTimer()
		m.cancelTimer = nil
	}
	m.state = StatePublic
	m.deferred = ""
	m.pushed = false
}

func (m *Morph) pushMarkerLocked() {
	if m.pushed {
		return
	}
	m.pushed = true
	if m.nav != nil {
		m.nav.Push(chatMarker)
	}
}
