package chatclient

import (
	"strings"
	"sync"
)

// Accumulator assembles one assistant turn from its text deltas.
// Deltas are concatenated in arrival order; the turn is finalized
// exactly once, by the terminal event. After finalization further
// deltas are dropped until Reset.
type Accumulator struct {
	mu        sync.Mutex
	b         strings.Builder
	finalized bool
}

// Append adds a delta. Deltas arriving after finalization are ignored:
// a terminal event ends the turn regardless of what trails it.
func (a *Accumulator) Append(delta string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return
	}
	a.b.WriteString(delta)
}

// Partial returns the text accumulated so far. It is the live
// streaming display; after Reset it is empty.
func (a *Accumulator) Partial() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.b.String()
}

// FinalizeDone completes a successful turn, returning the full text.
// ok is false when nothing was accumulated (no message should be
// created) or when the turn was already finalized.
func (a *Accumulator) FinalizeDone() (text string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return "", false
	}
	a.finalized = true
	text = a.b.String()
	return text, text != ""
}

// FinalizeError completes a turn that ended with a terminal error
// event. The accumulated text is discarded: the error's message text
// becomes the turn's single assistant message. ok is false when the
// turn was already finalized.
func (a *Accumulator) FinalizeError(errText string) (text string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return "", false
	}
	a.finalized = true
	a.b.Reset()
	a.b.WriteString(errText)
	return errText, true
}

// FinalizeInterrupted completes a turn whose stream broke without a
// terminal event. The partial text is returned so callers can preserve
// what already streamed; ok is false when nothing streamed or the turn
// was already finalized.
func (a *Accumulator) FinalizeInterrupted() (partial string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finalized {
		return "", false
	}
	a.finalized = true
	partial = a.b.String()
	return partial, partial != ""
}

// Reset discards all state, preparing the accumulator for the next
// turn.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.b.Reset()
	a.finalized = false
}
