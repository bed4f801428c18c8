// Package streamphase provides the send-side lifecycle of a streaming
// analysis session.
package streamphase

import (
	"errors"
	"fmt"
	"sync"
)

// Phase represents the send-side phase of a stream.
type Phase int

const (
	// PhaseHandshake - nothing sent yet, the config frame must go first.
	PhaseHandshake Phase = iota
	// PhaseData - handshake sent, audio frames may follow.
	PhaseData
	// PhaseClosed - send side half-closed after the input was exhausted.
	PhaseClosed
	// PhaseAborted - send side stopped on an error. Terminal.
	PhaseAborted
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseHandshake:
		return "HANDSHAKE"
	case PhaseData:
		return "DATA"
	case PhaseClosed:
		return "CLOSED"
	case PhaseAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// IsTerminal returns true if the phase is terminal (CLOSED or ABORTED).
func (p Phase) IsTerminal() bool {
	return p == PhaseClosed || p == PhaseAborted
}

// Errors for invalid phase transitions.
var (
	ErrAudioBeforeHandshake = errors.New("audio frame sent before handshake")
	ErrHandshakeAlreadySent = errors.New("handshake already sent for this stream")
	ErrStreamClosed         = errors.New("stream send side is closed")
)

// Lifecycle manages the phase machine for a single stream.
// Thread-safe for concurrent access.
//
// Phase transitions:
//
//	HANDSHAKE → DATA → CLOSED
//	    │         │
//	    │         └── SendAudio() ──→ multiple times
//	    │
//	    └── SendHandshake() ──→ only once
//
// Abort() moves any non-terminal phase to ABORTED.
type Lifecycle struct {
	mu       sync.RWMutex
	streamId string
	phase    Phase
	frames   int
}

// NewLifecycle creates a new stream lifecycle in HANDSHAKE phase.
func NewLifecycle(streamId string) *Lifecycle {
	return &Lifecycle{
		streamId: streamId,
		phase:    PhaseHandshake,
	}
}

// StreamId returns the stream ID.
func (l *Lifecycle) StreamId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.streamId
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// Frames returns how many frames (handshake included) were admitted.
func (l *Lifecycle) Frames() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frames
}

// SendHandshake validates and records the handshake frame, moving to DATA.
func (l *Lifecycle) SendHandshake() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.phase {
	case PhaseHandshake:
		l.phase = PhaseData
		l.frames++
		return nil
	case PhaseData:
		return ErrHandshakeAlreadySent
	case PhaseClosed, PhaseAborted:
		return ErrStreamClosed
	default:
		return fmt.Errorf("unexpected phase: %v", l.phase)
	}
}

// SendAudio validates and records an audio frame.
func (l *Lifecycle) SendAudio() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.phase {
	case PhaseData:
		l.frames++
		return nil
	case PhaseHandshake:
		return ErrAudioBeforeHandshake
	case PhaseClosed, PhaseAborted:
		return ErrStreamClosed
	default:
		return fmt.Errorf("unexpected phase: %v", l.phase)
	}
}

// Close moves a live stream to CLOSED. No-op once terminal.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase.IsTerminal() {
		return
	}
	l.phase = PhaseClosed
}

// Abort moves the stream to ABORTED.
// Returns true if the stream was aborted, false if already terminal.
func (l *Lifecycle) Abort() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase.IsTerminal() {
		return false
	}
	l.phase = PhaseAborted
	return true
}

// IsClosed returns true if the send side is in a terminal phase.
func (l *Lifecycle) IsClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase.IsTerminal()
}

// IsAborted returns true if the send side stopped on an error.
func (l *Lifecycle) IsAborted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase == PhaseAborted
}
