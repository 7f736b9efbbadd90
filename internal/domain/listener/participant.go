// Package listener provides the Participant domain entity.
package listener

import "time"

// State represents a participant's presence state.
type State int

const (
	StateAbsent    State = iota // Not in the managed session
	StatePresent                // Present but muted or deafened
	StateListening              // Present and able to receive output
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}

// Participant represents a member of a managed session.
// It is computed from environment events and never persisted.
type Participant struct {
	ID            string    // Platform user ID
	DisplayName   string    // Display name
	Present       bool      // Connected to the session
	SelfMuted     bool      // Muted their own microphone
	SelfDeafened  bool      // Deafened themselves
	ForceDeafened bool      // Deafened by the scheduler (skip-vote lock)
	JoinedAt      time.Time // Join time
}

// NewParticipant creates a present, listening participant.
func NewParticipant(id, displayName string) *Participant {
	return &Participant{
		ID:          id,
		DisplayName: displayName,
		Present:     true,
		JoinedAt:    time.Now(),
	}
}

// State derives the presence state from the voice flags.
func (p *Participant) State() State {
	if !p.Present {
		return StateAbsent
	}
	if p.SelfMuted || p.SelfDeafened || p.ForceDeafened {
		return StatePresent
	}
	return StateListening
}

// IsListening reports whether the participant currently receives output.
func (p *Participant) IsListening() bool {
	return p.State() == StateListening
}
