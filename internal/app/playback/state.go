// Package playback provides the playback state machine of a managed session.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing selected
	StateLeadIn               // Item selected, waiting for the lead-in to elapse
	StatePlaying              // Output running
	StatePaused               // Output stopped, offset captured
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLeadIn:
		return "lead_in"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}
