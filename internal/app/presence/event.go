package presence

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnknownEvent is returned for an event kind the tracker does not handle.
var ErrUnknownEvent = errors.New("unknown presence event")

// EventKind represents a presence event type.
type EventKind int

const (
	EventJoin       EventKind = iota // Participant joined the session
	EventLeave                       // Participant left the session
	EventVoiceState                  // Self-mute or self-deafen changed
	EventRemove                      // Participant removed from the session
	EventOffline                     // Participant went offline
	EventOutputMute                  // The scheduler's own output endpoint was muted or unmuted
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventVoiceState:
		return "voice_state"
	case EventRemove:
		return "remove"
	case EventOffline:
		return "offline"
	case EventOutputMute:
		return "output_mute"
	default:
		return "unknown"
	}
}

// ParseEventKind parses the string form of an event kind.
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "join":
		return EventJoin, nil
	case "leave":
		return EventLeave, nil
	case "voice_state":
		return EventVoiceState, nil
	case "remove":
		return EventRemove, nil
	case "offline":
		return EventOffline, nil
	case "output_mute":
		return EventOutputMute, nil
	default:
		return 0, errors.Wrapf(ErrUnknownEvent, "kind=%q", s)
	}
}

// Event is a presence change delivered by the environment.
type Event struct {
	Kind         EventKind
	UserID       string
	DisplayName  string
	SelfMuted    bool // EventVoiceState, EventOutputMute
	SelfDeafened bool // EventVoiceState
}
