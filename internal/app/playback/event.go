package playback

import (
	"time"

	"github.com/osa030/19radio/internal/domain/content"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackStarted EventType = iota // Lead-in elapsed, output started
	EventTrackEnded                    // Item reached its natural end
	EventStateChanged                  // Playback state changed
	EventQueueEmpty                    // Nothing could be selected
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackStarted:
		return "track_started"
	case EventTrackEnded:
		return "track_ended"
	case EventStateChanged:
		return "state_changed"
	case EventQueueEmpty:
		return "queue_empty"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type   EventType
	Item   *content.Item // Current item (nil for some events)
	State  State         // State after the event
	Offset time.Duration // Seek offset for EventTrackStarted
}
