package radio

import (
	"context"

	"github.com/osa030/19radio/internal/app/playback"
	"github.com/osa030/19radio/internal/app/presence"
	"github.com/osa030/19radio/internal/app/priority"
	"github.com/osa030/19radio/internal/domain/content"
	"github.com/osa030/19radio/internal/domain/listener"
	"github.com/osa030/19radio/internal/domain/preference"
)

// Catalog is the content store the scheduler selects from.
type Catalog interface {
	IDs(ctx context.Context) ([]string, error)
	// Get returns content.ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (*content.Item, error)
	SetMetadata(ctx context.Context, id, key, value string) error
	// Resolve maps a typed id fragment to an id. It returns
	// content.ErrNotFound or content.ErrAmbiguous when it cannot.
	Resolve(ctx context.Context, fragment string) (string, error)
}

// Environment is the chat platform side of a managed session.
type Environment interface {
	playback.Output
	presence.Deafener
	Participants(ctx context.Context) ([]*listener.Participant, error)
	SetVolume(ctx context.Context, percent int) error
}

// PreferenceStore holds keyword preferences and ratings of participants.
type PreferenceStore interface {
	priority.PreferenceSource
	priority.RankSource
	Preferences(userID string) *preference.Preferences
	SetPreference(ctx context.Context, userID, keyword string, level preference.Level, max int) (string, error)
	ClearPreference(ctx context.Context, userID, keyword string) (bool, error)
	Rate(ctx context.Context, itemID, userID string, rating int) error
}
