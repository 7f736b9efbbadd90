package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/domain/content"
)

// Sender delivers a textual announcement to a managed session.
type Sender interface {
	Announce(ctx context.Context, session, text string) error
}

// Announcer posts "now playing" announcements, at most one per cooldown.
type Announcer struct {
	mu       sync.Mutex
	sender   Sender
	session  string
	cooldown time.Duration
	now      func() time.Time
	last     time.Time
}

// NewAnnouncer creates an announcer for session.
func NewAnnouncer(sender Sender, session string, cooldown time.Duration, now func() time.Time) *Announcer {
	if now == nil {
		now = time.Now
	}
	return &Announcer{
		sender:   sender,
		session:  session,
		cooldown: cooldown,
		now:      now,
	}
}

// NowPlaying announces item unless the previous announcement is younger
// than the cooldown. It reports whether an announcement was sent.
// Send failures are logged.
func (a *Announcer) NowPlaying(ctx context.Context, item *content.Item) bool {
	a.mu.Lock()
	now := a.now()
	if !a.last.IsZero() && now.Sub(a.last) < a.cooldown {
		a.mu.Unlock()
		zlog.Debug().Msgf("notification: announcement suppressed: session=%s item=%s", a.session, item.ShortID())
		return false
	}
	a.last = now
	a.mu.Unlock()

	if a.sender == nil {
		return false
	}
	if err := a.sender.Announce(ctx, a.session, FormatNowPlaying(item)); err != nil {
		zlog.Warn().Err(err).Msgf("notification: announcement failed: session=%s", a.session)
		return false
	}
	return true
}

// FormatNowPlaying renders the announcement text of item.
func FormatNowPlaying(item *content.Item) string {
	length := item.Length.Round(time.Second)
	if item.Author == "" {
		return fmt.Sprintf("Now playing: %s [%s] (%s)", item.Name, length, item.ShortID())
	}
	return fmt.Sprintf("Now playing: %s - %s [%s] (%s)", item.Author, item.Name, length, item.ShortID())
}
