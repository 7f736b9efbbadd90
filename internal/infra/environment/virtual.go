// Package environment provides a virtual chat-platform adapter.
//
// The virtual environment has no audio: output is a wall-clock timer that
// fires the natural-end callback once the remaining length elapsed, and
// presence is fed in through Apply. It lets a server run end to end
// without a real platform.
package environment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/app/presence"
	"github.com/osa030/19radio/internal/app/timer"
	"github.com/osa030/19radio/internal/domain/content"
	"github.com/osa030/19radio/internal/domain/listener"
)

// ErrClosed is returned once the environment was closed.
var ErrClosed = errors.New("environment closed")

// Output describes what the virtual endpoint is playing.
type Output struct {
	Item      *content.Item
	Offset    time.Duration
	GainDB    float64
	StartedAt time.Time
}

// Virtual is the virtual environment of one managed session.
// It is safe for concurrent use.
type Virtual struct {
	session string
	after   timer.AfterFunc

	mu           sync.Mutex
	participants map[string]*listener.Participant
	deafened     map[string]bool
	volume       int
	output       *Output
	cancel       func()
	closed       bool
}

// NewVirtual creates a virtual environment. after defaults to timer.WallClock.
func NewVirtual(session string, after timer.AfterFunc) *Virtual {
	if after == nil {
		after = timer.WallClock
	}
	return &Virtual{
		session:      session,
		after:        after,
		participants: make(map[string]*listener.Participant),
		deafened:     make(map[string]bool),
		volume:       100,
	}
}

// Play starts item at offset. A running item is replaced without its
// callback firing.
func (v *Virtual) Play(ctx context.Context, item *content.Item, offset time.Duration, gainDB float64, onEnd func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.stopLocked()

	remaining := item.Length - offset
	if remaining < 0 {
		remaining = 0
	}
	v.output = &Output{Item: item, Offset: offset, GainDB: gainDB, StartedAt: time.Now()}

	// The token guards against a Stop racing with the timer goroutine.
	out := v.output
	v.cancel = v.after(remaining, func() {
		v.mu.Lock()
		if v.output != out {
			v.mu.Unlock()
			return
		}
		v.output = nil
		v.cancel = nil
		v.mu.Unlock()
		if onEnd != nil {
			onEnd()
		}
	})

	zlog.Info().Msgf("environment: play: session=%s item=%s offset=%v gain=%.1fdB",
		v.session, item.ShortID(), offset, gainDB)
	return nil
}

// Stop stops output. Stopping an idle endpoint is a no-op.
func (v *Virtual) Stop(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.output != nil {
		zlog.Info().Msgf("environment: stop: session=%s item=%s", v.session, v.output.Item.ShortID())
	}
	v.stopLocked()
	return nil
}

func (v *Virtual) stopLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.output = nil
}

// Playing returns a copy of the current output.
func (v *Virtual) Playing() (Output, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.output == nil {
		return Output{}, false
	}
	return *v.output, true
}

// Deafen forces a participant deafened.
func (v *Virtual) Deafen(ctx context.Context, userID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deafened[userID] = true
	zlog.Debug().Msgf("environment: deafen: session=%s user=%s", v.session, userID)
	return nil
}

// Undeafen lifts a forced deafen.
func (v *Virtual) Undeafen(ctx context.Context, userID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.deafened, userID)
	zlog.Debug().Msgf("environment: undeafen: session=%s user=%s", v.session, userID)
	return nil
}

// IsDeafened reports whether userID is force-deafened.
func (v *Virtual) IsDeafened(userID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deafened[userID]
}

// Participants returns the present participants sorted by id.
func (v *Virtual) Participants(ctx context.Context) ([]*listener.Participant, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]*listener.Participant, 0, len(v.participants))
	for _, p := range v.participants {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Apply records a presence event in the participant model. The caller
// forwards the same event to the scheduler.
func (v *Virtual) Apply(ev presence.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.participants[ev.UserID]
	switch ev.Kind {
	case presence.EventJoin, presence.EventVoiceState:
		if !ok {
			p = listener.NewParticipant(ev.UserID, ev.DisplayName)
			v.participants[ev.UserID] = p
		}
		p.Present = true
		p.SelfMuted = ev.SelfMuted
		p.SelfDeafened = ev.SelfDeafened
		if ev.DisplayName != "" {
			p.DisplayName = ev.DisplayName
		}
	case presence.EventLeave, presence.EventOffline, presence.EventRemove:
		delete(v.participants, ev.UserID)
		delete(v.deafened, ev.UserID)
	}
}

// SetVolume sets the output volume in percent.
func (v *Virtual) SetVolume(ctx context.Context, percent int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.volume = percent
	zlog.Info().Msgf("environment: volume: session=%s percent=%d", v.session, percent)
	return nil
}

// Volume returns the output volume in percent.
func (v *Virtual) Volume() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.volume
}

// Announce posts text to the session's text channel, here the log.
func (v *Virtual) Announce(ctx context.Context, session, text string) error {
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		return ErrClosed
	}
	zlog.Info().Msgf("environment: announce: session=%s text=%q", session, text)
	return nil
}

// Close stops output and rejects further playback.
func (v *Virtual) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopLocked()
	v.closed = true
}
