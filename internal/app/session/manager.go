// Package session runs one independent scheduler per managed session.
package session

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/app/filter"
	"github.com/osa030/19radio/internal/app/notification"
	"github.com/osa030/19radio/internal/app/playback"
	"github.com/osa030/19radio/internal/app/presence"
	"github.com/osa030/19radio/internal/app/radio"
	"github.com/osa030/19radio/internal/app/timer"
	"github.com/osa030/19radio/internal/infra/config"
)

// Environment is the platform adapter of one managed session.
type Environment interface {
	radio.Environment
	notification.Sender
	// Apply records a presence event before the scheduler sees it.
	Apply(ev presence.Event)
	Close()
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Catalog        radio.Catalog
	Preferences    radio.PreferenceStore
	Notifier       *notification.Manager
	NewEnvironment func(session string) Environment
	After          timer.AfterFunc
}

// Manager runs the scheduler of one managed session and forwards its
// playback events to the notification hub.
type Manager struct {
	id    string
	title string

	scheduler *radio.Scheduler
	env       Environment
	notifier  *notification.Manager
	announcer *notification.Announcer

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// NewManager creates the manager of session sc.
func NewManager(cfg *config.Config, sc config.SessionConfig, chain *filter.Chain, deps Deps) (*Manager, error) {
	if deps.NewEnvironment == nil {
		return nil, errors.New("environment factory is required")
	}
	env := deps.NewEnvironment(sc.ID)

	scheduler, err := radio.New(radio.Options{
		Session:     sc.ID,
		Catalog:     deps.Catalog,
		Environment: env,
		Preferences: deps.Preferences,
		Filters:     chain,
		Settings:    RadioSettings(cfg),
		After:       deps.After,
	})
	if err != nil {
		env.Close()
		return nil, errors.Wrapf(err, "session %s", sc.ID)
	}

	return &Manager{
		id:        sc.ID,
		title:     sc.Title,
		scheduler: scheduler,
		env:       env,
		notifier:  deps.Notifier,
		announcer: notification.NewAnnouncer(env, sc.ID, cfg.Playback.AnnounceCooldown(), nil),
		done:      make(chan struct{}),
	}, nil
}

// ID returns the session id.
func (m *Manager) ID() string {
	return m.id
}

// Title returns the configured title.
func (m *Manager) Title() string {
	return m.title
}

// Scheduler returns the session's scheduler.
func (m *Manager) Scheduler() *radio.Scheduler {
	return m.scheduler
}

// Start starts the event loop and the scheduler.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	go m.playbackLoop()
	if err := m.scheduler.Start(ctx); err != nil {
		m.scheduler.Close()
		return err
	}
	m.started = true
	return nil
}

// Stop stops playback, cancels every timer and waits for the event loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scheduler.Close()
	m.env.Close()
	if m.started {
		<-m.done
		m.started = false
	}
	zlog.Info().Msgf("session: stopped: session=%s", m.id)
}

// HandlePresence feeds a presence event to the environment and the scheduler.
func (m *Manager) HandlePresence(ctx context.Context, ev presence.Event) error {
	m.env.Apply(ev)
	return m.scheduler.HandlePresence(ctx, ev)
}

func (m *Manager) playbackLoop() {
	defer close(m.done)
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: playback loop panicked: session=%s err=%v", m.id, r)
		}
	}()

	for event := range m.scheduler.Events() {
		m.handlePlaybackEvent(event)
	}
}

func (m *Manager) handlePlaybackEvent(event playback.Event) {
	zlog.Debug().Msgf("session: playback event: session=%s type=%s state=%s", m.id, event.Type, event.State)

	n := &notification.Notification{
		Session: m.id,
		State:   event.State.String(),
		Item:    event.Item,
	}
	switch event.Type {
	case playback.EventTrackStarted:
		n.Type = notification.TypeNowPlaying
		n.Offset = event.Offset
		if event.Item != nil {
			m.announcer.NowPlaying(context.Background(), event.Item)
		}
	case playback.EventTrackEnded:
		n.Type = notification.TypeTrackEnded
	case playback.EventStateChanged:
		n.Type = notification.TypeStateChanged
	case playback.EventQueueEmpty:
		n.Type = notification.TypeQueueEmpty
	default:
		return
	}

	if m.notifier != nil {
		m.notifier.Broadcast(n)
	}
}
