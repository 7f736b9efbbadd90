// Package radio provides the priority-based playback scheduler of one
// managed session.
package radio

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/app/filter"
	"github.com/osa030/19radio/internal/app/history"
	"github.com/osa030/19radio/internal/app/playback"
	"github.com/osa030/19radio/internal/app/presence"
	"github.com/osa030/19radio/internal/app/priority"
	"github.com/osa030/19radio/internal/app/queue"
	"github.com/osa030/19radio/internal/app/timer"
	"github.com/osa030/19radio/internal/domain/content"
)

// Settings holds scheduler configuration.
type Settings struct {
	QueueSize      int
	HistoryLength  int
	Tolerance      float64 // Score margin treated as equally eligible
	Priority       priority.Settings
	LeadIn         time.Duration
	PauseExpiry    time.Duration
	WithdrawAfter  time.Duration
	Normalize      bool
	TargetLoudness float64
	MaxPreferences int
	MaxVolume      int
	DefaultVolume  int
}

// Options holds the collaborators of a scheduler.
type Options struct {
	Session     string
	Catalog     Catalog
	Environment Environment
	Preferences PreferenceStore
	Filters     *filter.Chain
	Settings    Settings
	Now         func() time.Time
	Rand        *rand.Rand
	After       timer.AfterFunc
}

// Scheduler owns every piece of mutable state of one managed session.
// All handlers (commands, presence events, timers, output callbacks) run
// under one mutex, so no two of them ever interleave.
type Scheduler struct {
	mu sync.Mutex

	session  string
	settings Settings
	catalog  Catalog
	env      Environment
	prefs    PreferenceStore
	filters  *filter.Chain
	now      func() time.Time
	rng      *rand.Rand

	queue    *queue.Queue
	history  *history.Tracker
	engine   *priority.Engine
	presence *presence.Tracker
	player   *playback.Controller

	enabled  bool
	volume   int
	released bool // a session end just made vote-locked voters listen again
}

// New creates a scheduler for one managed session.
func New(opts Options) (*Scheduler, error) {
	if opts.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if opts.Environment == nil {
		return nil, errors.New("environment is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = priority.NewRand()
	}

	s := &Scheduler{
		session:  opts.Session,
		settings: opts.Settings,
		catalog:  opts.Catalog,
		env:      opts.Environment,
		prefs:    opts.Preferences,
		filters:  opts.Filters,
		now:      opts.Now,
		rng:      opts.Rand,
		volume:   opts.Settings.DefaultVolume,
	}

	s.queue = queue.New(opts.Settings.QueueSize)
	s.history = history.New(opts.Catalog, content.NewNamespace(opts.Session), opts.Settings.HistoryLength, opts.Now)

	sources := priority.Sources{
		Queue:   s.queue,
		History: s.history,
		Now:     opts.Now,
		Rand:    s.rng.Float64,
	}
	if opts.Preferences != nil {
		sources.Ranks = opts.Preferences
		sources.Preferences = opts.Preferences
	}
	engine, err := priority.NewEngine(opts.Settings.Priority, sources)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create priority engine")
	}
	s.engine = engine

	s.presence = presence.New(presence.Config{
		WithdrawAfter: opts.Settings.WithdrawAfter,
		Serialize:     s.serialize,
		After:         opts.After,
	}, s.queue, opts.Environment)

	s.player = playback.NewController(playback.Config{
		LeadIn:         opts.Settings.LeadIn,
		PauseExpiry:    opts.Settings.PauseExpiry,
		Normalize:      opts.Settings.Normalize,
		TargetLoudness: opts.Settings.TargetLoudness,
		Serialize:      s.serialize,
		After:          opts.After,
		Now:            opts.Now,
	}, opts.Environment, playback.Hooks{
		Next:     s.dequeue,
		Began:    func(*content.Item) { s.presence.BeginSession() },
		Finished: s.remember,
		Ended: func() {
			if s.presence.EndSession(context.Background()) {
				s.released = true
			}
		},
	})

	return s, nil
}

// Session returns the managed session id.
func (s *Scheduler) Session() string {
	return s.session
}

// Events returns the playback event channel.
func (s *Scheduler) Events() <-chan playback.Event {
	return s.player.Events()
}

// Start loads the participant snapshot, switches the radio on and starts
// playback if anyone is listening. It fails if the catalog is unreachable.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.catalog.IDs(ctx); err != nil {
		return errors.Wrap(err, "catalog unreachable")
	}
	participants, err := s.env.Participants(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load participants")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence.Sync(participants)
	s.enabled = true
	zlog.Info().Msgf("radio: started: session=%s listening=%d", s.session, len(s.presence.Listening()))
	s.resumeOrStart()
	return nil
}

// Close stops playback and cancels every timer.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.presence.Close()
	s.player.Close()
}

// HandlePresence applies an environment presence event and drives playback
// from the resulting change of the listening set.
func (s *Scheduler) HandlePresence(ctx context.Context, ev presence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	change, err := s.presence.Apply(ctx, ev)
	if err != nil {
		return err
	}
	if !s.enabled {
		return nil
	}

	switch {
	case change.OutputMute && change.OutputMuted:
		s.player.Pause()
	case change.OutputMute:
		s.resumeOrStart()
	case change.WasEmpty && !change.IsEmpty:
		s.resumeOrStart()
	case !change.WasEmpty && change.IsEmpty:
		s.player.Pause()
	}
	return nil
}

// serialize runs fn under the scheduler lock. Timer and output callbacks
// enter through here. A session that ended inside fn and thereby released
// vote-locked listeners is followed by a fresh start.
func (s *Scheduler) serialize(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released = false
	fn()
	if s.released && s.player.State() == playback.StateIdle {
		zlog.Debug().Msgf("radio: vote locks released into an idle session: session=%s", s.session)
		s.resumeOrStart()
	}
	s.released = false
}

// resumeOrStart resumes a paused session, or starts a new one when idle.
func (s *Scheduler) resumeOrStart() {
	s.released = false
	if !s.enabled || s.presence.OutputMuted() || len(s.presence.Listening()) == 0 {
		return
	}
	if s.player.Resume() {
		return
	}
	s.player.Start(nil, 0)
}

// skip ends the current session and starts the next one.
func (s *Scheduler) skip() {
	s.player.Stop()
	s.resumeOrStart()
}

func (s *Scheduler) remember(item *content.Item) {
	if err := s.history.Remember(context.Background(), item); err != nil {
		zlog.Warn().Err(err).Msgf("radio: failed to record history: session=%s item=%s", s.session, item.ShortID())
	}
}
