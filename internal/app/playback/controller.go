package playback

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/app/timer"
	"github.com/osa030/19radio/internal/domain/content"
)

const minDelay = time.Millisecond

// Output is the environment's audio endpoint.
type Output interface {
	// Play starts item at offset. onEnd is invoked from another goroutine
	// when the item reaches its natural end, never from within Play or Stop.
	Play(ctx context.Context, item *content.Item, offset time.Duration, gainDB float64, onEnd func()) error
	Stop(ctx context.Context) error
}

// Hooks are invoked synchronously by the controller.
type Hooks struct {
	Next     func() *content.Item     // Selects the next item, nil if none
	Began    func(item *content.Item) // A new session was created
	Finished func(item *content.Item) // An item played to its natural end
	Ended    func()                   // The session was discarded
}

// Config holds controller configuration.
type Config struct {
	LeadIn         time.Duration   // Delay between selecting an item and starting output
	PauseExpiry    time.Duration   // How long a paused session is kept
	Normalize      bool            // Apply loudness normalisation gain
	TargetLoudness float64         // Target loudness in dB
	Serialize      func(func())    // Runs timer and output callbacks under the owner's lock
	After          timer.AfterFunc // Timer implementation (timer.WallClock if nil)
	Now            func() time.Time
}

// Session is the item currently selected for playback.
type Session struct {
	Item         *content.Item
	StartedAt    time.Time      // When output began at SeekOffset, zero before
	SeekOffset   time.Duration  // Offset output starts (or started) from
	PausedOffset *time.Duration // Captured offset while paused
}

// Controller is the playback state machine of one managed session.
// It is not safe for concurrent use; the owner serialises every call, and
// Config.Serialize must take the same lock.
type Controller struct {
	config Config
	output Output
	hooks  Hooks

	state   State
	session *Session

	leadIn *timer.Slot
	expiry *timer.Slot
	endGen uint64 // Token of the running output; bumped whenever output stops

	eventCh chan Event
	closed  bool
}

// NewController creates a new playback controller.
func NewController(config Config, output Output, hooks Hooks) *Controller {
	if config.Serialize == nil {
		config.Serialize = func(fn func()) { fn() }
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Controller{
		config:  config,
		output:  output,
		hooks:   hooks,
		state:   StateIdle,
		leadIn:  timer.NewSlot(config.After),
		expiry:  timer.NewSlot(config.After),
		eventCh: make(chan Event, 32),
	}
}

// Events returns the event channel.
func (c *Controller) Events() <-chan Event {
	return c.eventCh
}

// State returns the current playback state.
func (c *Controller) State() State {
	return c.state
}

// Session returns a copy of the current session.
func (c *Controller) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Position returns the playback offset within the current item.
func (c *Controller) Position() time.Duration {
	if c.session == nil {
		return 0
	}
	switch c.state {
	case StatePlaying:
		pos := c.session.SeekOffset + timer.ToWallTime(c.config.Now()).Sub(timer.ToWallTime(c.session.StartedAt))
		if length := c.session.Item.Length; length > 0 && pos > length {
			return length
		}
		return pos
	case StatePaused:
		return *c.session.PausedOffset
	default:
		return c.session.SeekOffset
	}
}

// Start selects item (or runs the selection hook when item is nil) and
// enters the lead-in. It only acts from StateIdle and reports whether a
// session was created.
func (c *Controller) Start(item *content.Item, offset time.Duration) bool {
	if c.state != StateIdle {
		return false
	}
	if item == nil && c.hooks.Next != nil {
		item = c.hooks.Next()
	}
	if item == nil {
		zlog.Debug().Msg("playback: nothing to play")
		c.sendEvent(Event{Type: EventQueueEmpty, State: c.state})
		return false
	}

	c.session = &Session{Item: item, SeekOffset: offset}
	if c.hooks.Began != nil {
		c.hooks.Began(item)
	}
	c.enterLeadIn()
	return true
}

// Pause captures the current offset and stops output. It acts from
// StatePlaying, and from StateLeadIn where the captured offset is the
// pending seek offset.
func (c *Controller) Pause() bool {
	var offset time.Duration
	switch c.state {
	case StatePlaying:
		offset = c.Position()
		c.stopOutput()
	case StateLeadIn:
		c.leadIn.Cancel()
		offset = c.session.SeekOffset
	default:
		return false
	}

	c.session.PausedOffset = &offset
	c.state = StatePaused
	zlog.Info().Msgf("playback: paused: item=%s offset=%v", c.session.Item.ShortID(), offset)

	c.expiry.Set(max(c.config.PauseExpiry, minDelay), func(current func() bool) {
		c.config.Serialize(func() {
			if !current() || c.state != StatePaused {
				return
			}
			zlog.Info().Msgf("playback: pause expired: item=%s", c.session.Item.ShortID())
			c.teardown()
			c.sendEvent(Event{Type: EventStateChanged, State: c.state})
		})
	})

	c.sendEvent(Event{Type: EventStateChanged, Item: c.session.Item, State: c.state})
	return true
}

// Resume restarts a paused session from its captured offset without
// selecting a new item. It only acts from StatePaused.
func (c *Controller) Resume() bool {
	if c.state != StatePaused {
		return false
	}
	c.expiry.Cancel()

	offset := *c.session.PausedOffset
	c.session.PausedOffset = nil
	c.session.SeekOffset = offset
	c.session.StartedAt = time.Time{}
	zlog.Info().Msgf("playback: resuming: item=%s offset=%v", c.session.Item.ShortID(), offset)

	c.enterLeadIn()
	return true
}

// Stop cancels every pending timer, stops output and discards the session.
// It is a no-op when idle and reports whether anything was stopped.
func (c *Controller) Stop() bool {
	if c.state == StateIdle {
		return false
	}
	c.leadIn.Cancel()
	c.expiry.Cancel()
	if c.state == StatePlaying {
		c.stopOutput()
	}
	c.teardown()
	c.sendEvent(Event{Type: EventStateChanged, State: c.state})
	return true
}

// Close stops playback and closes the event channel.
func (c *Controller) Close() {
	c.Stop()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
}

func (c *Controller) enterLeadIn() {
	c.state = StateLeadIn
	c.sendEvent(Event{Type: EventStateChanged, Item: c.session.Item, State: c.state})

	c.leadIn.Set(max(c.config.LeadIn, minDelay), func(current func() bool) {
		c.config.Serialize(func() {
			if !current() || c.state != StateLeadIn {
				return
			}
			c.beginOutput()
		})
	})
}

func (c *Controller) beginOutput() {
	s := c.session
	c.state = StatePlaying
	s.StartedAt = c.config.Now()

	c.endGen++
	gen := c.endGen

	zlog.Info().Msgf("playback: playing: item=%s name=%q offset=%v", s.Item.ShortID(), s.Item.Name, s.SeekOffset)
	c.sendEvent(Event{Type: EventTrackStarted, Item: s.Item, State: c.state, Offset: s.SeekOffset})

	if c.output == nil {
		return
	}
	err := c.output.Play(context.Background(), s.Item, s.SeekOffset, c.gain(s.Item), func() {
		c.config.Serialize(func() { c.naturalEnd(gen) })
	})
	if err != nil {
		zlog.Error().Err(err).Msgf("playback: output failed to start: item=%s", s.Item.ShortID())
	}
}

func (c *Controller) naturalEnd(gen uint64) {
	if gen != c.endGen || c.state != StatePlaying {
		return
	}
	item := c.session.Item
	zlog.Debug().Msgf("playback: item ended: item=%s", item.ShortID())

	c.sendEvent(Event{Type: EventTrackEnded, Item: item, State: c.state})
	if c.hooks.Finished != nil {
		c.hooks.Finished(item)
	}
	c.teardown()
	if !c.Start(nil, 0) {
		c.sendEvent(Event{Type: EventStateChanged, State: c.state})
	}
}

func (c *Controller) stopOutput() {
	c.endGen++
	if c.output == nil {
		return
	}
	if err := c.output.Stop(context.Background()); err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to stop output")
	}
}

func (c *Controller) teardown() {
	c.state = StateIdle
	c.session = nil
	if c.hooks.Ended != nil {
		c.hooks.Ended()
	}
}

func (c *Controller) gain(item *content.Item) float64 {
	if !c.config.Normalize || item.SourceLoudness == nil {
		return 0
	}
	return c.config.TargetLoudness - *item.SourceLoudness
}

// sendEvent sends an event without blocking.
func (c *Controller) sendEvent(e Event) {
	if c.closed {
		return
	}
	select {
	case c.eventCh <- e:
	default:
		zlog.Warn().Msgf("playback: event dropped: type=%s", e.Type)
	}
}
