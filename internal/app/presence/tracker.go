// Package presence tracks who is listening to a managed session, the
// auto-withdrawal timers of absent requesters and skip-vote bookkeeping.
package presence

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/app/timer"
	"github.com/osa030/19radio/internal/domain/listener"
)

// Errors
var (
	ErrNoSession    = errors.New("nothing is playing")
	ErrNotListening = errors.New("participant is not listening")
	ErrAlreadyVoted = errors.New("participant already voted")
)

// Queue is the part of the request queue the tracker withdraws from.
type Queue interface {
	CountFor(requesterID string) int
	Withdraw(requesterID string) int
}

// Deafener forces participants in and out of a deafened state.
type Deafener interface {
	Deafen(ctx context.Context, userID string) error
	Undeafen(ctx context.Context, userID string) error
}

// Config holds tracker configuration.
type Config struct {
	WithdrawAfter time.Duration   // Delay before a non-listening requester's entries are withdrawn
	Serialize     func(func())    // Runs timer callbacks under the owner's lock
	After         timer.AfterFunc // Timer implementation (timer.WallClock if nil)
	OnWithdrawn   func(userID string, removed int)
}

// Change describes the effect of one presence event.
type Change struct {
	UserID      string
	Before      listener.State
	After       listener.State
	WasEmpty    bool // Listening set was empty before the event
	IsEmpty     bool // Listening set is empty after the event
	OutputMute  bool // Event changed the output mute flag
	OutputMuted bool
}

// VoteResult is the outcome of an accepted skip vote.
type VoteResult struct {
	Votes    int
	Eligible int
	Passed   bool
}

// Tracker keeps the participants of one managed session.
// It is not safe for concurrent use; the owner serialises every call.
type Tracker struct {
	config   Config
	queue    Queue
	deafener Deafener

	participants map[string]*listener.Participant
	outputMuted  bool

	pending map[string]*timer.Slot // Withdrawal timers by requester

	sessionActive bool
	votes         map[string]struct{}
	locks         map[string]struct{} // Voters forced deafened until the session ends
}

// New creates a presence tracker.
func New(config Config, queue Queue, deafener Deafener) *Tracker {
	if config.Serialize == nil {
		config.Serialize = func(fn func()) { fn() }
	}
	return &Tracker{
		config:       config,
		queue:        queue,
		deafener:     deafener,
		participants: make(map[string]*listener.Participant),
		pending:      make(map[string]*timer.Slot),
		votes:        make(map[string]struct{}),
		locks:        make(map[string]struct{}),
	}
}

// Sync replaces the participant set with an environment snapshot.
func (t *Tracker) Sync(participants []*listener.Participant) {
	t.participants = make(map[string]*listener.Participant, len(participants))
	for _, p := range participants {
		cp := *p
		t.participants[p.ID] = &cp
	}
}

// Apply updates the tracker from an environment event.
func (t *Tracker) Apply(ctx context.Context, ev Event) (Change, error) {
	change := Change{UserID: ev.UserID, WasEmpty: t.listeningCount() == 0}

	if ev.Kind == EventOutputMute {
		change.OutputMute = t.outputMuted != ev.SelfMuted
		t.outputMuted = ev.SelfMuted
		change.OutputMuted = t.outputMuted
		change.IsEmpty = change.WasEmpty
		return change, nil
	}

	p, ok := t.participants[ev.UserID]
	if ok {
		change.Before = p.State()
	}

	switch ev.Kind {
	case EventJoin:
		if !ok {
			p = listener.NewParticipant(ev.UserID, ev.DisplayName)
			t.participants[ev.UserID] = p
		}
		p.Present = true
		p.SelfMuted = ev.SelfMuted
		p.SelfDeafened = ev.SelfDeafened
		if ev.DisplayName != "" {
			p.DisplayName = ev.DisplayName
		}
	case EventVoiceState:
		if !ok {
			p = listener.NewParticipant(ev.UserID, ev.DisplayName)
			t.participants[ev.UserID] = p
		}
		p.SelfMuted = ev.SelfMuted
		p.SelfDeafened = ev.SelfDeafened
	case EventLeave, EventOffline:
		if !ok {
			return change, nil
		}
		p.Present = false
	case EventRemove:
		if !ok {
			return change, nil
		}
		p.Present = false
		delete(t.participants, ev.UserID)
	default:
		return change, errors.Wrapf(ErrUnknownEvent, "kind=%d", ev.Kind)
	}

	change.After = p.State()
	if change.After == listener.StateAbsent {
		t.dropLock(ctx, p)
	}
	t.updateWithdrawal(ev.UserID, change.Before, change.After)

	change.IsEmpty = t.listeningCount() == 0
	zlog.Debug().Msgf("presence: event=%s user=%s state=%s->%s listening=%d",
		ev.Kind, ev.UserID, change.Before, change.After, t.listeningCount())
	return change, nil
}

// Listening returns the IDs of the listening participants, sorted.
func (t *Tracker) Listening() []string {
	ids := make([]string, 0, len(t.participants))
	for id, p := range t.participants {
		if p.IsListening() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsListening reports whether userID currently receives output.
func (t *Tracker) IsListening(userID string) bool {
	p, ok := t.participants[userID]
	return ok && p.IsListening()
}

// Participant returns a copy of the participant.
func (t *Tracker) Participant(userID string) (listener.Participant, bool) {
	p, ok := t.participants[userID]
	if !ok {
		return listener.Participant{}, false
	}
	return *p, true
}

// OutputMuted reports whether the scheduler's own output endpoint is muted.
func (t *Tracker) OutputMuted() bool {
	return t.outputMuted
}

// WithdrawalPending reports whether a withdrawal timer is running for userID.
func (t *Tracker) WithdrawalPending(userID string) bool {
	_, ok := t.pending[userID]
	return ok
}

// BeginSession opens an empty vote set for a new playback session.
func (t *Tracker) BeginSession() {
	t.sessionActive = true
	t.votes = make(map[string]struct{})
}

// EndSession clears the vote set and reverts every vote lock. It reports
// whether releasing the locks turned an empty listening set non-empty.
func (t *Tracker) EndSession(ctx context.Context) bool {
	wasEmpty := t.listeningCount() == 0
	t.sessionActive = false
	t.votes = make(map[string]struct{})

	ids := make([]string, 0, len(t.locks))
	for id := range t.locks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		delete(t.locks, id)
		p, ok := t.participants[id]
		if !ok {
			continue
		}
		p.ForceDeafened = false
		t.undeafen(ctx, id)
		// Locked voters never start a withdrawal timer, so re-check now.
		t.updateWithdrawal(id, listener.StateListening, p.State())
	}
	return wasEmpty && t.listeningCount() > 0
}

// Vote records a skip vote from userID and locks them out of listening for
// the rest of the session. The vote passes once the votes cast reach the
// number of eligible voters minus one.
func (t *Tracker) Vote(ctx context.Context, userID string) (VoteResult, error) {
	if !t.sessionActive {
		return VoteResult{}, ErrNoSession
	}
	if _, ok := t.votes[userID]; ok {
		return VoteResult{}, ErrAlreadyVoted
	}
	p, ok := t.participants[userID]
	if !ok || !p.IsListening() {
		return VoteResult{}, ErrNotListening
	}

	t.votes[userID] = struct{}{}
	t.locks[userID] = struct{}{}
	p.ForceDeafened = true
	if err := t.deafen(ctx, userID); err != nil {
		zlog.Warn().Err(err).Msgf("presence: failed to deafen voter: user=%s", userID)
	}

	eligible := make(map[string]struct{}, len(t.participants))
	for _, id := range t.Listening() {
		eligible[id] = struct{}{}
	}
	for id := range t.locks {
		eligible[id] = struct{}{}
	}

	result := VoteResult{Votes: len(t.votes), Eligible: len(eligible)}
	result.Passed = result.Votes >= result.Eligible-1
	zlog.Info().Msgf("presence: skip vote: user=%s votes=%d eligible=%d passed=%t",
		userID, result.Votes, result.Eligible, result.Passed)
	return result, nil
}

// VoteCount returns the number of votes cast in the current session.
func (t *Tracker) VoteCount() int {
	return len(t.votes)
}

// IsLocked reports whether userID is held deafened by a skip vote.
func (t *Tracker) IsLocked(userID string) bool {
	_, ok := t.locks[userID]
	return ok
}

// Close cancels every withdrawal timer.
func (t *Tracker) Close() {
	for id, slot := range t.pending {
		slot.Cancel()
		delete(t.pending, id)
	}
}

func (t *Tracker) listeningCount() int {
	n := 0
	for _, p := range t.participants {
		if p.IsListening() {
			n++
		}
	}
	return n
}

// dropLock releases a departed voter. Their vote is withdrawn with them so
// the tally only counts voters that are still eligible.
func (t *Tracker) dropLock(ctx context.Context, p *listener.Participant) {
	if _, ok := t.locks[p.ID]; !ok {
		return
	}
	delete(t.locks, p.ID)
	delete(t.votes, p.ID)
	p.ForceDeafened = false
	t.undeafen(ctx, p.ID)
}

func (t *Tracker) updateWithdrawal(userID string, before, after listener.State) {
	if after == listener.StateListening {
		t.cancelWithdrawal(userID)
		return
	}
	if before != listener.StateListening || t.IsLocked(userID) {
		return
	}
	if _, ok := t.pending[userID]; ok {
		return
	}
	if t.queue == nil || t.queue.CountFor(userID) == 0 || t.config.WithdrawAfter <= 0 {
		return
	}

	slot := timer.NewSlot(t.config.After)
	t.pending[userID] = slot
	zlog.Debug().Msgf("presence: withdrawal scheduled: user=%s after=%v", userID, t.config.WithdrawAfter)

	slot.Set(t.config.WithdrawAfter, func(current func() bool) {
		t.config.Serialize(func() {
			if !current() {
				return
			}
			delete(t.pending, userID)
			removed := t.queue.Withdraw(userID)
			zlog.Info().Msgf("presence: withdrew requests of absent participant: user=%s removed=%d", userID, removed)
			if t.config.OnWithdrawn != nil {
				t.config.OnWithdrawn(userID, removed)
			}
		})
	})
}

func (t *Tracker) cancelWithdrawal(userID string) {
	slot, ok := t.pending[userID]
	if !ok {
		return
	}
	slot.Cancel()
	delete(t.pending, userID)
	zlog.Debug().Msgf("presence: withdrawal cancelled: user=%s", userID)
}

func (t *Tracker) deafen(ctx context.Context, userID string) error {
	if t.deafener == nil {
		return nil
	}
	return t.deafener.Deafen(ctx, userID)
}

func (t *Tracker) undeafen(ctx context.Context, userID string) {
	if t.deafener == nil {
		return
	}
	if err := t.deafener.Undeafen(ctx, userID); err != nil {
		zlog.Warn().Err(err).Msgf("presence: failed to undeafen participant: user=%s", userID)
	}
}
