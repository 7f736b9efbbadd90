package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19radio/internal/domain/listener"
)

type fakeQueue struct {
	mu        sync.Mutex
	counts    map[string]int
	withdrawn []string
}

func (q *fakeQueue) CountFor(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[id]
}

func (q *fakeQueue) Withdraw(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.counts[id]
	delete(q.counts, id)
	q.withdrawn = append(q.withdrawn, id)
	return n
}

func (q *fakeQueue) Withdrawn() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.withdrawn...)
}

type fakeDeafener struct {
	deafened   []string
	undeafened []string
}

func (d *fakeDeafener) Deafen(ctx context.Context, id string) error {
	d.deafened = append(d.deafened, id)
	return nil
}

func (d *fakeDeafener) Undeafen(ctx context.Context, id string) error {
	d.undeafened = append(d.undeafened, id)
	return nil
}

func newTestTracker(withdrawAfter time.Duration, q *fakeQueue) (*Tracker, *fakeDeafener, *sync.Mutex) {
	mu := &sync.Mutex{}
	d := &fakeDeafener{}
	tr := New(Config{
		WithdrawAfter: withdrawAfter,
		Serialize: func(fn func()) {
			mu.Lock()
			defer mu.Unlock()
			fn()
		},
	}, q, d)
	return tr, d, mu
}

func join(t *testing.T, tr *Tracker, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := tr.Apply(context.Background(), Event{Kind: EventJoin, UserID: id, DisplayName: id})
		require.NoError(t, err)
	}
}

func TestTracker_StatesFromEvents(t *testing.T) {
	tr, _, _ := newTestTracker(0, &fakeQueue{})
	ctx := context.Background()

	tests := []struct {
		name      string
		event     Event
		wantState listener.State
		wantEmpty bool
	}{
		{name: "join", event: Event{Kind: EventJoin, UserID: "u1"}, wantState: listener.StateListening},
		{name: "self mute", event: Event{Kind: EventVoiceState, UserID: "u1", SelfMuted: true}, wantState: listener.StatePresent, wantEmpty: true},
		{name: "unmute", event: Event{Kind: EventVoiceState, UserID: "u1"}, wantState: listener.StateListening},
		{name: "self deafen", event: Event{Kind: EventVoiceState, UserID: "u1", SelfDeafened: true}, wantState: listener.StatePresent, wantEmpty: true},
		{name: "rejoin clears flags", event: Event{Kind: EventJoin, UserID: "u1"}, wantState: listener.StateListening},
		{name: "offline", event: Event{Kind: EventOffline, UserID: "u1"}, wantState: listener.StateAbsent, wantEmpty: true},
		{name: "join again", event: Event{Kind: EventJoin, UserID: "u1"}, wantState: listener.StateListening},
		{name: "leave", event: Event{Kind: EventLeave, UserID: "u1"}, wantState: listener.StateAbsent, wantEmpty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, err := tr.Apply(ctx, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, change.After)
			assert.Equal(t, tt.wantEmpty, change.IsEmpty)
		})
	}
}

func TestTracker_RemoveForgetsParticipant(t *testing.T) {
	tr, _, _ := newTestTracker(0, &fakeQueue{})
	join(t, tr, "u1", "u2")

	change, err := tr.Apply(context.Background(), Event{Kind: EventRemove, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, listener.StateAbsent, change.After)
	assert.False(t, change.IsEmpty)

	_, ok := tr.Participant("u1")
	assert.False(t, ok)
	assert.Equal(t, []string{"u2"}, tr.Listening())
}

func TestTracker_ListeningSetTransitions(t *testing.T) {
	tr, _, _ := newTestTracker(0, &fakeQueue{})
	ctx := context.Background()

	change, err := tr.Apply(ctx, Event{Kind: EventJoin, UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, change.WasEmpty)
	assert.False(t, change.IsEmpty)

	change, err = tr.Apply(ctx, Event{Kind: EventLeave, UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, change.WasEmpty)
	assert.True(t, change.IsEmpty)
}

func TestTracker_OutputMute(t *testing.T) {
	tr, _, _ := newTestTracker(0, &fakeQueue{})
	ctx := context.Background()

	change, err := tr.Apply(ctx, Event{Kind: EventOutputMute, SelfMuted: true})
	require.NoError(t, err)
	assert.True(t, change.OutputMute)
	assert.True(t, change.OutputMuted)
	assert.True(t, tr.OutputMuted())

	change, err = tr.Apply(ctx, Event{Kind: EventOutputMute, SelfMuted: true})
	require.NoError(t, err)
	assert.False(t, change.OutputMute, "repeated mute is not a change")
}

func TestTracker_UnknownEvent(t *testing.T) {
	tr, _, _ := newTestTracker(0, &fakeQueue{})
	join(t, tr, "u1")

	_, err := tr.Apply(context.Background(), Event{Kind: EventKind(99), UserID: "u1"})
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = ParseEventKind("dance")
	assert.ErrorIs(t, err, ErrUnknownEvent)
	kind, err := ParseEventKind("voice_state")
	require.NoError(t, err)
	assert.Equal(t, EventVoiceState, kind)
}

func TestTracker_WithdrawalFiresAfterTimeout(t *testing.T) {
	q := &fakeQueue{counts: map[string]int{"u1": 2}}
	tr, _, mu := newTestTracker(20*time.Millisecond, q)

	mu.Lock()
	join(t, tr, "u1")
	_, err := tr.Apply(context.Background(), Event{Kind: EventLeave, UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, tr.WithdrawalPending("u1"))
	mu.Unlock()

	assert.Eventually(t, func() bool {
		return len(q.Withdrawn()) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, tr.WithdrawalPending("u1"))
}

func TestTracker_WithdrawalCancelledOnReturn(t *testing.T) {
	q := &fakeQueue{counts: map[string]int{"u1": 1}}
	tr, _, mu := newTestTracker(30*time.Millisecond, q)
	ctx := context.Background()

	mu.Lock()
	join(t, tr, "u1")
	_, err := tr.Apply(ctx, Event{Kind: EventVoiceState, UserID: "u1", SelfDeafened: true})
	require.NoError(t, err)
	assert.True(t, tr.WithdrawalPending("u1"))

	_, err = tr.Apply(ctx, Event{Kind: EventVoiceState, UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, tr.WithdrawalPending("u1"))
	mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, q.Withdrawn())
}

func TestTracker_NoWithdrawalWithoutEntries(t *testing.T) {
	tr, _, _ := newTestTracker(10*time.Millisecond, &fakeQueue{})
	join(t, tr, "u1")

	_, err := tr.Apply(context.Background(), Event{Kind: EventLeave, UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, tr.WithdrawalPending("u1"))
}

func TestTracker_VoteErrors(t *testing.T) {
	tr, _, _ := newTestTracker(0, &fakeQueue{})
	ctx := context.Background()
	join(t, tr, "u1", "u2", "u3")

	_, err := tr.Vote(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoSession)

	tr.BeginSession()
	_, err = tr.Vote(ctx, "stranger")
	assert.ErrorIs(t, err, ErrNotListening)

	_, err = tr.Vote(ctx, "u1")
	require.NoError(t, err)
	_, err = tr.Vote(ctx, "u1")
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestTracker_SoleListenerVotePasses(t *testing.T) {
	tr, d, _ := newTestTracker(0, &fakeQueue{})
	join(t, tr, "u1")
	tr.BeginSession()

	result, err := tr.Vote(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Eligible: 1, Passed: true}, result)
	assert.Equal(t, []string{"u1"}, d.deafened)
}

func TestTracker_VoteLockUntilSessionEnd(t *testing.T) {
	tr, d, _ := newTestTracker(0, &fakeQueue{})
	ctx := context.Background()
	join(t, tr, "u1", "u2", "u3")
	tr.BeginSession()

	result, err := tr.Vote(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Eligible: 3, Passed: false}, result)
	assert.False(t, tr.IsListening("u1"))
	assert.True(t, tr.IsLocked("u1"))

	// Undeafening themselves does not retract the vote.
	_, err = tr.Apply(ctx, Event{Kind: EventVoiceState, UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, tr.IsListening("u1"))

	result, err = tr.Vote(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 2, Eligible: 3, Passed: true}, result)

	tr.EndSession(ctx)
	assert.True(t, tr.IsListening("u1"))
	assert.True(t, tr.IsListening("u2"))
	assert.Equal(t, 0, tr.VoteCount())
	assert.ElementsMatch(t, []string{"u1", "u2"}, d.undeafened)
}

func TestTracker_VoterLeavingDropsLock(t *testing.T) {
	tr, d, _ := newTestTracker(0, &fakeQueue{})
	ctx := context.Background()
	join(t, tr, "u1", "u2", "u3", "u4")
	tr.BeginSession()

	_, err := tr.Vote(ctx, "u1")
	require.NoError(t, err)

	_, err = tr.Apply(ctx, Event{Kind: EventLeave, UserID: "u1"})
	require.NoError(t, err)
	assert.False(t, tr.IsLocked("u1"))
	assert.Equal(t, []string{"u1"}, d.undeafened)

	// The vote leaves with the voter: 1 vote of 3 eligible does not pass.
	assert.Equal(t, 0, tr.VoteCount())
	result, err := tr.Vote(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Eligible: 3, Passed: false}, result)

	result, err = tr.Vote(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 2, Eligible: 3, Passed: true}, result)
}

func TestTracker_ReturningVoterMayVoteAgain(t *testing.T) {
	tr, _, _ := newTestTracker(0, &fakeQueue{})
	ctx := context.Background()
	join(t, tr, "u1", "u2", "u3")
	tr.BeginSession()

	_, err := tr.Vote(ctx, "u1")
	require.NoError(t, err)
	_, err = tr.Apply(ctx, Event{Kind: EventLeave, UserID: "u1"})
	require.NoError(t, err)
	join(t, tr, "u1")

	result, err := tr.Vote(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, VoteResult{Votes: 1, Eligible: 3, Passed: false}, result)
}

func TestTracker_EndSessionReportsReleasedListeners(t *testing.T) {
	ctx := context.Background()

	t.Run("locked voter was the only one left", func(t *testing.T) {
		tr, _, _ := newTestTracker(0, &fakeQueue{})
		join(t, tr, "u1", "u2")
		tr.BeginSession()
		_, err := tr.Vote(ctx, "u1")
		require.NoError(t, err)
		_, err = tr.Apply(ctx, Event{Kind: EventLeave, UserID: "u2"})
		require.NoError(t, err)
		require.Empty(t, tr.Listening())

		assert.True(t, tr.EndSession(ctx))
		assert.Equal(t, []string{"u1"}, tr.Listening())
	})

	t.Run("others still listening", func(t *testing.T) {
		tr, _, _ := newTestTracker(0, &fakeQueue{})
		join(t, tr, "u1", "u2", "u3")
		tr.BeginSession()
		_, err := tr.Vote(ctx, "u1")
		require.NoError(t, err)

		assert.False(t, tr.EndSession(ctx))
	})

	t.Run("no locks", func(t *testing.T) {
		tr, _, _ := newTestTracker(0, &fakeQueue{})
		tr.BeginSession()
		assert.False(t, tr.EndSession(ctx))
	})
}

func TestTracker_LockedVoterKeepsEntries(t *testing.T) {
	q := &fakeQueue{counts: map[string]int{"u1": 1}}
	tr, _, mu := newTestTracker(10*time.Millisecond, q)
	ctx := context.Background()

	mu.Lock()
	join(t, tr, "u1", "u2", "u3")
	tr.BeginSession()
	_, err := tr.Vote(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, tr.WithdrawalPending("u1"))
	mu.Unlock()

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, q.Withdrawn())
}
