package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19radio/internal/domain/content"
)

type playCall struct {
	item   *content.Item
	offset time.Duration
	gain   float64
	onEnd  func()
}

type fakeOutput struct {
	plays []playCall
	stops int
}

func (o *fakeOutput) Play(ctx context.Context, item *content.Item, offset time.Duration, gain float64, onEnd func()) error {
	o.plays = append(o.plays, playCall{item: item, offset: offset, gain: gain, onEnd: onEnd})
	return nil
}

func (o *fakeOutput) Stop(ctx context.Context) error {
	o.stops++
	return nil
}

type harness struct {
	mu       sync.Mutex
	now      time.Time
	out      *fakeOutput
	ctrl     *Controller
	items    []*content.Item
	nexts    int
	began    int
	finished []string
	ended    int
}

func newHarness(config Config, items ...*content.Item) *harness {
	h := &harness{now: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC), out: &fakeOutput{}, items: items}
	config.Serialize = func(fn func()) {
		h.mu.Lock()
		defer h.mu.Unlock()
		fn()
	}
	config.Now = func() time.Time { return h.now }
	h.ctrl = NewController(config, h.out, Hooks{
		Next: func() *content.Item {
			h.nexts++
			if len(h.items) == 0 {
				return nil
			}
			item := h.items[0]
			h.items = h.items[1:]
			return item
		},
		Began:    func(*content.Item) { h.began++ },
		Finished: func(item *content.Item) { h.finished = append(h.finished, item.ID) },
		Ended:    func() { h.ended++ },
	})
	return h
}

func (h *harness) locked(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *harness) state() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctrl.State()
}

func (h *harness) waitFor(t *testing.T, want State) {
	t.Helper()
	assert.Eventually(t, func() bool { return h.state() == want }, time.Second, time.Millisecond)
}

func items(ids ...string) []*content.Item {
	result := make([]*content.Item, len(ids))
	for i, id := range ids {
		result[i] = &content.Item{ID: id, Name: id, Length: 3 * time.Minute}
	}
	return result
}

func TestController_StartEntersLeadInThenPlays(t *testing.T) {
	h := newHarness(Config{LeadIn: 5 * time.Millisecond, PauseExpiry: time.Minute}, items("a")...)

	h.locked(func() {
		assert.True(t, h.ctrl.Start(nil, 0))
		assert.Equal(t, StateLeadIn, h.ctrl.State())
		assert.Empty(t, h.out.plays)
	})
	h.waitFor(t, StatePlaying)

	h.locked(func() {
		require.Len(t, h.out.plays, 1)
		assert.Equal(t, "a", h.out.plays[0].item.ID)
		assert.Equal(t, time.Duration(0), h.out.plays[0].offset)
		assert.Equal(t, 1, h.began)
		assert.Equal(t, 1, h.nexts)
	})
}

func TestController_StartWithNothingStaysIdle(t *testing.T) {
	h := newHarness(Config{LeadIn: time.Millisecond})

	h.locked(func() {
		assert.False(t, h.ctrl.Start(nil, 0))
		assert.Equal(t, StateIdle, h.ctrl.State())
	})

	ev := <-h.ctrl.Events()
	assert.Equal(t, EventQueueEmpty, ev.Type)
}

func TestController_StartOnlyFromIdle(t *testing.T) {
	h := newHarness(Config{LeadIn: time.Hour}, items("a", "b")...)

	h.locked(func() {
		require.True(t, h.ctrl.Start(nil, 0))
		assert.False(t, h.ctrl.Start(nil, 0))
		assert.Equal(t, 1, h.nexts)
	})
}

func TestController_PauseResumeKeepsOffset(t *testing.T) {
	h := newHarness(Config{LeadIn: time.Millisecond, PauseExpiry: time.Minute}, items("a", "b")...)

	h.locked(func() { h.ctrl.Start(nil, 0) })
	h.waitFor(t, StatePlaying)

	h.locked(func() {
		h.now = h.now.Add(30 * time.Second)
		assert.Equal(t, 30*time.Second, h.ctrl.Position())

		require.True(t, h.ctrl.Pause())
		assert.Equal(t, StatePaused, h.ctrl.State())
		assert.Equal(t, 1, h.out.stops)

		s, ok := h.ctrl.Session()
		require.True(t, ok)
		require.NotNil(t, s.PausedOffset)
		assert.Equal(t, 30*time.Second, *s.PausedOffset)

		require.True(t, h.ctrl.Resume())
		assert.Equal(t, StateLeadIn, h.ctrl.State())
	})
	h.waitFor(t, StatePlaying)

	h.locked(func() {
		require.Len(t, h.out.plays, 2)
		assert.Equal(t, "a", h.out.plays[1].item.ID)
		assert.Equal(t, 30*time.Second, h.out.plays[1].offset)
		assert.Equal(t, 1, h.nexts, "resume must not select a new item")
		assert.Equal(t, 1, h.began)
		assert.Equal(t, 0, h.ended)
	})
}

func TestController_PauseDuringLeadIn(t *testing.T) {
	h := newHarness(Config{LeadIn: time.Hour, PauseExpiry: time.Minute}, items("a")...)

	h.locked(func() {
		require.True(t, h.ctrl.Start(nil, 15*time.Second))
		require.True(t, h.ctrl.Pause())

		s, _ := h.ctrl.Session()
		assert.Equal(t, 15*time.Second, *s.PausedOffset)
		assert.Equal(t, 0, h.out.stops)
		assert.False(t, h.ctrl.leadIn.Pending())
	})
}

func TestController_PauseExpiryReturnsToIdle(t *testing.T) {
	h := newHarness(Config{LeadIn: time.Millisecond, PauseExpiry: 10 * time.Millisecond}, items("a")...)

	h.locked(func() { h.ctrl.Start(nil, 0) })
	h.waitFor(t, StatePlaying)
	h.locked(func() { h.ctrl.Pause() })
	h.waitFor(t, StateIdle)

	h.locked(func() {
		_, ok := h.ctrl.Session()
		assert.False(t, ok)
		assert.Equal(t, 1, h.ended)
		assert.False(t, h.ctrl.Resume())
		assert.Equal(t, StateIdle, h.ctrl.State())
	})
}

func TestController_NaturalEndRemembersAndContinues(t *testing.T) {
	h := newHarness(Config{LeadIn: time.Millisecond, PauseExpiry: time.Minute}, items("a", "b")...)

	h.locked(func() { h.ctrl.Start(nil, 0) })
	h.waitFor(t, StatePlaying)

	var onEnd func()
	h.locked(func() { onEnd = h.out.plays[0].onEnd })
	onEnd()

	h.locked(func() {
		assert.Equal(t, []string{"a"}, h.finished)
		assert.Equal(t, 1, h.ended)
		assert.Equal(t, StateLeadIn, h.ctrl.State())
		s, _ := h.ctrl.Session()
		assert.Equal(t, "b", s.Item.ID)
	})
	h.waitFor(t, StatePlaying)

	// Last item ends with nothing left to select.
	h.locked(func() { onEnd = h.out.plays[1].onEnd })
	onEnd()
	h.locked(func() {
		assert.Equal(t, []string{"a", "b"}, h.finished)
		assert.Equal(t, StateIdle, h.ctrl.State())
	})
}

func TestController_StaleNaturalEndIsIgnored(t *testing.T) {
	h := newHarness(Config{LeadIn: time.Millisecond, PauseExpiry: time.Minute}, items("a", "b")...)

	h.locked(func() { h.ctrl.Start(nil, 0) })
	h.waitFor(t, StatePlaying)

	var onEnd func()
	h.locked(func() {
		onEnd = h.out.plays[0].onEnd
		h.ctrl.Pause()
	})
	onEnd()

	h.locked(func() {
		assert.Empty(t, h.finished)
		assert.Equal(t, StatePaused, h.ctrl.State())
	})

	// Also stale once the same item is playing again after resume.
	h.locked(func() { h.ctrl.Resume() })
	h.waitFor(t, StatePlaying)
	onEnd()
	h.locked(func() {
		assert.Empty(t, h.finished)
		assert.Equal(t, StatePlaying, h.ctrl.State())
	})
}

func TestController_StopIsIdempotent(t *testing.T) {
	h := newHarness(Config{LeadIn: 20 * time.Millisecond, PauseExpiry: time.Minute}, items("a")...)

	h.locked(func() {
		assert.False(t, h.ctrl.Stop())
		require.True(t, h.ctrl.Start(nil, 0))
		assert.True(t, h.ctrl.Stop())
		assert.False(t, h.ctrl.Stop())
		assert.Equal(t, 1, h.ended)
	})

	time.Sleep(50 * time.Millisecond)
	h.locked(func() {
		assert.Equal(t, StateIdle, h.ctrl.State())
		assert.Empty(t, h.out.plays, "cancelled lead-in must not start output")
	})
}

func TestController_LoudnessGain(t *testing.T) {
	loudness := -20.0
	item := &content.Item{ID: "a", Length: time.Minute, SourceLoudness: &loudness}
	h := newHarness(Config{LeadIn: time.Millisecond, Normalize: true, TargetLoudness: -14}, item)

	h.locked(func() { h.ctrl.Start(nil, 0) })
	h.waitFor(t, StatePlaying)

	h.locked(func() {
		require.Len(t, h.out.plays, 1)
		assert.Equal(t, 6.0, h.out.plays[0].gain)
	})
}

func TestController_ExplicitItem(t *testing.T) {
	h := newHarness(Config{LeadIn: time.Hour}, items("queued")...)
	explicit := &content.Item{ID: "explicit"}

	h.locked(func() {
		require.True(t, h.ctrl.Start(explicit, time.Second))
		s, _ := h.ctrl.Session()
		assert.Equal(t, "explicit", s.Item.ID)
		assert.Equal(t, time.Second, h.ctrl.Position())
		assert.Equal(t, 0, h.nexts)
	})
}
