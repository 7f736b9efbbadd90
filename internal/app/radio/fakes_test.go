package radio

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/osa030/19radio/internal/domain/content"
	"github.com/osa030/19radio/internal/domain/listener"
	"github.com/osa030/19radio/internal/domain/preference"
)

type fakeCatalog struct {
	mu    sync.Mutex
	items map[string]*content.Item
}

func newFakeCatalog(items ...*content.Item) *fakeCatalog {
	c := &fakeCatalog{items: make(map[string]*content.Item)}
	for _, item := range items {
		c.items[item.ID] = item
	}
	return c
}

func (c *fakeCatalog) IDs(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (c *fakeCatalog) Get(ctx context.Context, id string) (*content.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return nil, content.ErrNotFound
	}
	return item, nil
}

func (c *fakeCatalog) SetMetadata(ctx context.Context, id, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return content.ErrNotFound
	}
	if item.Metadata == nil {
		item.Metadata = make(map[string]string)
	}
	item.Metadata[key] = value
	return nil
}

func (c *fakeCatalog) Resolve(ctx context.Context, fragment string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var found []string
	for id := range c.items {
		if strings.HasPrefix(id, fragment) {
			found = append(found, id)
		}
	}
	switch len(found) {
	case 0:
		return "", content.ErrNotFound
	case 1:
		return found[0], nil
	default:
		return "", content.ErrAmbiguous
	}
}

type fakeEnv struct {
	mu           sync.Mutex
	participants []*listener.Participant
	plays        []string
	onEnd        func()
	stops        int
	deafened     map[string]bool
	volume       int
}

func newFakeEnv(participants ...*listener.Participant) *fakeEnv {
	return &fakeEnv{participants: participants, deafened: make(map[string]bool)}
}

func (e *fakeEnv) Play(ctx context.Context, item *content.Item, offset time.Duration, gainDB float64, onEnd func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plays = append(e.plays, item.ID)
	e.onEnd = onEnd
	return nil
}

func (e *fakeEnv) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return nil
}

func (e *fakeEnv) Deafen(ctx context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deafened[userID] = true
	return nil
}

func (e *fakeEnv) Undeafen(ctx context.Context, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.deafened, userID)
	return nil
}

func (e *fakeEnv) Participants(ctx context.Context) ([]*listener.Participant, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.participants, nil
}

func (e *fakeEnv) SetVolume(ctx context.Context, percent int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = percent
	return nil
}

func (e *fakeEnv) playCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.plays)
}

// finish reports the natural end of the item playing now.
func (e *fakeEnv) finish() {
	e.mu.Lock()
	onEnd := e.onEnd
	e.onEnd = nil
	e.mu.Unlock()
	if onEnd != nil {
		onEnd()
	}
}

func (e *fakeEnv) isDeafened(userID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deafened[userID]
}

type fakePrefs struct {
	mu      sync.Mutex
	prefs   map[string]*preference.Preferences
	ratings map[string]map[string]int
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{
		prefs:   make(map[string]*preference.Preferences),
		ratings: make(map[string]map[string]int),
	}
}

func (p *fakePrefs) Level(userID, keyword string) (preference.Level, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prefs[userID].Level(keyword)
}

func (p *fakePrefs) TotalRank(itemID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, r := range p.ratings[itemID] {
		total += r
	}
	return total
}

func (p *fakePrefs) RankAmong(itemID string, users []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, u := range users {
		total += p.ratings[itemID][u]
	}
	return total
}

func (p *fakePrefs) Preferences(userID string) *preference.Preferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prefs[userID]
}

func (p *fakePrefs) SetPreference(ctx context.Context, userID, keyword string, level preference.Level, max int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefs, ok := p.prefs[userID]
	if !ok {
		prefs = preference.New(userID)
		p.prefs[userID] = prefs
	}
	return prefs.Set(keyword, level, max)
}

func (p *fakePrefs) ClearPreference(ctx context.Context, userID, keyword string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefs, ok := p.prefs[userID]
	if !ok {
		return false, nil
	}
	return prefs.Clear(keyword), nil
}

func (p *fakePrefs) Rate(ctx context.Context, itemID, userID string, rating int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ratings[itemID] == nil {
		p.ratings[itemID] = make(map[string]int)
	}
	if rating == 0 {
		delete(p.ratings[itemID], userID)
		return nil
	}
	p.ratings[itemID][userID] = rating
	return nil
}

func item(id string) *content.Item {
	return &content.Item{ID: id, Name: "name-" + id, Author: "author-" + id, Length: 3 * time.Minute}
}

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func testSettings() Settings {
	return Settings{
		QueueSize:      5,
		HistoryLength:  10,
		LeadIn:         time.Millisecond,
		PauseExpiry:    time.Minute,
		WithdrawAfter:  time.Minute,
		MaxPreferences: 2,
		MaxVolume:      100,
		DefaultVolume:  50,
	}
}

func newTestScheduler(t interface{ Cleanup(func()) }, settings Settings, catalog *fakeCatalog, env *fakeEnv, prefs PreferenceStore) *Scheduler {
	s, err := New(Options{
		Session:     "test",
		Catalog:     catalog,
		Environment: env,
		Preferences: prefs,
		Settings:    settings,
		Now:         func() time.Time { return testNow },
	})
	if err != nil {
		panic(err)
	}
	t.Cleanup(s.Close)
	return s
}
