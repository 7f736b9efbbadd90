// Package notification fans playback events out to subscribers and posts
// announcements into managed sessions.
package notification

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/domain/content"
)

// Type identifies a notification.
type Type string

const (
	TypeNowPlaying   Type = "now_playing"
	TypeTrackEnded   Type = "track_ended"
	TypeStateChanged Type = "state_changed"
	TypeQueueEmpty   Type = "queue_empty"
)

// Notification is one broadcast message. SequenceNo increases across all
// sessions.
type Notification struct {
	SequenceNo uint64        `json:"sequence_no"`
	Type       Type          `json:"type"`
	Session    string        `json:"session"`
	Timestamp  time.Time     `json:"timestamp"`
	State      string        `json:"state,omitempty"`
	Item       *content.Item `json:"item,omitempty"`
	Offset     time.Duration `json:"offset,omitempty"`
}

// Stream receives notifications of one subscriber.
type Stream interface {
	Send(*Notification) error
}

// allSessions is the index key of subscribers to every session.
const allSessions = ""

// Manager delivers notifications to subscribers of their session.
type Manager struct {
	seq         atomic.Uint64
	sendTimeout time.Duration

	mu        sync.RWMutex
	bySession map[string]map[string]Stream
	sessionOf map[string]string
}

func NewManager() *Manager {
	return &Manager{
		sendTimeout: 500 * time.Millisecond,
		bySession:   make(map[string]map[string]Stream),
		sessionOf:   make(map[string]string),
	}
}

// Subscribe registers stream for session, or for every session when
// session is empty, and returns the subscription id.
func (m *Manager) Subscribe(session string, stream Stream) string {
	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bySession[session] == nil {
		m.bySession[session] = make(map[string]Stream)
	}
	m.bySession[session][id] = stream
	m.sessionOf[id] = session
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (m *Manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(id)
}

func (m *Manager) remove(id string) {
	session, ok := m.sessionOf[id]
	if !ok {
		return
	}
	delete(m.sessionOf, id)
	delete(m.bySession[session], id)
	if len(m.bySession[session]) == 0 {
		delete(m.bySession, session)
	}
}

// Broadcast numbers n and sends it to the subscribers of its session and
// to the catch-all subscribers, in parallel. It returns once every send
// finished or timed out. Subscribers whose Send fails are dropped; slow
// ones only miss this notification.
func (m *Manager) Broadcast(n *Notification) {
	n.SequenceNo = m.seq.Add(1)
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	targets := m.targets(n.Session)
	if len(targets) == 0 {
		return
	}

	var (
		wg     sync.WaitGroup
		failMu sync.Mutex
		failed []string
	)
	for id, stream := range targets {
		id, stream := id, stream
		wg.Add(1)
		go func() {
			defer wg.Done()
			errc := make(chan error, 1)
			go func() { errc <- stream.Send(n) }()

			select {
			case err := <-errc:
				if err != nil {
					zlog.Debug().Err(err).Msgf("notification: send failed: subscription=%s", id)
					failMu.Lock()
					failed = append(failed, id)
					failMu.Unlock()
				}
			case <-time.After(m.sendTimeout):
				zlog.Debug().Msgf("notification: send timed out: subscription=%s seq=%d", id, n.SequenceNo)
			}
		}()
	}
	wg.Wait()

	if len(failed) > 0 {
		m.mu.Lock()
		for _, id := range failed {
			m.remove(id)
		}
		m.mu.Unlock()
	}
}

func (m *Manager) targets(session string) map[string]Stream {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stream, len(m.bySession[session])+len(m.bySession[allSessions]))
	for id, s := range m.bySession[allSessions] {
		out[id] = s
	}
	for id, s := range m.bySession[session] {
		out[id] = s
	}
	return out
}

// SubscriberCount returns the number of active subscriptions.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionOf)
}

// Close drops every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySession = make(map[string]map[string]Stream)
	m.sessionOf = make(map[string]string)
}
