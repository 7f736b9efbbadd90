package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/app/notification"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsStream delivers notifications to one websocket client.
type wsStream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsStream) Send(n *notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(n)
}

// handleNotifications upgrades to a websocket and streams the session's
// notifications until the client disconnects.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	m := managerFrom(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("httpapi: websocket upgrade failed")
		return
	}
	defer conn.Close()

	id := s.notifier.Subscribe(m.ID(), &wsStream{conn: conn})
	defer s.notifier.Unsubscribe(id)
	zlog.Debug().Msgf("httpapi: notification stream opened: session=%s subscription=%s", m.ID(), id)

	// Client messages are ignored; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			zlog.Debug().Msgf("httpapi: notification stream closed: session=%s subscription=%s", m.ID(), id)
			return
		}
	}
}
