// Package httpapi exposes the session commands over JSON HTTP and streams
// notifications over websockets.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/app/notification"
	"github.com/osa030/19radio/internal/app/session"
	"github.com/osa030/19radio/internal/infra/config"
)

const (
	// AdminTokenHeader carries the admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
	// UserIDHeader carries the platform id of the calling participant.
	UserIDHeader = "X-User-Id"
	// DisplayNameHeader carries the caller's display name.
	DisplayNameHeader = "X-Display-Name"
)

// Registry is the set of sessions the server exposes.
type Registry interface {
	Get(id string) (*session.Manager, error)
	Sessions() []session.Info
}

// Server serves the command API.
type Server struct {
	cfg      *config.Config
	sessions Registry
	notifier *notification.Manager
}

// NewServer creates a server.
func NewServer(cfg *config.Config, sessions Registry, notifier *notification.Manager) *Server {
	return &Server{cfg: cfg, sessions: sessions, notifier: notifier}
}

// Router builds the route tree.
func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/sessions", s.handleSessions)

	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Use(s.sessionCtx)

		r.Get("/now", s.handleNow)
		r.Get("/next", s.handleNext)
		r.Get("/queue", s.handleQueue)
		r.Get("/history", s.handleHistory)
		r.Get("/notifications", s.handleNotifications)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/skip", s.handleSkip)
			r.Post("/request", s.handleRequest)
			r.Post("/demand", s.handleDemand)
			r.Post("/withdraw", s.handleWithdraw)
			r.Get("/priority", s.handleGetPriority)
			r.Post("/priority", s.handleSetPriority)
			r.Delete("/priority", s.handleClearPriority)
			r.Post("/rate", s.handleRate)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/on", s.handleOn)
			r.Post("/off", s.handleOff)
			r.Post("/another", s.handleAnother)
			r.Post("/volume", s.handleVolume)
			r.Post("/presence", s.handlePresence)
		})
	})

	return r
}

type ctxKey int

const managerKey ctxKey = iota

// sessionCtx resolves {sid} to its manager.
func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, err := s.sessions.Get(chi.URLParam(r, "sid"))
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown_session", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), managerKey, m)))
	})
}

func managerFrom(r *http.Request) *session.Manager {
	return r.Context().Value(managerKey).(*session.Manager)
}

// requireAdmin rejects requests without the configured admin token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(AdminTokenHeader)
		if token == "" || token != s.cfg.Admin.Token {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "admin token required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(UserIDHeader) == "" {
			writeError(w, http.StatusBadRequest, "missing_user", UserIDHeader+" header required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zlog.Debug().Msgf("httpapi: %s %s status=%d duration=%v request_id=%s",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "19radio",
		"subscribers": s.notifier.SubscriberCount(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Sessions())
}
