package session

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/infra/config"
)

// ErrUnknownSession is returned for a session id that is not configured.
var ErrUnknownSession = errors.New("unknown session")

// Info describes a configured session.
type Info struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Registry holds the managers of every configured session. Sessions share
// the catalog and the preference store but no scheduler state.
type Registry struct {
	managers map[string]*Manager
	order    []string
}

// NewRegistry creates one manager per configured session.
func NewRegistry(cfg *config.Config, deps Deps) (*Registry, error) {
	r := &Registry{managers: make(map[string]*Manager, len(cfg.Sessions))}
	for _, sc := range cfg.Sessions {
		// Each scheduler gets its own chain; filters keep per-instance settings.
		chain, err := BuildFilters(cfg)
		if err != nil {
			r.Stop()
			return nil, err
		}
		m, err := NewManager(cfg, sc, chain, deps)
		if err != nil {
			r.Stop()
			return nil, err
		}
		r.managers[sc.ID] = m
		r.order = append(r.order, sc.ID)
	}
	return r, nil
}

// Get returns the manager of a session.
func (r *Registry) Get(id string) (*Manager, error) {
	m, ok := r.managers[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSession, "id=%s", id)
	}
	return m, nil
}

// Sessions lists the configured sessions in configuration order.
func (r *Registry) Sessions() []Info {
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		m := r.managers[id]
		out = append(out, Info{ID: m.ID(), Title: m.Title()})
	}
	return out
}

// Start starts every session. It stops the ones already started if one fails.
func (r *Registry) Start(ctx context.Context) error {
	for _, id := range r.order {
		if err := r.managers[id].Start(ctx); err != nil {
			r.Stop()
			return errors.Wrapf(err, "failed to start session %s", id)
		}
	}
	zlog.Info().Msgf("session: all sessions started: count=%d", len(r.order))
	return nil
}

// Stop stops every session.
func (r *Registry) Stop() {
	for _, id := range r.order {
		r.managers[id].Stop()
	}
}
