// Package history tracks recently played content and request timestamps.
package history

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19radio/internal/domain/content"
)

// MetadataWriter persists scheduler metadata on a catalog item.
type MetadataWriter interface {
	SetMetadata(ctx context.Context, id, key, value string) error
}

// Tracker keeps a bounded front-of-list history plus per-item timestamps.
// It is not safe for concurrent use.
type Tracker struct {
	catalog   MetadataWriter
	namespace content.Namespace
	length    int
	now       func() time.Time

	recent        []*content.Item      // Most recent first
	lastRequested map[string]time.Time // In memory only
}

// New creates a history tracker.
func New(catalog MetadataWriter, ns content.Namespace, length int, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	if length < 1 {
		length = 1
	}
	return &Tracker{
		catalog:       catalog,
		namespace:     ns,
		length:        length,
		now:           now,
		recent:        make([]*content.Item, 0, length),
		lastRequested: make(map[string]time.Time),
	}
}

// Remember pushes item to the front of the history and stamps its
// last-played time in the catalog. The in-memory history is updated even if
// the catalog write fails.
func (t *Tracker) Remember(ctx context.Context, item *content.Item) error {
	t.recent = append([]*content.Item{item}, t.recent...)
	if len(t.recent) > t.length {
		t.recent[len(t.recent)-1] = nil
		t.recent = t.recent[:t.length]
	}

	stamp := content.FormatTime(t.now())
	key := t.namespace.Key(content.KeyLastPlayed)
	if item.Metadata == nil {
		item.Metadata = make(map[string]string)
	}
	item.Metadata[key] = stamp

	if t.catalog == nil {
		return nil
	}
	if err := t.catalog.SetMetadata(ctx, item.ID, key, stamp); err != nil {
		return errors.Wrapf(err, "failed to stamp last played: id=%s", item.ID)
	}
	return nil
}

// MarkRequested stamps the last-requested time of id.
func (t *Tracker) MarkRequested(id string) {
	t.lastRequested[id] = t.now()
}

// LastRequested returns the last-requested time of id.
func (t *Tracker) LastRequested(id string) (time.Time, bool) {
	ts, ok := t.lastRequested[id]
	return ts, ok
}

// LastPlayed returns the last-played time stored on the item.
func (t *Tracker) LastPlayed(item *content.Item) (time.Time, bool) {
	return item.Time(t.namespace, content.KeyLastPlayed)
}

// Recent returns the history, most recent first.
func (t *Tracker) Recent() []*content.Item {
	result := make([]*content.Item, len(t.recent))
	copy(result, t.recent)
	return result
}

// At returns the item played offset plays ago (1 is the most recent).
func (t *Tracker) At(offset int) (*content.Item, bool) {
	if offset < 1 || offset > len(t.recent) {
		return nil, false
	}
	return t.recent[offset-1], true
}
