package spotify

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/domain/content"
)

// Store receives imported items.
type Store interface {
	Put(ctx context.Context, item *content.Item, source string) error
	SetMetadata(ctx context.Context, id, key, value string) error
}

// Enricher adds keywords to stored items.
type Enricher interface {
	Enrich(ctx context.Context, item *content.Item)
}

// Importer copies playlist tracks into the catalog.
type Importer struct {
	client   *Client
	store    Store
	enricher Enricher
}

// NewImporter creates an importer. enricher may be nil.
func NewImporter(client *Client, store Store, enricher Enricher) *Importer {
	return &Importer{client: client, store: store, enricher: enricher}
}

// ImportPlaylist stores every track of a playlist and returns how many were stored.
func (i *Importer) ImportPlaylist(ctx context.Context, playlistRef string) (int, error) {
	id := PlaylistID(playlistRef)
	if id == "" {
		return 0, errors.Newf("invalid playlist reference %q", playlistRef)
	}
	items, err := i.client.PlaylistItems(ctx, id)
	if err != nil {
		return 0, err
	}

	source := "spotify:playlist:" + id
	stored := 0
	for _, item := range items {
		if err := i.store.Put(ctx, item, source); err != nil {
			return stored, errors.Wrapf(err, "failed to store %s", item.ID)
		}
		for k, v := range item.Metadata {
			if err := i.store.SetMetadata(ctx, item.ID, k, v); err != nil {
				zlog.Warn().Err(err).Msgf("spotify: failed to store metadata: item=%s", item.ID)
			}
		}
		if i.enricher != nil {
			i.enricher.Enrich(ctx, item)
		}
		stored++
	}

	zlog.Info().Msgf("spotify: imported playlist: source=%s items=%d", source, stored)
	return stored, nil
}
