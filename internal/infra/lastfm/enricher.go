package lastfm

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/domain/content"
)

// KeywordStore receives the keywords found for an item.
type KeywordStore interface {
	AddKeywords(ctx context.Context, id string, keywords []string) error
}

// Enricher adds Last.fm tags to catalog items as keywords.
type Enricher struct {
	client   *Client
	store    KeywordStore
	maxTags  int
	minCount int
}

// NewEnricher creates an enricher.
func NewEnricher(client *Client, store KeywordStore, maxTags, minCount int) *Enricher {
	return &Enricher{client: client, store: store, maxTags: maxTags, minCount: minCount}
}

// Enrich looks up and stores keywords for item. Lookup failures are logged
// and leave the item unchanged.
func (e *Enricher) Enrich(ctx context.Context, item *content.Item) {
	if e == nil || item.Author == "" {
		return
	}
	keywords, err := e.client.Keywords(ctx, item, e.maxTags, e.minCount)
	if err != nil {
		zlog.Warn().Err(err).Msgf("lastfm: tag lookup failed: item=%s", item.ShortID())
		return
	}
	if len(keywords) == 0 {
		return
	}
	if err := e.store.AddKeywords(ctx, item.ID, keywords); err != nil {
		zlog.Warn().Err(err).Msgf("lastfm: failed to store keywords: item=%s", item.ShortID())
		return
	}
	zlog.Debug().Msgf("lastfm: enriched: item=%s keywords=%v", item.ShortID(), keywords)
}
