// Package spotify imports Spotify playlists into the content catalog.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/19radio/internal/domain/content"
)

// IDPrefix marks catalog ids of imported Spotify tracks.
const IDPrefix = "spotify:"

const pageSize = 100

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
	BaseURL      string // API base URL override, for tests
}

// Client reads playlists with an app token; no user login is involved.
type Client struct {
	api      *spotify.Client
	market   string
	attempts int
	backoff  time.Duration
}

// New creates a client authenticated with client credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return newClient(creds.Client(ctx), cfg), nil
}

func newClient(httpClient *http.Client, cfg Config) *Client {
	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}
	market := cfg.Market
	if market == "" {
		market = "JP"
	}
	return &Client{
		api:      spotify.New(httpClient, opts...),
		market:   market,
		attempts: 3,
		backoff:  time.Second,
	}
}

// PlaylistItems returns every track of a playlist as catalog items.
// Episodes and local files without an id are skipped.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string) ([]*content.Item, error) {
	var items []*content.Item
	for offset := 0; ; offset += pageSize {
		page, err := withRetry(ctx, c, func() (*spotify.PlaylistItemPage, error) {
			return c.api.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(pageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read playlist %s", playlistID)
		}

		for _, entry := range page.Items {
			if t := entry.Track.Track; t != nil && t.ID != "" {
				items = append(items, toItem(t))
			}
		}
		if len(page.Items) < pageSize {
			return items, nil
		}
	}
}

// withRetry runs call until it succeeds, fails permanently, or the
// attempts are used up. The wait grows linearly between attempts.
func withRetry[T any](ctx context.Context, c *Client, call func() (T, error)) (T, error) {
	var zero T
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		var v T
		if v, err = call(); err == nil {
			return v, nil
		}
		if !isTransient(err) || attempt == c.attempts {
			break
		}

		wait := c.backoff * time.Duration(attempt)
		zlog.Debug().Err(err).Msgf("spotify: retrying: attempt=%d wait=%s", attempt, wait)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}
	return zero, err
}

// isTransient reports whether err is a rate limit or a server-side failure.
func isTransient(err error) bool {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return false
}

// toItem maps a track to a catalog item. Artists become the author and,
// together with the album, seed the keyword set.
func toItem(t *spotify.FullTrack) *content.Item {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}
	keywords := append([]string{}, artists...)
	if t.Album.Name != "" {
		keywords = append(keywords, t.Album.Name)
	}

	return &content.Item{
		ID:       IDPrefix + string(t.ID),
		Name:     t.Name,
		Author:   strings.Join(artists, ", "),
		Length:   time.Duration(t.Duration) * time.Millisecond,
		Keywords: content.NormalizeKeywords(keywords),
		Metadata: map[string]string{"spotify.url": "https://open.spotify.com/track/" + string(t.ID)},
	}
}

// PlaylistID accepts a spotify:playlist:<id> URI, an open.spotify.com
// playlist URL (localized paths included) or a bare id.
func PlaylistID(ref string) string {
	ref = strings.TrimSpace(ref)
	if id, ok := strings.CutPrefix(ref, "spotify:playlist:"); ok {
		return id
	}
	if !strings.Contains(ref, "open.spotify.com") {
		return ref
	}
	_, tail, found := strings.Cut(ref, "/playlist/")
	if !found {
		return ""
	}
	tail, _, _ = strings.Cut(tail, "?")
	return strings.TrimRight(tail, "/")
}
