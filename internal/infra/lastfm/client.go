// Package lastfm derives catalog keywords from Last.fm top tags.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/domain/content"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Config represents Last.fm client configuration.
type Config struct {
	APIKey string
}

// Tag is a Last.fm tag with its relative weight (0-100).
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// APIError is an error payload returned by the Last.fm API.
type APIError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("last.fm error %d: %s", e.Code, e.Message)
}

type tagKey struct {
	artist string
	track  string // empty for artist tags
}

// Client queries Last.fm and memoizes tag lookups for its lifetime.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	cache map[tagKey][]Tag
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   make(map[tagKey][]Tag),
	}, nil
}

// TrackTags returns the top tags of a track (track.getTopTags).
func (c *Client) TrackTags(ctx context.Context, artist, track string) ([]Tag, error) {
	if artist == "" || track == "" {
		return nil, errors.New("artist and track are required")
	}
	return c.tags(ctx, tagKey{artist: artist, track: track})
}

// ArtistTags returns the top tags of an artist (artist.getTopTags).
func (c *Client) ArtistTags(ctx context.Context, artist string) ([]Tag, error) {
	if artist == "" {
		return nil, errors.New("artist is required")
	}
	return c.tags(ctx, tagKey{artist: artist})
}

// Keywords returns up to limit normalized keywords for item from the tags
// weighing at least minCount. Artist tags stand in when the track has none.
func (c *Client) Keywords(ctx context.Context, item *content.Item, limit, minCount int) ([]string, error) {
	if item.Author == "" {
		return nil, nil
	}

	var tags []Tag
	if item.Name != "" {
		var err error
		if tags, err = c.TrackTags(ctx, item.Author, item.Name); err != nil {
			return nil, err
		}
	}
	if len(tags) == 0 {
		var err error
		if tags, err = c.ArtistTags(ctx, item.Author); err != nil {
			return nil, err
		}
	}

	var picked []string
	for _, t := range tags {
		if len(picked) >= limit {
			break
		}
		if t.Count >= minCount {
			picked = append(picked, t.Name)
		}
	}
	return content.NormalizeKeywords(picked), nil
}

func (c *Client) tags(ctx context.Context, key tagKey) ([]Tag, error) {
	c.mu.Lock()
	cached, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		zlog.Debug().Msgf("lastfm: cache hit: artist=%q track=%q", key.artist, key.track)
		return cached, nil
	}

	params := url.Values{"artist": {key.artist}, "method": {"artist.getTopTags"}}
	if key.track != "" {
		params.Set("method", "track.getTopTags")
		params.Set("track", key.track)
	}

	var resp struct {
		TopTags struct {
			Tag []Tag `json:"tag"`
		} `json:"toptags"`
	}
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, err
	}

	tags := resp.TopTags.Tag
	if tags == nil {
		tags = []Tag{}
	}
	c.mu.Lock()
	c.cache[key] = tags
	c.mu.Unlock()
	return tags, nil
}

// get performs one API call. Last.fm may report errors with a 200 status,
// so the body is checked for an error payload first.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	params.Set("autocorrect", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s failed", params.Get("method"))
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return errors.Wrapf(err, "%s: status %d: unreadable body", params.Get("method"), resp.StatusCode)
	}
	apiErr := &APIError{}
	if json.Unmarshal(raw, apiErr) == nil && apiErr.Code != 0 {
		return apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("%s: status %d", params.Get("method"), resp.StatusCode)
	}
	return errors.Wrap(json.Unmarshal(raw, out), "failed to parse response")
}
