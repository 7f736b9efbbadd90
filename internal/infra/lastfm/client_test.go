package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19radio/internal/domain/content"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "test_key"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/"
	return client
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestTrackTags(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "track.getTopTags", r.URL.Query().Get("method"))
		assert.Equal(t, "test_artist", r.URL.Query().Get("artist"))
		assert.Equal(t, "test_track", r.URL.Query().Get("track"))
		assert.Equal(t, "test_key", r.URL.Query().Get("api_key"))

		response := `{
			"toptags": {
				"tag": [
					{"name": "rock", "count": 100, "url": "http://last.fm/tag/rock"},
					{"name": "alternative", "count": 80, "url": "http://last.fm/tag/alternative"}
				]
			}
		}`
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	})

	ctx := context.Background()
	tags, err := client.TrackTags(ctx, "test_artist", "test_track")
	require.NoError(t, err)
	assert.Len(t, tags, 2)
	assert.Equal(t, "rock", tags[0].Name)
	assert.Equal(t, 100, tags[0].Count)

	// Served from cache
	tagsCached, err := client.TrackTags(ctx, "test_artist", "test_track")
	require.NoError(t, err)
	assert.Equal(t, tags, tagsCached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTrackTags_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": 6, "message": "Track not found"}`)
	})

	_, err := client.TrackTags(context.Background(), "x", "y")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 6, apiErr.Code)
	assert.Contains(t, err.Error(), "Track not found")
}

func TestTrackTags_HTTPStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{}`)
	})

	_, err := client.ArtistTags(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestArtistTags_RequiresArtist(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := client.ArtistTags(context.Background(), "")
	assert.Error(t, err)
}

func TestKeywords_FallsBackToArtist(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("method") {
		case "track.getTopTags":
			fmt.Fprint(w, `{"toptags": {"tag": []}}`)
		case "artist.getTopTags":
			fmt.Fprint(w, `{"toptags": {"tag": [
				{"name": "City Pop", "count": 100},
				{"name": "seen live", "count": 5},
				{"name": "Japanese", "count": 60},
				{"name": "80s", "count": 40}
			]}}`)
		default:
			t.Errorf("unexpected method %s", r.URL.Query().Get("method"))
		}
	})

	item := &content.Item{ID: "x", Name: "Plastic Love", Author: "Mariya Takeuchi"}
	keywords, err := client.Keywords(context.Background(), item, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"city pop", "japanese"}, keywords)
}

type recordingStore struct {
	added map[string][]string
}

func (s *recordingStore) AddKeywords(ctx context.Context, id string, keywords []string) error {
	s.added[id] = append(s.added[id], keywords...)
	return nil
}

func TestEnricher_Enrich(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"toptags": {"tag": [{"name": "Shoegaze", "count": 100}]}}`)
	})
	store := &recordingStore{added: make(map[string][]string)}
	e := NewEnricher(client, store, 5, 10)

	e.Enrich(context.Background(), &content.Item{ID: "a", Name: "Only Shallow", Author: "My Bloody Valentine"})
	e.Enrich(context.Background(), &content.Item{ID: "b", Name: "Untitled"})

	assert.Equal(t, map[string][]string{"a": {"shoegaze"}}, store.added)
}
