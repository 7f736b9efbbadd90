package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/19radio/internal/domain/content"
	"github.com/osa030/19radio/internal/infra/catalog"
)

type recordingEnricher struct {
	items []string
}

func (e *recordingEnricher) Enrich(_ context.Context, item *content.Item) {
	e.items = append(e.items, item.ID)
}

func setup(t *testing.T) (string, *catalog.Catalog) {
	t.Helper()
	dir := t.TempDir()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return dir, c
}

func writeMedia(t *testing.T, dir, name, body, sidecar string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	if sidecar != "" {
		require.NoError(t, os.WriteFile(path+".yaml", []byte(sidecar), 0o644))
	}
	return path
}

func TestScanner_ImportFile(t *testing.T) {
	ctx := context.Background()
	dir, c := setup(t)
	enricher := &recordingEnricher{}
	s := New(c, enricher, []string{dir}, []string{".mp3"})

	path := writeMedia(t, dir, "Band - Song.mp3", "audio-bytes", "length: 3m25s\nloudness: -9.5\nkeywords: [Rock, rock, City Pop]\n")

	item, err := s.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.Len(t, item.ID, 64)
	assert.Equal(t, "Song", item.Name)
	assert.Equal(t, "Band", item.Author)
	assert.Equal(t, 205*time.Second, item.Length)
	require.NotNil(t, item.SourceLoudness)
	assert.Equal(t, -9.5, *item.SourceLoudness)
	assert.Equal(t, []string{item.ID}, enricher.items)

	stored, err := c.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"city pop", "rock"}, stored.Keywords)
}

func TestScanner_SidecarOverridesFileName(t *testing.T) {
	dir, c := setup(t)
	s := New(c, nil, []string{dir}, []string{".mp3"})
	path := writeMedia(t, dir, "track01.mp3", "x", "name: Real Name\nauthor: Real Author\nlength: 90s\n")

	item, err := s.ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Real Name", item.Name)
	assert.Equal(t, "Real Author", item.Author)
}

func TestScanner_RequiresLength(t *testing.T) {
	dir, c := setup(t)
	s := New(c, nil, []string{dir}, []string{".mp3"})

	tests := []struct {
		name    string
		sidecar string
	}{
		{name: "no sidecar", sidecar: ""},
		{name: "no length", sidecar: "name: x\n"},
		{name: "bad length", sidecar: "length: soon\n"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeMedia(t, dir, string(rune('a'+i))+".mp3", tt.name, tt.sidecar)
			_, err := s.ImportFile(context.Background(), path)
			assert.True(t, errors.Is(err, ErrNoLength))
		})
	}
}

func TestScanner_ScanAll(t *testing.T) {
	ctx := context.Background()
	dir, c := setup(t)
	s := New(c, nil, []string{dir}, []string{".MP3", ".flac"})

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	writeMedia(t, dir, "a.mp3", "a", "length: 1m\n")
	writeMedia(t, filepath.Join(dir, "sub"), "b.flac", "b", "length: 2m\n")
	writeMedia(t, dir, "c.mp3", "c", "")                 // skipped: no length
	writeMedia(t, dir, "notes.txt", "d", "length: 1m\n") // skipped: extension

	n, err := s.ScanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestScanner_ChangedFileReplacesItem(t *testing.T) {
	ctx := context.Background()
	dir, c := setup(t)
	s := New(c, nil, []string{dir}, []string{".mp3"})

	path := writeMedia(t, dir, "a.mp3", "v1", "length: 1m\n")
	first, err := s.ImportFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	second, err := s.ImportFile(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	ids, err := c.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, ids)

	n, err := s.Remove(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanner_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dir, c := setup(t)
	s := New(c, nil, []string{dir}, []string{".mp3"})

	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Sidecar first so the media write finds it.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp3.yaml"), []byte("length: 1m\n"), 0o644))
	assert.Eventually(t, func() bool {
		path := filepath.Join(dir, "a.mp3")
		_ = os.WriteFile(path, []byte("audio"), 0o644)
		n, _ := c.Count(context.Background())
		return n == 1
	}, 2*time.Second, 50*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.mp3")))
	assert.Eventually(t, func() bool {
		n, _ := c.Count(context.Background())
		return n == 0
	}, 2*time.Second, 20*time.Millisecond)
}
