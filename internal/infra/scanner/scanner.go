// Package scanner imports media files from directories into the catalog.
//
// Each media file is identified by the sha256 of its bytes. Descriptive
// fields come from an optional sidecar "<file>.yaml"; without one the name
// and author are taken from an "Author - Name" file name.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/osa030/19radio/internal/domain/content"
)

// SourcePrefix marks catalog items imported from the filesystem.
const SourcePrefix = "file:"

// ErrNoLength is returned for a media file whose length is unknown.
var ErrNoLength = errors.New("media length unknown")

// Store is the catalog side of the scanner.
type Store interface {
	Put(ctx context.Context, item *content.Item, source string) error
	DeleteStale(ctx context.Context, source, keepID string) (int, error)
	DeleteBySource(ctx context.Context, source string) (int, error)
}

// Enricher adds keywords to freshly imported items.
type Enricher interface {
	Enrich(ctx context.Context, item *content.Item)
}

// Sidecar is the metadata file stored next to a media file.
type Sidecar struct {
	Name     string   `yaml:"name"`
	Author   string   `yaml:"author"`
	Length   string   `yaml:"length"` // Go duration, e.g. "3m25s"
	Loudness *float64 `yaml:"loudness"`
	Keywords []string `yaml:"keywords"`
}

// Scanner imports media files under a set of directories.
type Scanner struct {
	store      Store
	enricher   Enricher
	dirs       []string
	extensions map[string]bool
}

// New creates a scanner. extensions are matched case-insensitively.
func New(store Store, enricher Enricher, dirs, extensions []string) *Scanner {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Scanner{store: store, enricher: enricher, dirs: dirs, extensions: exts}
}

// ScanAll walks every directory and imports the media files found.
// Files that cannot be imported are logged and skipped.
func (s *Scanner) ScanAll(ctx context.Context) (int, error) {
	imported := 0
	for _, dir := range s.dirs {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !s.isMedia(path) {
				return nil
			}
			if _, err := s.ImportFile(ctx, path); err != nil {
				zlog.Warn().Err(err).Msgf("scanner: skipping file: path=%s", path)
				return nil
			}
			imported++
			return nil
		})
		if err != nil {
			return imported, errors.Wrapf(err, "failed to scan %s", dir)
		}
	}
	zlog.Info().Msgf("scanner: scan finished: dirs=%d imported=%d", len(s.dirs), imported)
	return imported, nil
}

// ImportFile stores one media file in the catalog and returns the item.
func (s *Scanner) ImportFile(ctx context.Context, path string) (*content.Item, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}

	id, err := hashFile(abs)
	if err != nil {
		return nil, err
	}
	item, err := describe(abs)
	if err != nil {
		return nil, err
	}
	item.ID = id

	source := SourcePrefix + abs
	if err := s.store.Put(ctx, item, source); err != nil {
		return nil, err
	}
	if n, err := s.store.DeleteStale(ctx, source, id); err != nil {
		zlog.Warn().Err(err).Msgf("scanner: failed to drop stale items: path=%s", abs)
	} else if n > 0 {
		zlog.Debug().Msgf("scanner: replaced changed file: path=%s stale=%d", abs, n)
	}
	if s.enricher != nil {
		s.enricher.Enrich(ctx, item)
	}

	zlog.Debug().Msgf("scanner: imported: id=%s name=%s", item.ShortID(), item.Name)
	return item, nil
}

// Remove drops the items imported from path.
func (s *Scanner) Remove(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to resolve %s", path)
	}
	return s.store.DeleteBySource(ctx, SourcePrefix+abs)
}

// Watch imports created or modified files and removes deleted ones until
// ctx is cancelled. Subdirectories are not watched.
func (s *Scanner) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer watcher.Close()

	for _, dir := range s.dirs {
		if err := watcher.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %s", dir)
		}
	}
	zlog.Info().Msgf("scanner: watching: dirs=%v", s.dirs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handle(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zlog.Warn().Err(err).Msg("scanner: watcher error")
		}
	}
}

func (s *Scanner) handle(ctx context.Context, event fsnotify.Event) {
	path := event.Name
	// A sidecar change re-imports its media file.
	if strings.HasSuffix(path, ".yaml") && s.isMedia(strings.TrimSuffix(path, ".yaml")) {
		path = strings.TrimSuffix(path, ".yaml")
		if _, err := os.Stat(path); err != nil {
			return
		}
		event.Op = fsnotify.Write
	}
	if !s.isMedia(path) {
		return
	}

	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if _, err := s.ImportFile(ctx, path); err != nil {
			zlog.Warn().Err(err).Msgf("scanner: import failed: path=%s", path)
		}
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		n, err := s.Remove(ctx, path)
		if err != nil {
			zlog.Warn().Err(err).Msgf("scanner: remove failed: path=%s", path)
			return
		}
		zlog.Info().Msgf("scanner: removed: path=%s items=%d", path, n)
	}
}

func (s *Scanner) isMedia(path string) bool {
	return s.extensions[strings.ToLower(filepath.Ext(path))]
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "failed to hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// describe builds an item without an ID from the file name and sidecar.
func describe(path string) (*content.Item, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	item := &content.Item{Name: base}
	if author, name, ok := strings.Cut(base, " - "); ok {
		item.Author = strings.TrimSpace(author)
		item.Name = strings.TrimSpace(name)
	}

	sc, err := readSidecar(path + ".yaml")
	if err != nil {
		return nil, err
	}
	if sc == nil || sc.Length == "" {
		return nil, errors.Wrapf(ErrNoLength, "%s", path)
	}

	if sc.Name != "" {
		item.Name = sc.Name
	}
	if sc.Author != "" {
		item.Author = sc.Author
	}
	length, err := time.ParseDuration(sc.Length)
	if err != nil || length <= 0 {
		return nil, errors.Wrapf(ErrNoLength, "%s: length=%q", path, sc.Length)
	}
	item.Length = length
	item.SourceLoudness = sc.Loudness
	item.Keywords = content.NormalizeKeywords(sc.Keywords)
	return item, nil
}

func readSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sidecar %s", path)
	}
	var sc Sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse sidecar %s", path)
	}
	return &sc, nil
}
