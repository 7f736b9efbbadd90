// Package catalog provides the sqlite-backed content catalog.
package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/osa030/19radio/internal/domain/content"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	author    TEXT NOT NULL DEFAULT '',
	length_ms INTEGER NOT NULL DEFAULT 0,
	loudness  REAL,
	source    TEXT NOT NULL DEFAULT '',
	added_at  DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS items_source ON items (source);
CREATE TABLE IF NOT EXISTS keywords (
	item_id TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	keyword TEXT NOT NULL,
	PRIMARY KEY (item_id, keyword)
);
CREATE TABLE IF NOT EXISTS metadata (
	item_id TEXT NOT NULL REFERENCES items (id) ON DELETE CASCADE,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (item_id, key)
);
`

// Catalog stores content items, their keywords and scheduler metadata.
// It is safe for concurrent use.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens or creates the catalog database at path.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create catalog dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure catalog")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create catalog schema")
	}

	zlog.Debug().Msgf("catalog: opened: path=%s", path)
	return &Catalog{db: db, path: path}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Ping checks that the database is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Put inserts or replaces an item and its keywords. Existing metadata is kept.
func (c *Catalog) Put(ctx context.Context, item *content.Item, source string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var loudness sql.NullFloat64
	if item.SourceLoudness != nil {
		loudness = sql.NullFloat64{Float64: *item.SourceLoudness, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO items (id, name, author, length_ms, loudness, source)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			author = excluded.author,
			length_ms = excluded.length_ms,
			loudness = excluded.loudness,
			source = excluded.source`,
		item.ID, item.Name, item.Author, item.Length.Milliseconds(), loudness, source,
	); err != nil {
		return errors.Wrapf(err, "failed to store item %s", item.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM keywords WHERE item_id = ?`, item.ID); err != nil {
		return errors.Wrapf(err, "failed to clear keywords of %s", item.ID)
	}
	for _, k := range content.NormalizeKeywords(item.Keywords) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO keywords (item_id, keyword) VALUES (?, ?)`, item.ID, k); err != nil {
			return errors.Wrapf(err, "failed to store keyword of %s", item.ID)
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit item")
}

// AddKeywords merges keywords into an item's keyword set.
func (c *Catalog) AddKeywords(ctx context.Context, id string, keywords []string) error {
	for _, k := range content.NormalizeKeywords(keywords) {
		if _, err := c.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO keywords (item_id, keyword) VALUES (?, ?)`, id, k); err != nil {
			return errors.Wrapf(err, "failed to add keyword to %s", id)
		}
	}
	return nil
}

// Delete removes an item with its keywords and metadata.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete item %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(content.ErrNotFound, "id=%s", id)
	}
	return nil
}

// DeleteBySource removes every item imported from source and returns how
// many were removed.
func (c *Catalog) DeleteBySource(ctx context.Context, source string) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM items WHERE source = ?`, source)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete items of %s", source)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteStale removes the items of source other than keepID. A changed file
// gets a new content id, so its previous row is dropped this way.
func (c *Catalog) DeleteStale(ctx context.Context, source, keepID string) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM items WHERE source = ? AND id <> ?`, source, keepID)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to delete stale items of %s", source)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// IDs returns every item id in sorted order.
func (c *Catalog) IDs(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list items")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan item id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to list items")
}

// Count returns the number of items.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, errors.Wrap(err, "failed to count items")
}

// Get returns an item with its keywords and metadata.
func (c *Catalog) Get(ctx context.Context, id string) (*content.Item, error) {
	var (
		item     content.Item
		lengthMs int64
		loudness sql.NullFloat64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, author, length_ms, loudness FROM items WHERE id = ?`, id,
	).Scan(&item.ID, &item.Name, &item.Author, &lengthMs, &loudness)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(content.ErrNotFound, "id=%s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load item %s", id)
	}
	item.Length = time.Duration(lengthMs) * time.Millisecond
	if loudness.Valid {
		v := loudness.Float64
		item.SourceLoudness = &v
	}

	if item.Keywords, err = c.keywords(ctx, id); err != nil {
		return nil, err
	}
	if item.Metadata, err = c.metadata(ctx, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Metadata returns one metadata value of an item.
func (c *Catalog) Metadata(ctx context.Context, id, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE item_id = ? AND key = ?`, id, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read metadata of %s", id)
	}
	return value, true, nil
}

// SetMetadata stores one metadata value of an item.
func (c *Catalog) SetMetadata(ctx context.Context, id, key, value string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO metadata (item_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT (item_id, key) DO UPDATE SET value = excluded.value`,
		id, key, value)
	if err != nil {
		return errors.Wrapf(err, "failed to write metadata of %s", id)
	}
	return nil
}

// Resolve maps a typed id fragment to a full id. An exact id wins over
// prefix matches; otherwise the fragment must prefix exactly one id.
func (c *Catalog) Resolve(ctx context.Context, fragment string) (string, error) {
	if fragment == "" {
		return "", content.ErrNotFound
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id FROM items WHERE substr(id, 1, length(?1)) = ?1 ORDER BY id LIMIT 2`, fragment)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve reference")
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", errors.Wrap(err, "failed to scan item id")
		}
		matches = append(matches, id)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrap(err, "failed to resolve reference")
	}

	switch {
	case len(matches) == 0:
		return "", errors.Wrapf(content.ErrNotFound, "ref=%s", fragment)
	case len(matches) == 1 || matches[0] == fragment:
		return matches[0], nil
	default:
		return "", errors.Wrapf(content.ErrAmbiguous, "ref=%s", fragment)
	}
}

func (c *Catalog) keywords(ctx context.Context, id string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT keyword FROM keywords WHERE item_id = ?`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load keywords of %s", id)
	}
	defer rows.Close()

	keywords := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(err, "failed to scan keyword")
		}
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return keywords, errors.Wrap(rows.Err(), "failed to load keywords")
}

func (c *Catalog) metadata(ctx context.Context, id string) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT key, value FROM metadata WHERE item_id = ?`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load metadata of %s", id)
	}
	defer rows.Close()

	md := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "failed to scan metadata")
		}
		md[k] = v
	}
	return md, errors.Wrap(rows.Err(), "failed to load metadata")
}
