// Package prefstore persists keyword preferences and item ratings of
// participants in redis, keeping an in-memory copy for scoring.
package prefstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/domain/content"
	"github.com/osa030/19radio/internal/domain/preference"
)

// Store is a write-through cache over redis. Records are flat hashes:
//
//	<prefix>:prefs:<user>    keyword -> level
//	<prefix>:ratings:<item>  user    -> rating
//
// plus the index sets <prefix>:users and <prefix>:rated.
// It is safe for concurrent use and may be shared by several schedulers.
type Store struct {
	rdb    *redis.Client
	prefix string

	mu      sync.RWMutex
	prefs   map[string]*preference.Preferences
	ratings map[string]map[string]int // item -> user -> rating
}

// New creates a store and loads every record from redis.
func New(ctx context.Context, rdb *redis.Client, prefix string) (*Store, error) {
	s := &Store{
		rdb:     rdb,
		prefix:  prefix,
		prefs:   make(map[string]*preference.Preferences),
		ratings: make(map[string]map[string]int),
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *Store) load(ctx context.Context) error {
	users, err := s.rdb.SMembers(ctx, s.key("users")).Result()
	if err != nil {
		return errors.Wrap(err, "failed to list preference users")
	}
	for _, user := range users {
		levels, err := s.rdb.HGetAll(ctx, s.key("prefs", user)).Result()
		if err != nil {
			return errors.Wrapf(err, "failed to load preferences of %s", user)
		}
		p := preference.New(user)
		for k, v := range levels {
			n, err := strconv.Atoi(v)
			if err != nil || (preference.Level(n) != preference.High && preference.Level(n) != preference.Low) {
				zlog.Warn().Msgf("prefstore: skipping malformed preference: user=%s keyword=%s", user, k)
				continue
			}
			p.Levels[k] = preference.Level(n)
		}
		s.prefs[user] = p
	}

	items, err := s.rdb.SMembers(ctx, s.key("rated")).Result()
	if err != nil {
		return errors.Wrap(err, "failed to list rated items")
	}
	for _, item := range items {
		raw, err := s.rdb.HGetAll(ctx, s.key("ratings", item)).Result()
		if err != nil {
			return errors.Wrapf(err, "failed to load ratings of %s", item)
		}
		ratings := make(map[string]int, len(raw))
		for user, v := range raw {
			n, err := strconv.Atoi(v)
			if err != nil || (n != 1 && n != -1) {
				continue
			}
			ratings[user] = n
		}
		s.ratings[item] = ratings
	}

	zlog.Info().Msgf("prefstore: loaded: users=%d rated_items=%d", len(s.prefs), len(s.ratings))
	return nil
}

// Level returns userID's level for a normalized keyword.
func (s *Store) Level(userID, keyword string) (preference.Level, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[userID].Level(keyword)
}

// Preferences returns a copy of userID's preferences, nil if none are stored.
func (s *Store) Preferences(userID string) *preference.Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prefs[userID]
	if !ok {
		return nil
	}
	cp := preference.New(userID)
	for k, v := range p.Levels {
		cp.Levels[k] = v
	}
	return cp
}

// SetPreference stores a keyword level and returns the normalized keyword.
// Redis is written first; a failed write leaves the preferences unchanged.
func (s *Store) SetPreference(ctx context.Context, userID, keyword string, level preference.Level, max int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prefs[userID]
	if !ok {
		p = preference.New(userID)
	}
	// Validate against a copy so a failed write changes nothing.
	trial := preference.New(userID)
	for k, v := range p.Levels {
		trial.Levels[k] = v
	}
	normalized, err := trial.Set(keyword, level, max)
	if err != nil {
		return "", err
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.key("prefs", userID), normalized, strconv.Itoa(int(level)))
	pipe.SAdd(ctx, s.key("users"), userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", errors.Wrapf(err, "failed to store preference of %s", userID)
	}

	s.prefs[userID] = trial
	return normalized, nil
}

// ClearPreference removes a keyword and reports whether it was stored.
func (s *Store) ClearPreference(ctx context.Context, userID, keyword string) (bool, error) {
	normalized, err := content.NormalizeKeyword(keyword)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.prefs[userID]
	if !ok {
		return false, nil
	}
	if _, ok := p.Levels[normalized]; !ok {
		return false, nil
	}
	if err := s.rdb.HDel(ctx, s.key("prefs", userID), normalized).Err(); err != nil {
		return false, errors.Wrapf(err, "failed to clear preference of %s", userID)
	}
	delete(p.Levels, normalized)
	return true, nil
}

// Rate stores userID's rating of an item: +1, -1, or 0 to remove it.
func (s *Store) Rate(ctx context.Context, itemID, userID string, rating int) error {
	if rating < -1 || rating > 1 {
		return errors.Newf("invalid rating %d", rating)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key("ratings", itemID)
	if rating == 0 {
		if err := s.rdb.HDel(ctx, key, userID).Err(); err != nil {
			return errors.Wrapf(err, "failed to clear rating of %s", itemID)
		}
		delete(s.ratings[itemID], userID)
		return nil
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, userID, strconv.Itoa(rating))
	pipe.SAdd(ctx, s.key("rated"), itemID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "failed to store rating of %s", itemID)
	}

	if s.ratings[itemID] == nil {
		s.ratings[itemID] = make(map[string]int)
	}
	s.ratings[itemID][userID] = rating
	return nil
}

// TotalRank returns the sum of every rating of an item.
func (s *Store) TotalRank(itemID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, r := range s.ratings[itemID] {
		total += r
	}
	return total
}

// RankAmong returns the sum of the ratings of an item given by users.
func (s *Store) RankAmong(itemID string, users []string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ratings := s.ratings[itemID]
	total := 0
	for _, u := range users {
		total += ratings[u]
	}
	return total
}
