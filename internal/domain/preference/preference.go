// Package preference provides the per-participant keyword preference entity.
package preference

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19radio/internal/domain/content"
)

var (
	ErrInvalidLevel = errors.New("invalid preference level")
	ErrLimitReached = errors.New("preference limit reached")
)

// Level is a participant's preference for a keyword.
type Level int

const (
	Low  Level = -1
	High Level = 1
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return "unknown"
	}
}

// ParseLevel parses "high"/"low" (or "+"/"-").
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "+", "1", "+1":
		return High, nil
	case "low", "-", "-1":
		return Low, nil
	default:
		return 0, errors.Wrapf(ErrInvalidLevel, "%q", s)
	}
}

// Preferences holds one participant's keyword levels.
type Preferences struct {
	UserID string
	Levels map[string]Level
}

// New creates an empty preference set.
func New(userID string) *Preferences {
	return &Preferences{
		UserID: userID,
		Levels: make(map[string]Level),
	}
}

// Level returns the stored level for a normalized keyword.
func (p *Preferences) Level(keyword string) (Level, bool) {
	if p == nil {
		return 0, false
	}
	l, ok := p.Levels[keyword]
	return l, ok
}

// Set stores a level. Overwriting an existing keyword never counts against max.
func (p *Preferences) Set(rawKeyword string, level Level, max int) (string, error) {
	if level != High && level != Low {
		return "", ErrInvalidLevel
	}
	keyword, err := content.NormalizeKeyword(rawKeyword)
	if err != nil {
		return "", err
	}
	if _, exists := p.Levels[keyword]; !exists && len(p.Levels) >= max {
		return "", errors.Wrapf(ErrLimitReached, "max=%d", max)
	}
	p.Levels[keyword] = level
	return keyword, nil
}

// Clear removes a keyword and reports whether it was present.
func (p *Preferences) Clear(rawKeyword string) bool {
	keyword, err := content.NormalizeKeyword(rawKeyword)
	if err != nil {
		return false
	}
	if _, ok := p.Levels[keyword]; !ok {
		return false
	}
	delete(p.Levels, keyword)
	return true
}

// Keywords returns the stored keywords in sorted order.
func (p *Preferences) Keywords() []string {
	out := make([]string, 0, len(p.Levels))
	for k := range p.Levels {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
