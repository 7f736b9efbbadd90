// Package content provides the ContentItem domain entity.
package content

import (
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// KeyLastPlayed is the scheduler metadata key holding the last-played timestamp.
const KeyLastPlayed = "lastPlayed"

var (
	ErrInvalidKeyword = errors.New("invalid keyword")
	ErrNotFound       = errors.New("content not found")
	ErrAmbiguous      = errors.New("ambiguous content reference")
)

// Item represents a playable content item owned by the catalog.
type Item struct {
	ID             string            `json:"id"`                 // Stable content hash
	Name           string            `json:"name"`               // Display name
	Author         string            `json:"author"`             // Author / artist
	Length         time.Duration     `json:"length"`             // Playback length
	SourceLoudness *float64          `json:"loudness,omitempty"` // Integrated loudness in dB (negative), nil if unknown
	Keywords       []string          `json:"keywords"`           // Normalized keyword set
	Metadata       map[string]string `json:"metadata,omitempty"` // Arbitrary metadata, scheduler keys are namespaced
}

// HasKeyword reports whether the item carries the normalized keyword.
func (i *Item) HasKeyword(keyword string) bool {
	for _, k := range i.Keywords {
		if k == keyword {
			return true
		}
	}
	return false
}

// ShortID returns the first eight characters of the ID, as shown to users.
func (i *Item) ShortID() string {
	if len(i.ID) <= 8 {
		return i.ID
	}
	return i.ID[:8]
}

// Namespace scopes scheduler metadata keys so independent schedulers
// sharing one catalog never overwrite each other.
type Namespace string

// NewNamespace returns the metadata namespace of a scheduler session.
func NewNamespace(session string) Namespace {
	return Namespace("radio." + session + ".")
}

// Key returns the fully qualified metadata key.
func (n Namespace) Key(name string) string {
	return string(n) + name
}

// Time reads a namespaced RFC3339 timestamp from the item metadata.
func (i *Item) Time(ns Namespace, name string) (time.Time, bool) {
	if i.Metadata == nil {
		return time.Time{}, false
	}
	raw, ok := i.Metadata[ns.Key(name)]
	if !ok || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatTime formats a timestamp the way scheduler metadata stores it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

var (
	keywordSpaceRe = regexp.MustCompile(`\s+`)
	keywordRe      = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _\-&']*$`)
)

// MaxKeywordLength bounds a normalized keyword.
const MaxKeywordLength = 32

// NormalizeKeyword lowercases and collapses whitespace.
func NormalizeKeyword(raw string) (string, error) {
	k := strings.ToLower(strings.TrimSpace(raw))
	k = keywordSpaceRe.ReplaceAllString(k, " ")
	if k == "" || len(k) > MaxKeywordLength || !keywordRe.MatchString(k) {
		return "", errors.Wrapf(ErrInvalidKeyword, "%q", raw)
	}
	return k, nil
}

// NormalizeKeywords normalizes a keyword list, dropping malformed and duplicate entries.
func NormalizeKeywords(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		k, err := NormalizeKeyword(r)
		if err != nil || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
