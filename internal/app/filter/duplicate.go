package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/19radio/internal/domain/content"
)

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),             // "- Live"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	spaces = regexp.MustCompile(`\s+`)
)

// DuplicateFilter rejects items that are already playing or queued.
// Detects:
// - Exact content ID matches
// - Remasters and alternate versions (normalized name + same main author)
// Excludes:
// - Covers (same name but different author)
type DuplicateFilter struct{}

func (f *DuplicateFilter) Name() string {
	return "duplicate_filter"
}

func (f *DuplicateFilter) Description() string {
	return "Rejects items already playing or queued, including remasters of them; covers are allowed"
}

func (f *DuplicateFilter) ReturnCodes() []string {
	return []string{"duplicate"}
}

func (f *DuplicateFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *DuplicateFilter) AppliesTo(kind RequestKind) bool {
	return true
}

func (f *DuplicateFilter) Check(ctx context.Context, req Request, item *content.Item) Result {
	for _, scheduled := range req.Scheduled {
		if scheduled == nil {
			continue
		}
		if scheduled.ID == item.ID || isAlternateVersion(scheduled, item) {
			return Reject("duplicate")
		}
	}
	return Accept()
}

// isAlternateVersion reports whether two items are the same work: the
// normalized names match and the main author is the same.
func isAlternateVersion(a, b *content.Item) bool {
	if normalizeName(a.Name) != normalizeName(b.Name) {
		return false
	}
	return isSameAuthor(a.Author, b.Author)
}

// normalizeName removes remaster information and version details.
func normalizeName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaces.ReplaceAllString(normalized, " ")
	return strings.TrimRight(normalized, " -")
}

// isSameAuthor compares the main (first listed) author, case-insensitively.
func isSameAuthor(a, b string) bool {
	a = mainAuthor(a)
	b = mainAuthor(b)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

func mainAuthor(author string) string {
	first, _, _ := strings.Cut(author, ",")
	return strings.TrimSpace(first)
}

func init() {
	Register("duplicate_filter", func() Filter {
		return &DuplicateFilter{}
	})
}
