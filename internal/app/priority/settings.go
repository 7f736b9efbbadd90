package priority

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19radio/internal/domain/content"
)

// ErrInvalidMonthDay is returned for a malformed MM-DD date.
var ErrInvalidMonthDay = errors.New("invalid month-day")

// Settings holds the tunables of the default term chain.
type Settings struct {
	Base      float64
	JitterMin float64
	JitterMax float64

	GlobalRankMultiplier   float64
	ListenerRankMultiplier float64

	QueueBonus         float64
	QueuePositionBonus float64

	Length        LengthSettings
	LastPlayed    RecencySettings
	LastRequested RecencySettings

	PreferenceHighMultiplier float64
	PreferenceLowMultiplier  float64

	GlobalKeywords []KeywordModifier
}

// LengthSettings shapes the score by item length.
type LengthSettings struct {
	IdealMin time.Duration
	IdealMax time.Duration
	Cutoff   time.Duration
	Bonus    float64
}

// RecencySettings configures one recency decay term.
type RecencySettings struct {
	Window     time.Duration
	Penalty    float64
	Multiplier float64
}

// KeywordModifier adjusts the score of items carrying Keyword.
// From and Until are optional MM-DD bounds, evaluated ignoring the year.
type KeywordModifier struct {
	Keyword    string
	Multiplier float64
	Bonus      float64
	From       string
	Until      string
}

// MonthDay is a calendar date without a year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// ParseMonthDay parses an MM-DD string.
func ParseMonthDay(s string) (MonthDay, error) {
	t, err := time.Parse("01-02", s)
	if err != nil {
		return MonthDay{}, errors.Wrapf(ErrInvalidMonthDay, "%q", s)
	}
	return MonthDay{Month: t.Month(), Day: t.Day()}, nil
}

func (m MonthDay) ordinal() int {
	return int(m.Month)*100 + m.Day
}

func (m MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(m.Month), m.Day)
}

// DateWindow is an optional month-day range. A window whose From is after
// its Until wraps around the new year.
type DateWindow struct {
	From  *MonthDay
	Until *MonthDay
}

// Contains reports whether t falls inside the window.
func (w DateWindow) Contains(t time.Time) bool {
	md := MonthDay{Month: t.Month(), Day: t.Day()}.ordinal()
	switch {
	case w.From == nil && w.Until == nil:
		return true
	case w.Until == nil:
		return md >= w.From.ordinal()
	case w.From == nil:
		return md <= w.Until.ordinal()
	case w.From.ordinal() <= w.Until.ordinal():
		return md >= w.From.ordinal() && md <= w.Until.ordinal()
	default:
		return md >= w.From.ordinal() || md <= w.Until.ordinal()
	}
}

type compiledModifier struct {
	KeywordModifier
	window DateWindow
}

func compileModifiers(mods []KeywordModifier) ([]compiledModifier, error) {
	result := make([]compiledModifier, 0, len(mods))
	for _, m := range mods {
		keyword, err := content.NormalizeKeyword(m.Keyword)
		if err != nil {
			return nil, errors.Wrapf(err, "keyword modifier %q", m.Keyword)
		}
		cm := compiledModifier{KeywordModifier: m}
		cm.Keyword = keyword
		if m.From != "" {
			md, err := ParseMonthDay(m.From)
			if err != nil {
				return nil, errors.Wrapf(err, "keyword modifier %s: from", m.Keyword)
			}
			cm.window.From = &md
		}
		if m.Until != "" {
			md, err := ParseMonthDay(m.Until)
			if err != nil {
				return nil, errors.Wrapf(err, "keyword modifier %s: until", m.Keyword)
			}
			cm.window.Until = &md
		}
		result = append(result, cm)
	}
	return result, nil
}
