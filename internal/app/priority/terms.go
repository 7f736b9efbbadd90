package priority

import (
	"math"
	"time"

	"github.com/osa030/19radio/internal/domain/content"
)

// BaseTerm adds a constant.
type BaseTerm struct {
	Value float64
}

func (t BaseTerm) Name() string { return "base" }

func (t BaseTerm) Apply(score float64, _ *Input) float64 {
	return score + t.Value
}

// JitterTerm adds a uniform random value in [Min, Max].
type JitterTerm struct {
	Min  float64
	Max  float64
	Rand func() float64
}

func (t JitterTerm) Name() string { return "jitter" }

func (t JitterTerm) Apply(score float64, _ *Input) float64 {
	if t.Min == 0 && t.Max == 0 || t.Rand == nil {
		return score
	}
	return score + t.Min + t.Rand()*(t.Max-t.Min)
}

// RankTerm adds participant ratings. The rating total over every rater and
// the total over the current listeners have separate multipliers.
type RankTerm struct {
	Source             RankSource
	GlobalMultiplier   float64
	ListenerMultiplier float64
}

func (t RankTerm) Name() string { return "rank" }

func (t RankTerm) Apply(score float64, in *Input) float64 {
	if t.Source == nil {
		return score
	}
	score += float64(t.Source.TotalRank(in.Item.ID)) * t.GlobalMultiplier
	if len(in.Listeners) > 0 {
		score += float64(t.Source.RankAmong(in.Item.ID, in.Listeners)) * t.ListenerMultiplier
	}
	return score
}

// QueueTerm favours queued items, earlier positions more.
type QueueTerm struct {
	Queue         QueuePositions
	Bonus         float64
	PositionBonus float64
}

func (t QueueTerm) Name() string { return "queue_position" }

func (t QueueTerm) Apply(score float64, in *Input) float64 {
	if t.Queue == nil {
		return score
	}
	pos := t.Queue.Position(in.Item.ID)
	if pos < 0 {
		return score
	}
	return score + t.Bonus + t.PositionBonus*float64(t.Queue.MaxSize()-pos-1)
}

// LengthTerm rewards items whose length falls in the ideal window.
type LengthTerm LengthSettings

func (t LengthTerm) Name() string { return "length" }

func (t LengthTerm) Apply(score float64, in *Input) float64 {
	return score + t.bonus(in.Item.Length)
}

func (t LengthTerm) bonus(length time.Duration) float64 {
	switch {
	case t.Bonus == 0 || length <= 0:
		return 0
	case length < t.IdealMin:
		return t.Bonus * float64(length) / float64(t.IdealMin)
	case length <= t.IdealMax:
		return t.Bonus
	case length < t.Cutoff:
		return t.Bonus * float64(t.Cutoff-length) / float64(t.Cutoff-t.IdealMax)
	default:
		return 0
	}
}

// RecencyTerm penalises items whose timestamp is inside the lookback window.
//
// The penalty is scaled by coef = (ts - now + W) / W. The running total is
// then multiplied by 1 + (Multiplier-1)*coef when positive, or by
// |Multiplier-1| otherwise.
type RecencyTerm struct {
	Label    string
	Settings RecencySettings
	Lookup   func(item *content.Item) (time.Time, bool)
}

func (t RecencyTerm) Name() string { return "recency(" + t.Label + ")" }

func (t RecencyTerm) Apply(score float64, in *Input) float64 {
	if t.Lookup == nil || t.Settings.Window <= 0 {
		return score
	}
	ts, ok := t.Lookup(in.Item)
	if !ok {
		return score
	}
	coef := Coefficient(ts, in.Now, t.Settings.Window)
	if coef <= 0 {
		return score
	}
	return ApplyRecency(score, coef, t.Settings.Penalty, t.Settings.Multiplier)
}

// Coefficient returns (ts - now + window) / window clamped to [0, 1].
func Coefficient(ts, now time.Time, window time.Duration) float64 {
	coef := float64(ts.Sub(now)+window) / float64(window)
	return math.Max(0, math.Min(1, coef))
}

// ApplyRecency applies a recency penalty with the sign-dependent blend.
func ApplyRecency(score, coef, penalty, multiplier float64) float64 {
	score += coef * penalty
	if score > 0 {
		return score * (1 + (multiplier-1)*coef)
	}
	return score * math.Abs(multiplier-1)
}

// PreferenceTerm adds the stored keyword preferences of every listener.
type PreferenceTerm struct {
	Source         PreferenceSource
	HighMultiplier float64
	LowMultiplier  float64
}

func (t PreferenceTerm) Name() string { return "preference" }

func (t PreferenceTerm) Apply(score float64, in *Input) float64 {
	if t.Source == nil {
		return score
	}
	for _, user := range in.Listeners {
		for _, kw := range in.Item.Keywords {
			level, ok := t.Source.Level(user, kw)
			if !ok {
				continue
			}
			if level > 0 {
				score += float64(level) * t.HighMultiplier
			} else {
				score += float64(level) * t.LowMultiplier
			}
		}
	}
	return score
}

// GlobalKeywordTerm applies the configured keyword modifiers.
type GlobalKeywordTerm struct {
	Modifiers []compiledModifier
}

func (t GlobalKeywordTerm) Name() string { return "global_keyword" }

func (t GlobalKeywordTerm) Apply(score float64, in *Input) float64 {
	for _, m := range t.Modifiers {
		if !in.Item.HasKeyword(m.Keyword) || !m.window.Contains(in.Now) {
			continue
		}
		score = score*m.Multiplier + m.Bonus
	}
	return score
}

// NewGlobalKeywordTerm compiles the modifiers into a term.
func NewGlobalKeywordTerm(mods []KeywordModifier) (GlobalKeywordTerm, error) {
	compiled, err := compileModifiers(mods)
	if err != nil {
		return GlobalKeywordTerm{}, err
	}
	return GlobalKeywordTerm{Modifiers: compiled}, nil
}
