// Package priority scores catalog items for automatic selection.
//
// A score is produced by folding an ordered list of named terms over a
// running total. Each term reads the item, the current listener set and its
// own collaborators, and returns the new running total.
package priority

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/osa030/19radio/internal/domain/content"
	"github.com/osa030/19radio/internal/domain/preference"
)

// RankSource provides aggregated participant ratings.
type RankSource interface {
	// TotalRank returns the sum of every rating given to the item.
	TotalRank(itemID string) int
	// RankAmong returns the sum of the ratings given to the item by users.
	RankAmong(itemID string, users []string) int
}

// QueuePositions reports where an item sits in the request queue.
type QueuePositions interface {
	// Position returns the zero-based index of id, or -1 if it is not queued.
	Position(id string) int
	MaxSize() int
}

// Timestamps exposes the recency information kept by the history tracker.
type Timestamps interface {
	LastPlayed(item *content.Item) (time.Time, bool)
	LastRequested(id string) (time.Time, bool)
}

// PreferenceSource looks up a participant's preference for a keyword.
type PreferenceSource interface {
	Level(userID, keyword string) (preference.Level, bool)
}

// Input is the context a term is evaluated against.
type Input struct {
	Item      *content.Item
	Listeners []string
	Now       time.Time
}

// Term is one step of the scoring chain.
type Term interface {
	Name() string
	Apply(score float64, in *Input) float64
}

// Step records the running total after a term was applied.
type Step struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Sources bundles the collaborators of the scoring terms.
// Nil collaborators disable the terms that need them.
type Sources struct {
	Ranks       RankSource
	Queue       QueuePositions
	History     Timestamps
	Preferences PreferenceSource
	Now         func() time.Time
	Rand        func() float64
}

// Engine applies the scoring terms in order.
type Engine struct {
	terms []Term
	now   func() time.Time
}

// NewEngine builds the default term chain from settings.
func NewEngine(settings Settings, src Sources) (*Engine, error) {
	modifiers, err := compileModifiers(settings.GlobalKeywords)
	if err != nil {
		return nil, err
	}
	if src.Now == nil {
		src.Now = time.Now
	}
	if src.Rand == nil {
		src.Rand = NewRand().Float64
	}

	terms := []Term{
		BaseTerm{Value: settings.Base},
		JitterTerm{Min: settings.JitterMin, Max: settings.JitterMax, Rand: src.Rand},
		RankTerm{
			Source:             src.Ranks,
			GlobalMultiplier:   settings.GlobalRankMultiplier,
			ListenerMultiplier: settings.ListenerRankMultiplier,
		},
		QueueTerm{Queue: src.Queue, Bonus: settings.QueueBonus, PositionBonus: settings.QueuePositionBonus},
		LengthTerm(settings.Length),
		RecencyTerm{
			Label:    "last_played",
			Settings: settings.LastPlayed,
			Lookup: func(item *content.Item) (time.Time, bool) {
				if src.History == nil {
					return time.Time{}, false
				}
				return src.History.LastPlayed(item)
			},
		},
		RecencyTerm{
			Label:    "last_requested",
			Settings: settings.LastRequested,
			Lookup: func(item *content.Item) (time.Time, bool) {
				if src.History == nil {
					return time.Time{}, false
				}
				return src.History.LastRequested(item.ID)
			},
		},
		PreferenceTerm{
			Source:         src.Preferences,
			HighMultiplier: settings.PreferenceHighMultiplier,
			LowMultiplier:  settings.PreferenceLowMultiplier,
		},
		GlobalKeywordTerm{Modifiers: modifiers},
	}

	return &Engine{terms: terms, now: src.Now}, nil
}

// NewEngineWithTerms builds an engine from an explicit term chain.
func NewEngineWithTerms(now func() time.Time, terms ...Term) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{terms: terms, now: now}
}

// Score returns the priority of item for the given listening participants.
func (e *Engine) Score(item *content.Item, listeners []string) float64 {
	in := &Input{Item: item, Listeners: listeners, Now: e.now()}
	score := 0.0
	for _, t := range e.terms {
		score = t.Apply(score, in)
	}
	return score
}

// Explain returns the running total after each term.
func (e *Engine) Explain(item *content.Item, listeners []string) []Step {
	in := &Input{Item: item, Listeners: listeners, Now: e.now()}
	steps := make([]Step, 0, len(e.terms))
	score := 0.0
	for _, t := range e.terms {
		score = t.Apply(score, in)
		steps = append(steps, Step{Term: t.Name(), Score: score})
	}
	return steps
}

// TermNames returns the names of the terms in application order.
func (e *Engine) TermNames() []string {
	names := make([]string, len(e.terms))
	for i, t := range e.terms {
		names[i] = t.Name()
	}
	return names
}

// NewRand returns a math/rand generator seeded from crypto/rand.
func NewRand() *rand.Rand {
	var cryptoSeed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		cryptoSeed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		cryptoSeed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(cryptoSeed))
}
