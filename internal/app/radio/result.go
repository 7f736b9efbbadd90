package radio

import (
	"encoding/json"
	"time"

	"github.com/osa030/19radio/internal/app/priority"
	"github.com/osa030/19radio/internal/app/queue"
	"github.com/osa030/19radio/internal/domain/content"
)

// Result codes. Request filters add their own codes.
const (
	CodeSuccess         = "success"
	CodeDuplicate       = "duplicate"
	CodeQueueFull       = "queue_full"
	CodeNotFound        = "not_found"
	CodeAmbiguous       = "ambiguous"
	CodeInvalidVolume   = "invalid_volume"
	CodeInvalidKeyword  = "invalid_keyword"
	CodeInvalidLevel    = "invalid_level"
	CodeInvalidRating   = "invalid_rating"
	CodePreferenceLimit = "preference_limit"
	CodeAlreadyVoted    = "already_voted"
	CodeNotListening    = "not_listening"
	CodeNothingPlaying  = "nothing_playing"
	CodeRadioOff        = "radio_off"
	CodeUnavailable     = "unavailable"
)

// NowPlaying is a snapshot of the session.
type NowPlaying struct {
	State     string        `json:"state"`
	Enabled   bool          `json:"enabled"`
	Item      *content.Item `json:"item,omitempty"`
	Position  time.Duration `json:"position"`
	Votes     int           `json:"votes"`
	Listeners []string      `json:"listeners"`
	Volume    int           `json:"volume"`
}

type nowPlayingJSON NowPlaying

// MarshalJSON encodes Position in seconds.
func (n NowPlaying) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		nowPlayingJSON
		Position float64 `json:"position"`
	}{nowPlayingJSON(n), n.Position.Seconds()})
}

func (n *NowPlaying) UnmarshalJSON(data []byte) error {
	aux := struct {
		*nowPlayingJSON
		Position float64 `json:"position"`
	}{nowPlayingJSON: (*nowPlayingJSON)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.Position = time.Duration(aux.Position * float64(time.Second))
	return nil
}

// RequestResult is the outcome of a request or demand.
type RequestResult struct {
	Code     string        `json:"code"`
	Item     *content.Item `json:"item,omitempty"`
	Position int           `json:"position"`
	Evicted  []queue.Entry `json:"evicted,omitempty"`
}

// VoteResult is the outcome of a skip vote.
type VoteResult struct {
	Code     string `json:"code"`
	Votes    int    `json:"votes"`
	Eligible int    `json:"eligible"`
	Skipped  bool   `json:"skipped"`
}

// WithdrawResult is the outcome of a withdrawal.
type WithdrawResult struct {
	Code    string `json:"code"`
	Removed int    `json:"removed"`
}

// PreferenceResult is the outcome of a preference change.
type PreferenceResult struct {
	Code    string `json:"code"`
	Keyword string `json:"keyword,omitempty"`
	Level   string `json:"level,omitempty"`
}

// KeywordLevel is one stored preference.
type KeywordLevel struct {
	Keyword string `json:"keyword"`
	Level   string `json:"level"`
}

// Candidate is an item with its current score.
type Candidate struct {
	Item  *content.Item   `json:"item"`
	Score float64         `json:"score"`
	Steps []priority.Step `json:"steps,omitempty"`
}
