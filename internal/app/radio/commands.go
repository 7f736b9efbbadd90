package radio

import (
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/app/filter"
	"github.com/osa030/19radio/internal/app/playback"
	"github.com/osa030/19radio/internal/app/presence"
	"github.com/osa030/19radio/internal/app/queue"
	"github.com/osa030/19radio/internal/domain/content"
	"github.com/osa030/19radio/internal/domain/preference"
)

// Now returns a snapshot of the session.
func (s *Scheduler) Now() NowPlaying {
	s.mu.Lock()
	defer s.mu.Unlock()

	np := NowPlaying{
		State:     s.player.State().String(),
		Enabled:   s.enabled,
		Listeners: s.presence.Listening(),
		Volume:    s.volume,
		Votes:     s.presence.VoteCount(),
	}
	if sess, ok := s.player.Session(); ok {
		np.Item = sess.Item
		np.Position = s.player.Position()
	}
	return np
}

// VoteSkip records a skip vote. The session ends once every other eligible
// participant is outvoted.
func (s *Scheduler) VoteSkip(ctx context.Context, userID string) VoteResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.presence.Vote(ctx, userID)
	switch {
	case errors.Is(err, presence.ErrNoSession):
		return VoteResult{Code: CodeNothingPlaying}
	case errors.Is(err, presence.ErrNotListening):
		return VoteResult{Code: CodeNotListening}
	case errors.Is(err, presence.ErrAlreadyVoted):
		return VoteResult{Code: CodeAlreadyVoted, Votes: s.presence.VoteCount()}
	case err != nil:
		zlog.Error().Err(err).Msgf("radio: vote failed: session=%s user=%s", s.session, userID)
		return VoteResult{Code: CodeUnavailable}
	}

	zlog.Info().Msgf("radio: skip vote: session=%s user=%s votes=%d eligible=%d", s.session, userID, res.Votes, res.Eligible)
	if res.Passed {
		s.skip()
	}
	return VoteResult{Code: CodeSuccess, Votes: res.Votes, Eligible: res.Eligible, Skipped: res.Passed}
}

// On switches the radio on and starts playback if anyone listens.
func (s *Scheduler) On() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = true
	zlog.Info().Msgf("radio: switched on: session=%s", s.session)
	s.resumeOrStart()
	return CodeSuccess
}

// Off switches the radio off and stops playback.
func (s *Scheduler) Off() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = false
	zlog.Info().Msgf("radio: switched off: session=%s", s.session)
	s.player.Stop()
	return CodeSuccess
}

// SetVolume sets the output volume in percent.
func (s *Scheduler) SetVolume(ctx context.Context, percent int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if percent < 0 || percent > s.settings.MaxVolume {
		return CodeInvalidVolume
	}
	s.volume = percent
	if err := s.env.SetVolume(ctx, percent); err != nil {
		zlog.Warn().Err(err).Msgf("radio: failed to set volume: session=%s volume=%d", s.session, percent)
	}
	return CodeSuccess
}

// Another ends the current session without a vote and starts the next one.
func (s *Scheduler) Another() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return CodeRadioOff
	}
	zlog.Info().Msgf("radio: forced skip: session=%s", s.session)
	s.skip()
	return CodeSuccess
}

// Request queues an item with fairness ordering.
func (s *Scheduler) Request(ctx context.Context, userID, displayName, ref string) RequestResult {
	return s.enqueue(ctx, userID, displayName, ref, filter.KindRequest)
}

// Demand queues an item at the head of the queue.
func (s *Scheduler) Demand(ctx context.Context, userID, displayName, ref string) RequestResult {
	return s.enqueue(ctx, userID, displayName, ref, filter.KindDemand)
}

func (s *Scheduler) enqueue(ctx context.Context, userID, displayName, ref string, kind filter.RequestKind) RequestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, code := s.resolve(ctx, ref)
	if code != CodeSuccess {
		return RequestResult{Code: code, Position: -1}
	}

	req := filter.Request{
		RequesterID: userID,
		DisplayName: displayName,
		Kind:        kind,
		Accepting:   s.enabled,
		Listening:   s.presence.IsListening(userID),
		Pending:     s.queue.CountFor(userID),
		Scheduled:   s.scheduled(),
	}
	if result := s.filters.Execute(ctx, req, item); !result.Accepted {
		zlog.Info().Msgf("radio: %s rejected: session=%s user=%s item=%s code=%s", kind, s.session, userID, item.ShortID(), result.Code)
		return RequestResult{Code: result.Code, Item: item, Position: -1}
	}

	pos, evicted, err := s.queue.Enqueue(item, userID, kind == filter.KindDemand)
	switch {
	case errors.Is(err, queue.ErrDuplicate):
		return RequestResult{Code: CodeDuplicate, Item: item, Position: s.queue.Position(item.ID)}
	case errors.Is(err, queue.ErrFull):
		return RequestResult{Code: CodeQueueFull, Item: item, Position: -1}
	case err != nil:
		return RequestResult{Code: CodeUnavailable, Item: item, Position: -1}
	}

	zlog.Info().Msgf("radio: %s queued: session=%s user=%s item=%s position=%d evicted=%d", kind, s.session, userID, item.ShortID(), pos, len(evicted))
	if s.player.State() == playback.StateIdle {
		s.resumeOrStart()
	}
	return RequestResult{Code: CodeSuccess, Item: item, Position: pos, Evicted: evicted}
}

// Withdraw removes queued entries of userID. An empty ref withdraws every
// entry; otherwise only the referenced entry, if the user owns it.
func (s *Scheduler) Withdraw(ctx context.Context, userID, ref string) WithdrawResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(ref) == "" {
		removed := s.queue.Withdraw(userID)
		zlog.Info().Msgf("radio: withdrawn: session=%s user=%s removed=%d", s.session, userID, removed)
		return WithdrawResult{Code: CodeSuccess, Removed: removed}
	}

	item, code := s.resolve(ctx, ref)
	if code != CodeSuccess {
		return WithdrawResult{Code: code}
	}
	for _, e := range s.queue.List() {
		if e.Item.ID == item.ID && e.RequesterID == userID {
			s.queue.RemoveByContentID(item.ID)
			zlog.Info().Msgf("radio: withdrawn: session=%s user=%s item=%s", s.session, userID, item.ShortID())
			return WithdrawResult{Code: CodeSuccess, Removed: 1}
		}
	}
	return WithdrawResult{Code: CodeNotFound}
}

// Next previews the n best scored items for the current listening set.
func (s *Scheduler) Next(ctx context.Context, n int, explain bool) []Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rank(ctx, n, explain)
}

// Queue returns the queued entries in order.
func (s *Scheduler) Queue() []queue.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.List()
}

// History returns the recently played items, most recent first.
func (s *Scheduler) History() []*content.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.history.Recent()
}

// Priorities lists the keyword preferences of userID.
func (s *Scheduler) Priorities(userID string) []KeywordLevel {
	if s.prefs == nil {
		return nil
	}
	prefs := s.prefs.Preferences(userID)
	if prefs == nil {
		return []KeywordLevel{}
	}
	out := make([]KeywordLevel, 0, len(prefs.Levels))
	for _, k := range prefs.Keywords() {
		out = append(out, KeywordLevel{Keyword: k, Level: prefs.Levels[k].String()})
	}
	return out
}

// SetPriority stores a keyword preference of userID.
func (s *Scheduler) SetPriority(ctx context.Context, userID, keyword, level string) PreferenceResult {
	if s.prefs == nil {
		return PreferenceResult{Code: CodeUnavailable}
	}
	lvl, err := preference.ParseLevel(level)
	if err != nil {
		return PreferenceResult{Code: CodeInvalidLevel}
	}

	normalized, err := s.prefs.SetPreference(ctx, userID, keyword, lvl, s.settings.MaxPreferences)
	switch {
	case errors.Is(err, content.ErrInvalidKeyword):
		return PreferenceResult{Code: CodeInvalidKeyword}
	case errors.Is(err, preference.ErrLimitReached):
		return PreferenceResult{Code: CodePreferenceLimit}
	case errors.Is(err, preference.ErrInvalidLevel):
		return PreferenceResult{Code: CodeInvalidLevel}
	case err != nil:
		zlog.Error().Err(err).Msgf("radio: failed to store preference: user=%s", userID)
		return PreferenceResult{Code: CodeUnavailable}
	}
	return PreferenceResult{Code: CodeSuccess, Keyword: normalized, Level: lvl.String()}
}

// ClearPriority removes a keyword preference of userID.
func (s *Scheduler) ClearPriority(ctx context.Context, userID, keyword string) PreferenceResult {
	if s.prefs == nil {
		return PreferenceResult{Code: CodeUnavailable}
	}
	normalized, err := content.NormalizeKeyword(keyword)
	if err != nil {
		return PreferenceResult{Code: CodeInvalidKeyword}
	}
	cleared, err := s.prefs.ClearPreference(ctx, userID, normalized)
	if err != nil {
		zlog.Error().Err(err).Msgf("radio: failed to clear preference: user=%s", userID)
		return PreferenceResult{Code: CodeUnavailable}
	}
	if !cleared {
		return PreferenceResult{Code: CodeNotFound, Keyword: normalized}
	}
	return PreferenceResult{Code: CodeSuccess, Keyword: normalized}
}

// Rate records userID's rating of the referenced item: +1, -1, or 0 to clear.
func (s *Scheduler) Rate(ctx context.Context, userID, ref string, rating int) RequestResult {
	if rating < -1 || rating > 1 {
		return RequestResult{Code: CodeInvalidRating, Position: -1}
	}
	if s.prefs == nil {
		return RequestResult{Code: CodeUnavailable, Position: -1}
	}

	s.mu.Lock()
	item, code := s.resolve(ctx, ref)
	s.mu.Unlock()
	if code != CodeSuccess {
		return RequestResult{Code: code, Position: -1}
	}

	if err := s.prefs.Rate(ctx, item.ID, userID, rating); err != nil {
		zlog.Error().Err(err).Msgf("radio: failed to store rating: user=%s item=%s", userID, item.ShortID())
		return RequestResult{Code: CodeUnavailable, Item: item, Position: -1}
	}
	return RequestResult{Code: CodeSuccess, Item: item, Position: -1}
}

// resolve maps a typed reference to an item. "^N" addresses the N-th most
// recently played item and "^" or "^0" the item selected now; anything else
// is an id fragment resolved by the catalog.
func (s *Scheduler) resolve(ctx context.Context, ref string) (*content.Item, string) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, CodeNotFound
	}

	if rest, ok := strings.CutPrefix(ref, "^"); ok {
		offset := 0
		if rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil || n < 0 {
				return nil, CodeNotFound
			}
			offset = n
		}
		if offset == 0 {
			if sess, ok := s.player.Session(); ok {
				return sess.Item, CodeSuccess
			}
			return nil, CodeNothingPlaying
		}
		item, ok := s.history.At(offset)
		if !ok {
			return nil, CodeNotFound
		}
		return item, CodeSuccess
	}

	id, err := s.catalog.Resolve(ctx, ref)
	switch {
	case errors.Is(err, content.ErrAmbiguous):
		return nil, CodeAmbiguous
	case errors.Is(err, content.ErrNotFound):
		return nil, CodeNotFound
	case err != nil:
		zlog.Error().Err(err).Msgf("radio: failed to resolve reference: ref=%q", ref)
		return nil, CodeUnavailable
	}

	item, err := s.catalog.Get(ctx, id)
	if errors.Is(err, content.ErrNotFound) {
		return nil, CodeNotFound
	}
	if err != nil {
		zlog.Error().Err(err).Msgf("radio: failed to load item: id=%s", id)
		return nil, CodeUnavailable
	}
	return item, CodeSuccess
}

// scheduled returns the item selected now followed by the queued items.
func (s *Scheduler) scheduled() []*content.Item {
	entries := s.queue.List()
	out := make([]*content.Item, 0, len(entries)+1)
	if sess, ok := s.player.Session(); ok {
		out = append(out, sess.Item)
	}
	for _, e := range entries {
		out = append(out, e.Item)
	}
	return out
}
