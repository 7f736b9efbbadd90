package radio

import (
	"context"
	"math"
	"sort"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/domain/content"
)

// dequeue selects the next item. It scores every catalog item against the
// listening set and picks uniformly among those within tolerance of the best.
// A picked item that was queued leaves the queue and counts as requested.
func (s *Scheduler) dequeue() *content.Item {
	items := s.loadItems(context.Background())
	if len(items) == 0 {
		return nil
	}

	listening := s.presence.Listening()
	scores := make([]float64, len(items))
	best := math.Inf(-1)
	for i, item := range items {
		scores[i] = s.engine.Score(item, listening)
		if scores[i] > best {
			best = scores[i]
		}
	}

	eligible := make([]*content.Item, 0, len(items))
	for i, item := range items {
		if scores[i] >= best-s.settings.Tolerance {
			eligible = append(eligible, item)
		}
	}

	chosen := eligible[s.rng.Intn(len(eligible))]
	if _, ok := s.queue.RemoveByContentID(chosen.ID); ok {
		s.history.MarkRequested(chosen.ID)
	}
	zlog.Debug().Msgf("radio: dequeued: session=%s item=%s eligible=%d best=%.3f", s.session, chosen.ShortID(), len(eligible), best)
	return chosen
}

// loadItems fetches every catalog item. Items that fail to load are skipped.
func (s *Scheduler) loadItems(ctx context.Context) []*content.Item {
	ids, err := s.catalog.IDs(ctx)
	if err != nil {
		zlog.Error().Err(err).Msgf("radio: failed to list catalog: session=%s", s.session)
		return nil
	}
	items := make([]*content.Item, 0, len(ids))
	for _, id := range ids {
		item, err := s.catalog.Get(ctx, id)
		if err != nil {
			zlog.Warn().Err(err).Msgf("radio: failed to load item: session=%s id=%s", s.session, id)
			continue
		}
		items = append(items, item)
	}
	return items
}

// rank scores every catalog item and returns the top n, best first.
func (s *Scheduler) rank(ctx context.Context, n int, explain bool) []Candidate {
	items := s.loadItems(ctx)
	listening := s.presence.Listening()

	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		c := Candidate{Item: item}
		if explain {
			c.Steps = s.engine.Explain(item, listening)
			if len(c.Steps) > 0 {
				c.Score = c.Steps[len(c.Steps)-1].Score
			}
		} else {
			c.Score = s.engine.Score(item, listening)
		}
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
