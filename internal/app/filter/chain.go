package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19radio/internal/domain/content"
)

// Chain runs filters in order; the first rejection wins. A nil chain
// accepts everything.
type Chain struct {
	filters []Filter
}

// NewChain creates a chain running filters in the given order.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: append([]Filter(nil), filters...)}
}

// Append adds filters to the end of the chain.
func (c *Chain) Append(filters ...Filter) {
	c.filters = append(c.filters, filters...)
}

// Execute checks req against every filter that applies to its kind.
func (c *Chain) Execute(ctx context.Context, req Request, item *content.Item) Result {
	if c == nil {
		return Accept()
	}
	for _, f := range c.filters {
		if !f.AppliesTo(req.Kind) {
			continue
		}
		if res := f.Check(ctx, req, item); !res.Accepted {
			zlog.Debug().Msgf("filter: rejected: filter=%s code=%s requester=%s item=%s",
				f.Name(), res.Code, req.RequesterID, item.ShortID())
			return res
		}
	}
	return Accept()
}

// Names returns the filter names in execution order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.filters))
	for i, f := range c.filters {
		names[i] = f.Name()
	}
	return names
}
