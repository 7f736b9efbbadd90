package filter

import (
	"context"

	"github.com/osa030/19radio/internal/domain/content"
)

// AcceptingFilter rejects every request while the radio is switched off.
// It is always installed first and is not configurable.
type AcceptingFilter struct{}

func (f *AcceptingFilter) Name() string {
	return "accepting_filter"
}

func (f *AcceptingFilter) Description() string {
	return "Checks if the radio is switched on"
}

func (f *AcceptingFilter) ReturnCodes() []string {
	return []string{"radio_off"}
}

func (f *AcceptingFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *AcceptingFilter) AppliesTo(kind RequestKind) bool {
	return true
}

func (f *AcceptingFilter) Check(ctx context.Context, req Request, item *content.Item) Result {
	if !req.Accepting {
		return Reject("radio_off")
	}
	return Accept()
}
