package filter

import (
	"context"

	"github.com/osa030/19radio/internal/domain/content"
)

// PendingLimitConfig represents the configuration for PendingLimitFilter.
type PendingLimitConfig struct {
	MaxPending   int      `yaml:"max_pending" mapstructure:"max_pending" default:"3" validate:"gte=1"`
	DisplayNames []string `yaml:"display_names" mapstructure:"display_names"` // Exempt requesters
}

// PendingLimitFilter limits how many entries one requester may have queued.
type PendingLimitFilter struct {
	config PendingLimitConfig
}

func (f *PendingLimitFilter) Name() string {
	return "pending_limit_filter"
}

func (f *PendingLimitFilter) Description() string {
	return "Checks if the requester already has too many entries waiting to be played"
}

func (f *PendingLimitFilter) ReturnCodes() []string {
	return []string{"pending_limit"}
}

func (f *PendingLimitFilter) ValidateConfig(settings map[string]any) error {
	var config PendingLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	return nil
}

func (f *PendingLimitFilter) AppliesTo(kind RequestKind) bool {
	return kind == KindRequest
}

func (f *PendingLimitFilter) Check(ctx context.Context, req Request, item *content.Item) Result {
	for _, name := range f.config.DisplayNames {
		if name == req.DisplayName {
			return Accept()
		}
	}

	max := f.config.MaxPending
	if max == 0 {
		max = 3
	}
	if req.Pending >= max {
		return Reject("pending_limit")
	}
	return Accept()
}

func init() {
	Register("pending_limit_filter", func() Filter {
		return &PendingLimitFilter{}
	})
}
