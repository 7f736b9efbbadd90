package filter

import (
	"context"

	"github.com/osa030/19radio/internal/domain/content"
)

// DemandConfig represents the configuration for DemandFilter.
type DemandConfig struct {
	DisplayNames []string `yaml:"display_names" mapstructure:"display_names"`
}

// DemandFilter restricts demands to privileged display names.
type DemandFilter struct {
	config DemandConfig
}

func (f *DemandFilter) Name() string {
	return "demand_filter"
}

func (f *DemandFilter) Description() string {
	return "Allows demands only from the configured display names"
}

func (f *DemandFilter) ReturnCodes() []string {
	return []string{"demand_not_allowed"}
}

func (f *DemandFilter) ValidateConfig(settings map[string]any) error {
	var config DemandConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = config
	return nil
}

func (f *DemandFilter) AppliesTo(kind RequestKind) bool {
	return kind == KindDemand
}

func (f *DemandFilter) Check(ctx context.Context, req Request, item *content.Item) Result {
	for _, name := range f.config.DisplayNames {
		if name == req.DisplayName {
			return Accept()
		}
	}
	return Reject("demand_not_allowed")
}

func init() {
	Register("demand_filter", func() Filter {
		return &DemandFilter{}
	})
}
