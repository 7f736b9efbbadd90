package filter

import (
	"context"

	"github.com/osa030/19radio/internal/domain/content"
)

// KeywordBlockConfig represents the configuration for KeywordBlockFilter.
type KeywordBlockConfig struct {
	Keywords []string `yaml:"keywords" mapstructure:"keywords" validate:"required,min=1"`
}

// KeywordBlockFilter rejects items carrying a blocked keyword.
type KeywordBlockFilter struct {
	keywords []string
}

// NewKeywordBlockFilter creates a KeywordBlockFilter with the given keywords.
func NewKeywordBlockFilter(keywords ...string) *KeywordBlockFilter {
	return &KeywordBlockFilter{keywords: content.NormalizeKeywords(keywords)}
}

func (f *KeywordBlockFilter) Name() string {
	return "keyword_block_filter"
}

func (f *KeywordBlockFilter) Description() string {
	return "Rejects items carrying one of the configured keywords"
}

func (f *KeywordBlockFilter) ReturnCodes() []string {
	return []string{"blocked_keyword"}
}

func (f *KeywordBlockFilter) ValidateConfig(settings map[string]any) error {
	var config KeywordBlockConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.keywords = content.NormalizeKeywords(config.Keywords)
	return nil
}

func (f *KeywordBlockFilter) AppliesTo(kind RequestKind) bool {
	return true
}

func (f *KeywordBlockFilter) Check(ctx context.Context, req Request, item *content.Item) Result {
	for _, kw := range f.keywords {
		if item.HasKeyword(kw) {
			return Reject("blocked_keyword")
		}
	}
	return Accept()
}

func init() {
	Register("keyword_block_filter", func() Filter {
		return &KeywordBlockFilter{}
	})
}
