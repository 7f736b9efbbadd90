package filter

import (
	"context"

	"github.com/osa030/19radio/internal/domain/content"
)

// ListeningFilter checks if the requester is listening.
type ListeningFilter struct{}

func (f *ListeningFilter) Name() string {
	return "listening_filter"
}

func (f *ListeningFilter) Description() string {
	return "Checks if the requester is present and neither muted nor deafened"
}

func (f *ListeningFilter) ReturnCodes() []string {
	return []string{"not_listening"}
}

func (f *ListeningFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *ListeningFilter) AppliesTo(kind RequestKind) bool {
	return true
}

func (f *ListeningFilter) Check(ctx context.Context, req Request, item *content.Item) Result {
	if !req.Listening {
		return Reject("not_listening")
	}
	return Accept()
}

func init() {
	Register("listening_filter", func() Filter {
		return &ListeningFilter{}
	})
}
