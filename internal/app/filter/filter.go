// Package filter provides the filter chain for request validation.
package filter

import (
	"context"
	"sort"

	"github.com/osa030/19radio/internal/domain/content"
)

// RequestKind distinguishes ordinary requests from demands.
type RequestKind int

const (
	KindRequest RequestKind = iota // Fairness-ordered request
	KindDemand                     // Request that jumps to the head of the queue
)

func (k RequestKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindDemand:
		return "demand"
	default:
		return "unknown"
	}
}

// Request carries what filters need to know about a request.
type Request struct {
	RequesterID string
	DisplayName string
	Kind        RequestKind
	Accepting   bool            // Radio is switched on
	Listening   bool            // Requester currently receives output
	Pending     int             // Entries the requester already has queued
	Scheduled   []*content.Item // Item playing now followed by the queued items
}

// Result is the verdict of a filter. Code is empty on acceptance.
type Result struct {
	Accepted bool
	Code     string
}

func Accept() Result { return Result{Accepted: true} }

func Reject(code string) Result { return Result{Code: code} }

// Filter vets a request before it reaches the queue.
type Filter interface {
	// Name is the key of the filter under filters: in the config.
	Name() string
	Description() string
	// ReturnCodes lists the rejection codes Check may produce.
	ReturnCodes() []string
	// ValidateConfig applies the filter's settings block.
	ValidateConfig(settings map[string]any) error
	AppliesTo(kind RequestKind) bool
	Check(ctx context.Context, req Request, item *content.Item) Result
}

var registry = make(map[string]func() Filter)

// Register makes a filter available under name. It is called from init.
func Register(name string, factory func() Filter) {
	if _, dup := registry[name]; dup {
		panic("filter: duplicate registration of " + name)
	}
	registry[name] = factory
}

// New returns a fresh instance of the named filter.
func New(name string) (Filter, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Names returns the registered filter names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
