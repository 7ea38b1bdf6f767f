package ingress

import (
	"context"

	"github.com/nerrad567/gray-logic-telemetry/internal/event"
	"github.com/nerrad567/gray-logic-telemetry/internal/router"
)

// Publisher is the only capability an adapter needs from the core.
// *router.Router satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) (router.PublishResult, error)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev event.Event) (router.PublishResult, error)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, ev event.Event) (router.PublishResult, error) {
	return f(ctx, ev)
}
