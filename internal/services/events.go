package services

import (
	"context"

	"github.com/tasktracker/apiserver/internal/events"
)

// EventPublisher receives a notification after every committed mutation.
// Implementations must not fail the caller; *events.Publisher logs and
// drops publish errors.
type EventPublisher interface {
	Publish(ctx context.Context, evt events.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, events.Event) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
