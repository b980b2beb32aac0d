package sink

import "context"

type Event struct {
	Name       string
	Email      string
	Properties map[string]interface{}
}

// Sink delivers lifecycle events to the marketing platform.
type Sink interface {
	Send(ctx context.Context, event Event) error
}
