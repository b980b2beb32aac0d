package impl

import (
	"context"

	"github.com/fotofoto/filmreturn/internal/events/sink"

	"github.com/rs/zerolog/log"
)

// StubSink logs events instead of sending them.
type StubSink struct{}

func (StubSink) Send(ctx context.Context, event sink.Event) error {
	log.Info().
		Str("event", event.Name).
		Str("email", event.Email).
		Interface("properties", event.Properties).
		Msg("[STUB] klaviyo event")
	return nil
}
