package impl

import (
	"net/http"

	"github.com/fotofoto/filmreturn/internal/events/sink"

	"github.com/rs/zerolog/log"
)

func MakeSink(apiKey string, url string, httpClient *http.Client) sink.Sink {
	if apiKey == "" {
		log.Warn().Msg("KLAVIYO_API_KEY not set => events are only logged")
		return StubSink{}
	}
	if url == "" {
		url = DefaultKlaviyoURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &KlaviyoSink{APIKey: apiKey, URL: url, Revision: DefaultKlaviyoRevision, HTTPClient: httpClient}
}
