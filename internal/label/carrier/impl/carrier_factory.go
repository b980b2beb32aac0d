package impl

import (
	"net/http"

	"github.com/fotofoto/filmreturn/internal/label/carrier"

	"github.com/rs/zerolog/log"
)

// MakeCarrier returns the EasyPost carrier, or the stub carrier when no API key is configured.
func MakeCarrier(apiKey string, baseURL string, httpClient *http.Client) carrier.Carrier {
	if apiKey == "" {
		log.Warn().Msg("EASYPOST_API_KEY not set => replacement labels are stubbed")
		return &StubCarrier{}
	}
	if baseURL == "" {
		baseURL = DefaultEasyPostBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &EasyPostCarrier{APIKey: apiKey, BaseURL: baseURL, HTTPClient: httpClient}
}
