package impl

import (
	"net/http"

	"github.com/fotofoto/filmreturn/internal/cart/commerce"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type StorefrontConfig struct {
	StoreDomain string
	APIVersion  string
	Token       string
	// Stub must be requested explicitly; a missing token is otherwise a startup error.
	Stub bool
}

func MakeClient(cfg StorefrontConfig, httpClient *http.Client) (commerce.Client, error) {
	if cfg.StoreDomain == "" {
		cfg.StoreDomain = DefaultStoreDomain
	}
	if cfg.Stub {
		log.Warn().Msg("stub commerce requested => carts are not created on Shopify")
		return &StubClient{StoreDomain: cfg.StoreDomain}, nil
	}
	if cfg.Token == "" {
		return nil, errors.New("missing SHOPIFY_STOREFRONT_TOKEN")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultStorefrontVersion
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &StorefrontClient{
		Endpoint:   StorefrontEndpoint(cfg.StoreDomain, cfg.APIVersion),
		Token:      cfg.Token,
		HTTPClient: httpClient,
	}, nil
}
