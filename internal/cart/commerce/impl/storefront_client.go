package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/fotofoto/filmreturn/internal/cart/commerce"
	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultStoreDomain       = "foto-foto-foto.myshopify.com"
	DefaultStorefrontVersion = "2024-10"

	cartCreateMutation = `
mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart {
      checkoutUrl
    }
    userErrors {
      field
      message
      code
    }
  }
}`
)

// StorefrontClient calls the Shopify Storefront GraphQL API.
type StorefrontClient struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
}

func StorefrontEndpoint(storeDomain string, apiVersion string) string {
	return fmt.Sprintf("https://%s/api/%s/graphql.json", storeDomain, apiVersion)
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type cartInputPayload struct {
	Lines         []commerce.Line `json:"lines"`
	DiscountCodes []string        `json:"discountCodes,omitempty"`
	BuyerIdentity *struct {
		Email string `json:"email"`
	} `json:"buyerIdentity,omitempty"`
}

type cartCreateResponse struct {
	Data *struct {
		CartCreate *struct {
			Cart *struct {
				CheckoutURL string `json:"checkoutUrl"`
			} `json:"cart"`
			UserErrors []commerce.UserError `json:"userErrors"`
		} `json:"cartCreate"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *StorefrontClient) CreateCart(ctx context.Context, input commerce.CartInput) (commerce.CartResult, error) {
	defer metrics.BenchmarkMethod(time.Now(), "storefront.cart_create", nil)
	payload := cartInputPayload{Lines: input.Lines, DiscountCodes: input.DiscountCodes}
	if input.BuyerEmail != "" {
		payload.BuyerIdentity = &struct {
			Email string `json:"email"`
		}{Email: input.BuyerEmail}
	}
	body, err := json.Marshal(graphQLRequest{
		Query:     cartCreateMutation,
		Variables: map[string]interface{}{"input": payload},
	})
	if err != nil {
		return commerce.CartResult{}, errors.Wrap(err, "storefront: encode cartCreate")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return commerce.CartResult{}, errors.Wrap(err, "storefront: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Shopify-Storefront-Private-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return commerce.CartResult{}, errors.Wrap(err, "storefront: cartCreate")
	}
	defer resp.Body.Close()
	respBody, err := ioutil.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return commerce.CartResult{}, errors.Wrap(err, "storefront: read response")
	}

	var decoded cartCreateResponse
	decodeErr := json.Unmarshal(respBody, &decoded)
	// userErrors win over whatever the status line says.
	if decodeErr == nil && decoded.Data != nil && decoded.Data.CartCreate != nil &&
		len(decoded.Data.CartCreate.UserErrors) > 0 {
		return commerce.CartResult{UserErrors: decoded.Data.CartCreate.UserErrors}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().Int("status", resp.StatusCode).Str("body", string(respBody)).Msg("storefront api error")
		return commerce.CartResult{}, errors.Errorf("storefront: status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return commerce.CartResult{}, errors.Wrap(decodeErr, "storefront: decode response")
	}
	if len(decoded.Errors) > 0 {
		messages := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			messages = append(messages, e.Message)
		}
		return commerce.CartResult{}, errors.Errorf("storefront: graphql errors: %s", strings.Join(messages, "; "))
	}
	var result commerce.CartResult
	if decoded.Data != nil && decoded.Data.CartCreate != nil && decoded.Data.CartCreate.Cart != nil {
		result.CheckoutURL = decoded.Data.CartCreate.Cart.CheckoutURL
	}
	return result, nil
}
