package cart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fotofoto/filmreturn/internal/cart/commerce"
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label"
	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultCallTimeout = 15 * time.Second

// Request is everything one checkout attempt sends to the commerce platform.
// Label must be a FastTrackToken, a HostedURL or nil.
type Request struct {
	Format       Format
	CameraID     string
	Email        string
	Label        label.Ref
	DiscountCode string
}

// Orchestrator turns a Request into exactly one cartCreate call. It never retries.
type Orchestrator struct {
	Client      commerce.Client
	Variants    map[Format]string
	CallTimeout time.Duration
}

func MakeOrchestrator(client commerce.Client, variants map[Format]string, callTimeout time.Duration) (*Orchestrator, error) {
	for _, f := range []Format{Scans, Prints} {
		if variants[f] == "" {
			return nil, errors.Errorf("missing product variant id for %s", f)
		}
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Orchestrator{Client: client, Variants: variants, CallTimeout: callTimeout}, nil
}

func VariantGID(variantID string) string {
	if strings.HasPrefix(variantID, "gid://") {
		return variantID
	}
	return fmt.Sprintf("gid://shopify/ProductVariant/%s", variantID)
}

// BuildInput maps req onto the cart payload. The return label and camera id
// are line attributes; the discount code is a cart-level code.
func (o *Orchestrator) BuildInput(req Request) (commerce.CartInput, error) {
	variantID, ok := o.Variants[req.Format]
	if !ok || variantID == "" {
		return commerce.CartInput{}, failure.Newf(failure.InvalidInput, "Unknown format %q.", req.Format.String())
	}
	attrs := []commerce.Attribute{{Key: CameraIDAttribute, Value: req.CameraID}}
	switch ref := req.Label.(type) {
	case nil:
	case label.FastTrackToken:
		attrs = append(attrs, commerce.Attribute{Key: ReturnLabelAttribute, Value: ref.Token})
	case label.HostedURL:
		attrs = append(attrs, commerce.Attribute{Key: ReturnLabelAttribute, Value: ref.URL})
	default:
		return commerce.CartInput{}, failure.New(
			failure.InvalidInput, "The return label photo must be uploaded before checkout.",
		)
	}
	input := commerce.CartInput{
		Lines: []commerce.Line{{
			MerchandiseID: VariantGID(variantID),
			Quantity:      1,
			Attributes:    FilterAttributes(attrs),
		}},
		BuyerEmail: strings.TrimSpace(req.Email),
	}
	if code := strings.TrimSpace(req.DiscountCode); KeepAttributeValue(code) {
		input.DiscountCodes = []string{code}
	}
	return input, nil
}

// CreateCart returns the checkout URL. A URL is the only success signal:
// user errors and a missing URL are failures whatever the transport said.
func (o *Orchestrator) CreateCart(ctx context.Context, req Request) (checkoutURL string, err error) {
	input, err := o.BuildInput(req)
	if err != nil {
		return "", err
	}
	defer metrics.BenchmarkMethod(time.Now(), "cart.create", nil)
	defer func() { metrics.Outcome("cart.create", err) }()

	logger := log.With().Str("camera_id", req.CameraID).Str("format", req.Format.String()).Logger()
	callCtx, cancel := context.WithTimeout(ctx, o.CallTimeout)
	defer cancel()
	result, err := o.Client.CreateCart(callCtx, input)
	if err != nil {
		logger.Error().Err(err).Msg("cart creation failed")
		return "", failure.Wrap(err, failure.CartTransportError, "We couldn't reach checkout. Please try again.")
	}
	if len(result.UserErrors) > 0 {
		first := result.UserErrors[0]
		logger.Error().Str("code", first.Code).Str("message", first.Message).Int("count", len(result.UserErrors)).
			Msg("cart rejected by merchant")
		return "", failure.New(failure.CartUserError, first.Message)
	}
	if result.CheckoutURL == "" {
		logger.Error().Msg("no checkout url returned")
		return "", failure.New(failure.CheckoutURLMissing, "No checkout URL returned. Please try again.")
	}
	logger.Info().Str("checkout_url", result.CheckoutURL).Msg("checkout url created")
	return result.CheckoutURL, nil
}
