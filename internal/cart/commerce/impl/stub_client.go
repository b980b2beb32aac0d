package impl

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fotofoto/filmreturn/internal/cart/commerce"

	"github.com/rs/zerolog/log"
)

// StubClient fakes cart creation for local development.
type StubClient struct {
	StoreDomain string
	carts       int64
}

func (s *StubClient) CreateCart(ctx context.Context, input commerce.CartInput) (commerce.CartResult, error) {
	n := atomic.AddInt64(&s.carts, 1)
	log.Info().Int("lines", len(input.Lines)).Strs("discount_codes", input.DiscountCodes).Msg("[STUB] cartCreate")
	return commerce.CartResult{CheckoutURL: fmt.Sprintf("https://%s/cart/c/stub-%d", s.StoreDomain, n)}, nil
}
