package commerce

import "context"

// Client creates carts on the commerce platform. A returned error means no
// usable response; merchant rejections come back as UserErrors.
type Client interface {
	CreateCart(ctx context.Context, input CartInput) (CartResult, error)
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Line struct {
	MerchandiseID string      `json:"merchandiseId"`
	Quantity      int         `json:"quantity"`
	Attributes    []Attribute `json:"attributes,omitempty"`
}

type CartInput struct {
	Lines         []Line
	DiscountCodes []string
	BuyerEmail    string
}

type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

type CartResult struct {
	CheckoutURL string
	UserErrors  []UserError
}
