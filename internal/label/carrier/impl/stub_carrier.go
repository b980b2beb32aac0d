package impl

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"

	"github.com/fotofoto/filmreturn/internal/label/carrier"

	"github.com/rs/zerolog/log"
)

const stubLabelURL = "https://placehold.co/400x200/f0f0f0/999?text=Replacement+Label"

// StubCarrier stands in for the carrier when no API key is configured. It
// quotes a fixed rate sheet and "buys" labels without charging anyone.
type StubCarrier struct {
	purchases int64
}

func (s *StubCarrier) CreateReturnShipment(
	ctx context.Context,
	shipment carrier.ReturnShipment,
) (carrier.Quote, error) {
	log.Info().Str("reference", shipment.Reference).Msg("[STUB] creating return shipment")
	return carrier.Quote{
		ShipmentID: "shp_stub",
		Rates: []carrier.Rate{
			{ID: "rate_stub_priority", Carrier: "USPS", Service: "Priority", PriceCents: 910, EstDeliveryDays: 2},
			{ID: "rate_stub_ground", Carrier: "USPS", Service: "GroundAdvantage", PriceCents: 525, EstDeliveryDays: 5},
			{ID: "rate_stub_ups", Carrier: "UPS", Service: "Ground", PriceCents: 400, EstDeliveryDays: 4},
		},
	}, nil
}

func (s *StubCarrier) BuyRate(ctx context.Context, shipmentID string, rateID string) (carrier.Purchase, error) {
	n := atomic.AddInt64(&s.purchases, 1)
	log.Info().Str("shipment_id", shipmentID).Str("rate_id", rateID).Msg("[STUB] buying label")
	return carrier.Purchase{
		LabelURL:       stubLabelURL,
		TrackingNumber: fmt.Sprintf("STUB_TRACKING_%d", n),
		TrackingURL:    "",
	}, nil
}

func (s *StubCarrier) FetchLabel(ctx context.Context, labelURL string) ([]byte, string, error) {
	return placeholderLabelPNG(), "image/png", nil
}

func (s *StubCarrier) Purchases() int64 {
	return atomic.LoadInt64(&s.purchases)
}

func placeholderLabelPNG() []byte {
	img := image.NewGray(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.SetGray(x, 0, color.Gray{Y: 0})
		img.SetGray(x, 19, color.Gray{Y: 0})
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
