package carrier

import (
	"context"

	"github.com/fotofoto/filmreturn/internal/address"
)

// Carrier is the shipping-label service: quote a return shipment, buy one of
// its rates, then fetch the purchased label image.
type Carrier interface {
	CreateReturnShipment(ctx context.Context, shipment ReturnShipment) (Quote, error)
	BuyRate(ctx context.Context, shipmentID string, rateID string) (Purchase, error)
	FetchLabel(ctx context.Context, labelURL string) (data []byte, mimeType string, err error)
}

type Parcel struct {
	WeightOz float64
	LengthIn float64
	WidthIn  float64
	HeightIn float64
}

type LabAddress struct {
	Company string
	Street1 string
	Street2 string
	City    string
	State   string
	Zip     string
	Phone   string
}

// ReturnShipment describes the shipment in its outbound orientation; the
// carrier swaps sender and recipient on the printed return label.
type ReturnShipment struct {
	Customer    address.Address
	Lab         LabAddress
	Parcel      Parcel
	LabelFormat string
	Reference   string
}

type Rate struct {
	ID              string
	Carrier         string
	Service         string
	PriceCents      int64
	EstDeliveryDays int
}

type Quote struct {
	ShipmentID string
	Rates      []Rate
}

type Purchase struct {
	LabelURL       string
	TrackingNumber string
	TrackingURL    string
}

// FotoFotoLab receives every return shipment.
var FotoFotoLab = LabAddress{
	Company: "FOTO FOTO",
	Street1: "63 Flushing Avenue",
	Street2: "Building 280, Suite 414",
	City:    "Brooklyn",
	State:   "NY",
	Zip:     "11205",
	Phone:   "2012927506",
}

// SingleUseCameraMailer is a single-use camera in its return mailer.
var SingleUseCameraMailer = Parcel{WeightOz: 8, LengthIn: 6, WidthIn: 4, HeightIn: 3}
