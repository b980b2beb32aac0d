package label

import (
	"context"
	"time"

	"github.com/fotofoto/filmreturn/internal/address"
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label/carrier"
	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/rs/zerolog/log"
)

const (
	DefaultEligibleCarrier = "USPS"
	DefaultCallTimeout     = 15 * time.Second

	labelGenerationFailedMsg = "Something went wrong generating your label. Please try again."
)

// ReplacementLabel is a freshly purchased return label. Label is the
// downloaded image, or the carrier's hosted URL when the download failed.
type ReplacementLabel struct {
	Label          Ref
	LabelURL       string
	TrackingNumber string
	TrackingURL    string
}

// Service obtains return labels, either from a customer photo or by buying a
// replacement from the carrier.
type Service struct {
	Carrier         carrier.Carrier
	EligibleCarrier string
	CallTimeout     time.Duration
}

func MakeService(c carrier.Carrier, eligibleCarrier string, callTimeout time.Duration) *Service {
	if eligibleCarrier == "" {
		eligibleCarrier = DefaultEligibleCarrier
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Service{Carrier: c, EligibleCarrier: eligibleCarrier, CallTimeout: callTimeout}
}

// CaptureLocalImage wraps a customer photo. No network involved.
func (s *Service) CaptureLocalImage(data []byte, mimeType string) (CapturedImage, error) {
	if len(data) == 0 {
		return CapturedImage{}, failure.New(failure.InvalidImage, "The label photo is empty. Please retake it.")
	}
	return CapturedImage{Data: data, MimeType: mimeType, Source: Camera}, nil
}

// RequestReplacementLabel buys a real, billable label. Callers must not
// repeat it for the same customer action.
func (s *Service) RequestReplacementLabel(
	ctx context.Context,
	cameraID string,
	email string,
	addr address.Address,
) (replacement ReplacementLabel, err error) {
	if err := address.Validate(addr); err != nil {
		return ReplacementLabel{}, err
	}
	defer metrics.BenchmarkMethod(time.Now(), "label.replacement", nil)
	defer func() { metrics.Outcome("label.purchase", err) }()

	logger := log.With().Str("camera_id", cameraID).Str("email", email).Logger()
	logger.Info().Msg("creating return label")

	quoteCtx, cancel := context.WithTimeout(ctx, s.CallTimeout)
	quote, err := s.Carrier.CreateReturnShipment(quoteCtx, carrier.ReturnShipment{
		Customer:    addr,
		Lab:         carrier.FotoFotoLab,
		Parcel:      carrier.SingleUseCameraMailer,
		LabelFormat: "PNG",
		Reference:   cameraID,
	})
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("carrier shipment creation failed")
		return ReplacementLabel{}, failure.Wrap(err, failure.LabelGenerationFailed, labelGenerationFailedMsg)
	}

	rate, err := CheapestEligible(quote.Rates, s.EligibleCarrier)
	if err != nil {
		logger.Error().Int("rates", len(quote.Rates)).Msg("no eligible rates returned")
		return ReplacementLabel{}, err
	}
	logger.Info().
		Str("service", rate.Service).
		Int64("price_cents", rate.PriceCents).
		Int("est_delivery_days", rate.EstDeliveryDays).
		Msg("buying return label")

	buyCtx, cancel := context.WithTimeout(ctx, s.CallTimeout)
	purchase, err := s.Carrier.BuyRate(buyCtx, quote.ShipmentID, rate.ID)
	cancel()
	if err != nil {
		logger.Error().Err(err).Str("shipment_id", quote.ShipmentID).Msg("label purchase failed")
		return ReplacementLabel{}, failure.Wrap(err, failure.LabelGenerationFailed, labelGenerationFailedMsg)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.CallTimeout)
	data, mimeType, err := s.Carrier.FetchLabel(fetchCtx, purchase.LabelURL)
	cancel()
	if err == nil && len(data) == 0 {
		err = failure.New(failure.LabelGenerationFailed, "carrier returned an empty label")
	}
	purchased := ReplacementLabel{
		Label:          CapturedImage{Data: data, MimeType: mimeType, Source: Replacement},
		LabelURL:       purchase.LabelURL,
		TrackingNumber: purchase.TrackingNumber,
		TrackingURL:    purchase.TrackingURL,
	}
	if err != nil {
		// Already paid for; keep the carrier's copy rather than buying again.
		logger.Warn().Err(err).
			Str("tracking_number", purchase.TrackingNumber).
			Str("label_url", purchase.LabelURL).
			Msg("purchased label could not be fetched, using carrier url")
		metrics.Incr("label.fetch_fallback", nil)
		purchased.Label = HostedURL{URL: purchase.LabelURL, Source: Replacement}
	}

	logger.Info().Str("tracking_number", purchase.TrackingNumber).Msg("return label purchased")
	return purchased, nil
}
