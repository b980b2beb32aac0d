package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fotofoto/filmreturn/internal/label/carrier"
	"github.com/fotofoto/filmreturn/internal/metrics"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultEasyPostBaseURL = "https://api.easypost.com/v2"

	// Labels are small PNGs; anything bigger is not a label.
	maxLabelBytes = 10 << 20
)

// EasyPostCarrier talks to the EasyPost REST API.
type EasyPostCarrier struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

type easyPostAddress struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
}

type easyPostParcel struct {
	Weight float64 `json:"weight"`
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type easyPostShipmentRequest struct {
	Shipment struct {
		IsReturn    bool            `json:"is_return"`
		ToAddress   easyPostAddress `json:"to_address"`
		FromAddress easyPostAddress `json:"from_address"`
		Parcel      easyPostParcel  `json:"parcel"`
		Options     struct {
			LabelFormat string `json:"label_format"`
		} `json:"options"`
		Reference string `json:"reference,omitempty"`
	} `json:"shipment"`
}

type easyPostRate struct {
	ID              string `json:"id"`
	Carrier         string `json:"carrier"`
	Service         string `json:"service"`
	Rate            string `json:"rate"`
	EstDeliveryDays int    `json:"est_delivery_days"`
}

type easyPostShipment struct {
	ID           string         `json:"id"`
	Rates        []easyPostRate `json:"rates"`
	TrackingCode string         `json:"tracking_code"`
	PostageLabel *struct {
		LabelURL string `json:"label_url"`
	} `json:"postage_label"`
	Tracker *struct {
		PublicURL string `json:"public_url"`
	} `json:"tracker"`
}

func (c *EasyPostCarrier) CreateReturnShipment(
	ctx context.Context,
	shipment carrier.ReturnShipment,
) (carrier.Quote, error) {
	defer metrics.BenchmarkMethod(time.Now(), "easypost.create_shipment", nil)
	var body easyPostShipmentRequest
	// With is_return the carrier swaps the addresses on the printed label, so
	// the customer goes in to_address and the lab in from_address.
	body.Shipment.IsReturn = true
	body.Shipment.ToAddress = easyPostAddress{
		Name:    shipment.Customer.Name,
		Street1: shipment.Customer.Street1,
		Street2: shipment.Customer.Street2,
		City:    shipment.Customer.City,
		State:   shipment.Customer.State,
		Zip:     shipment.Customer.Zip,
		Country: "US",
	}
	body.Shipment.FromAddress = easyPostAddress{
		Company: shipment.Lab.Company,
		Street1: shipment.Lab.Street1,
		Street2: shipment.Lab.Street2,
		City:    shipment.Lab.City,
		State:   shipment.Lab.State,
		Zip:     shipment.Lab.Zip,
		Country: "US",
		Phone:   shipment.Lab.Phone,
	}
	body.Shipment.Parcel = easyPostParcel{
		Weight: shipment.Parcel.WeightOz,
		Length: shipment.Parcel.LengthIn,
		Width:  shipment.Parcel.WidthIn,
		Height: shipment.Parcel.HeightIn,
	}
	body.Shipment.Options.LabelFormat = shipment.LabelFormat
	body.Shipment.Reference = shipment.Reference

	var created easyPostShipment
	if err := c.post(ctx, "/shipments", body, &created); err != nil {
		return carrier.Quote{}, errors.Wrap(err, "easypost: create shipment")
	}
	quote := carrier.Quote{ShipmentID: created.ID, Rates: make([]carrier.Rate, 0, len(created.Rates))}
	for _, r := range created.Rates {
		cents, err := parseRateCents(r.Rate)
		if err != nil {
			log.Warn().Str("rate_id", r.ID).Str("rate", r.Rate).Msg("skipping unparseable easypost rate")
			continue
		}
		quote.Rates = append(quote.Rates, carrier.Rate{
			ID:              r.ID,
			Carrier:         r.Carrier,
			Service:         r.Service,
			PriceCents:      cents,
			EstDeliveryDays: r.EstDeliveryDays,
		})
	}
	log.Info().Str("shipment_id", created.ID).Int("rates", len(quote.Rates)).Msg("easypost shipment created")
	return quote, nil
}

func (c *EasyPostCarrier) BuyRate(ctx context.Context, shipmentID string, rateID string) (carrier.Purchase, error) {
	defer metrics.BenchmarkMethod(time.Now(), "easypost.buy", nil)
	body := map[string]interface{}{"rate": map[string]string{"id": rateID}}
	var bought easyPostShipment
	if err := c.post(ctx, fmt.Sprintf("/shipments/%s/buy", shipmentID), body, &bought); err != nil {
		return carrier.Purchase{}, errors.Wrap(err, "easypost: buy rate")
	}
	if bought.PostageLabel == nil || bought.PostageLabel.LabelURL == "" {
		return carrier.Purchase{}, errors.Errorf("easypost: shipment %s bought without a postage label", shipmentID)
	}
	purchase := carrier.Purchase{
		LabelURL:       bought.PostageLabel.LabelURL,
		TrackingNumber: bought.TrackingCode,
	}
	if bought.Tracker != nil {
		purchase.TrackingURL = bought.Tracker.PublicURL
	}
	return purchase, nil
}

func (c *EasyPostCarrier) FetchLabel(ctx context.Context, labelURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, labelURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "easypost: build label request")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "easypost: fetch label")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("easypost: fetch label: status %d", resp.StatusCode)
	}
	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxLabelBytes))
	if err != nil {
		return nil, "", errors.Wrap(err, "easypost: read label")
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func (c *EasyPostCarrier) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := ioutil.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return errors.Wrap(json.Unmarshal(respBody, out), "decode response")
}

func parseRateCents(rate string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(rate), 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("invalid rate %q", rate)
	}
	return int64(math.Round(f * 100)), nil
}
