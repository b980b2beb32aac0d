package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/fotofoto/filmreturn/internal/events/sink"

	"github.com/pkg/errors"
)

const (
	DefaultKlaviyoURL      = "https://a.klaviyo.com/api/events/"
	DefaultKlaviyoRevision = "2024-10-15"
)

type KlaviyoSink struct {
	APIKey     string
	URL        string
	Revision   string
	HTTPClient *http.Client
}

type klaviyoEnvelope struct {
	Data klaviyoEventData `json:"data"`
}

type klaviyoEventData struct {
	Type       string                 `json:"type"`
	Attributes klaviyoEventAttributes `json:"attributes"`
}

type klaviyoEventAttributes struct {
	Metric     klaviyoRelated         `json:"metric"`
	Profile    klaviyoRelated         `json:"profile"`
	Properties map[string]interface{} `json:"properties"`
}

type klaviyoRelated struct {
	Data struct {
		Type       string                 `json:"type"`
		Attributes map[string]interface{} `json:"attributes"`
	} `json:"data"`
}

func (k *KlaviyoSink) Send(ctx context.Context, event sink.Event) error {
	var body klaviyoEnvelope
	body.Data.Type = "event"
	body.Data.Attributes.Metric.Data.Type = "metric"
	body.Data.Attributes.Metric.Data.Attributes = map[string]interface{}{"name": event.Name}
	profile := map[string]interface{}{}
	for k, v := range event.Properties {
		profile[k] = v
	}
	profile["email"] = event.Email
	body.Data.Attributes.Profile.Data.Type = "profile"
	body.Data.Attributes.Profile.Data.Attributes = profile
	body.Data.Attributes.Properties = event.Properties
	if body.Data.Attributes.Properties == nil {
		body.Data.Attributes.Properties = map[string]interface{}{}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "klaviyo: encode event")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.URL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "klaviyo: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Klaviyo-API-Key "+k.APIKey)
	req.Header.Set("revision", k.Revision)
	resp, err := k.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "klaviyo: send event")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return errors.Errorf("klaviyo: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
