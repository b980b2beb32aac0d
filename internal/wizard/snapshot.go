package wizard

import (
	"encoding/json"

	"github.com/fotofoto/filmreturn/internal/cart"
	"github.com/fotofoto/filmreturn/internal/label"

	"github.com/pkg/errors"
)

// Snapshot is a wizard's durable state, stored between requests. An
// in-flight operation is never part of it.
type Snapshot struct {
	Flow        Flow
	Step        Step
	Context     Context
	CheckoutURL string
}

func (w *Wizard) Snapshot() Snapshot {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return Snapshot{Flow: w.flow, Step: w.step, Context: w.ctx, CheckoutURL: w.checkoutURL}
}

// Restore rebuilds a wizard from a snapshot.
func Restore(s Snapshot, deps Deps) (*Wizard, error) {
	if !s.Flow.Contains(s.Step) {
		return nil, errors.Errorf("step %s is not part of the %s flow", s.Step, s.Flow)
	}
	return &Wizard{
		deps:        deps,
		flow:        s.Flow,
		step:        s.Step,
		ctx:         s.Context,
		checkoutURL: s.CheckoutURL,
	}, nil
}

type labelJSON struct {
	Kind     string `json:"kind"`
	Token    string `json:"token,omitempty"`
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
	Source   string `json:"source,omitempty"`
}

type snapshotJSON struct {
	Flow         string     `json:"flow"`
	Step         string     `json:"step"`
	CameraID     string     `json:"camera_id"`
	Email        string     `json:"email,omitempty"`
	Format       string     `json:"format,omitempty"`
	Label        *labelJSON `json:"label,omitempty"`
	DiscountCode string     `json:"discount_code,omitempty"`
	DiscountPct  float64    `json:"discount_pct,omitempty"`
	CheckoutURL  string     `json:"checkout_url,omitempty"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Flow:         s.Flow.String(),
		Step:         s.Step.String(),
		CameraID:     s.Context.CameraID,
		Email:        s.Context.Email,
		Format:       s.Context.Format.String(),
		DiscountCode: s.Context.DiscountCode,
		DiscountPct:  s.Context.DiscountPct,
		CheckoutURL:  s.CheckoutURL,
	}
	switch ref := s.Context.Label.(type) {
	case nil:
	case label.FastTrackToken:
		out.Label = &labelJSON{Kind: "token", Token: ref.Token}
	case label.CapturedImage:
		out.Label = &labelJSON{Kind: "image", Data: ref.Data, MimeType: ref.MimeType, Source: ref.Source.String()}
	case label.HostedURL:
		out.Label = &labelJSON{Kind: "url", URL: ref.URL, Source: ref.Source.String()}
	default:
		return nil, errors.Errorf("unknown label type %T", ref)
	}
	return json.Marshal(out)
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	flow, err := ParseFlow(in.Flow)
	if err != nil {
		return err
	}
	step, err := ParseStep(in.Step)
	if err != nil {
		return err
	}
	c := Context{
		CameraID:     in.CameraID,
		Email:        in.Email,
		DiscountCode: in.DiscountCode,
		DiscountPct:  in.DiscountPct,
	}
	if in.Format != "" {
		if c.Format, err = cart.ParseFormat(in.Format); err != nil {
			return err
		}
	}
	if in.Label != nil {
		if c.Label, err = decodeLabel(*in.Label); err != nil {
			return err
		}
	}
	*s = Snapshot{Flow: flow, Step: step, Context: c, CheckoutURL: in.CheckoutURL}
	return nil
}

func decodeLabel(l labelJSON) (label.Ref, error) {
	source, err := label.ParseSource(l.Source)
	if err != nil {
		return nil, err
	}
	switch l.Kind {
	case "token":
		return label.FastTrackToken{Token: l.Token}, nil
	case "image":
		return label.CapturedImage{Data: l.Data, MimeType: l.MimeType, Source: source}, nil
	case "url":
		return label.HostedURL{URL: l.URL, Source: source}, nil
	default:
		return nil, errors.Errorf("unknown label kind %q", l.Kind)
	}
}
