package wizard

import (
	"github.com/fotofoto/filmreturn/internal/cart"
	"github.com/fotofoto/filmreturn/internal/label"
)

// Context is the data a session collects. Only the Wizard mutates it.
type Context struct {
	CameraID     string
	Email        string
	Format       cart.Format
	Label        label.Ref
	DiscountCode string
	DiscountPct  float64
}

func newContext(p EntryParams) Context {
	c := Context{
		CameraID:     p.CameraID,
		Email:        p.Email,
		DiscountCode: p.DiscountCode,
		DiscountPct:  p.DiscountPct,
	}
	if c.CameraID == "" {
		c.CameraID = DefaultCameraID
	}
	if p.LabelToken != "" {
		c.Label = label.FastTrackToken{Token: p.LabelToken}
	}
	return c
}

func (c Context) cartRequest() cart.Request {
	return cart.Request{
		Format:       c.Format,
		CameraID:     c.CameraID,
		Email:        c.Email,
		Label:        c.Label,
		DiscountCode: c.DiscountCode,
	}
}

func (c Context) price() string {
	return c.Format.DisplayPrice(c.DiscountPct)
}
