package wizard

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

const DefaultCameraID = "0000"

// EntryParams are read once, when a session starts.
type EntryParams struct {
	CameraID     string
	LabelToken   string
	DiscountCode string
	DiscountPct  float64
	Email        string
}

// ParseEntryParams reads cid, lt, discount, discount_pct and email. A
// discount_pct that is not a number in (0, 100] counts as absent.
func ParseEntryParams(q url.Values) EntryParams {
	p := EntryParams{
		CameraID:     strings.TrimSpace(q.Get("cid")),
		LabelToken:   strings.TrimSpace(q.Get("lt")),
		DiscountCode: strings.TrimSpace(q.Get("discount")),
		Email:        strings.TrimSpace(q.Get("email")),
	}
	if p.CameraID == "" {
		p.CameraID = DefaultCameraID
	}
	if pct, err := strconv.ParseFloat(strings.TrimSpace(q.Get("discount_pct")), 64); err == nil && validDiscountPct(pct) {
		p.DiscountPct = pct
	}
	return p
}

func validDiscountPct(pct float64) bool {
	return !math.IsNaN(pct) && !math.IsInf(pct, 0) && pct > 0 && pct <= 100
}

func (p EntryParams) Flow() Flow {
	if p.LabelToken != "" {
		return FastTrackFlow
	}
	return StandardFlow
}
