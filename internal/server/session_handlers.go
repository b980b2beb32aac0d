package server

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fotofoto/filmreturn/internal/address"
	"github.com/fotofoto/filmreturn/internal/cart"
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label"
	"github.com/fotofoto/filmreturn/internal/session"
	"github.com/fotofoto/filmreturn/internal/wizard"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"
)

type sessionView struct {
	ID           string    `json:"id"`
	Flow         string    `json:"flow"`
	Step         string    `json:"step"`
	Steps        []string  `json:"steps"`
	CameraID     string    `json:"cid"`
	Email        string    `json:"email,omitempty"`
	Format       string    `json:"format,omitempty"`
	Price        string    `json:"price,omitempty"`
	HasLabel     bool      `json:"hasLabel"`
	LabelSource  string    `json:"labelSource,omitempty"`
	LabelURL     string    `json:"labelUrl,omitempty"`
	DiscountCode string    `json:"discountCode,omitempty"`
	DiscountPct  float64   `json:"discountPct,omitempty"`
	CheckoutURL  string    `json:"checkoutUrl,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func makeSessionView(s session.Session) sessionView {
	snap := s.Snapshot
	c := snap.Context
	v := sessionView{
		ID:           s.ID,
		Flow:         snap.Flow.String(),
		Step:         snap.Step.String(),
		CameraID:     c.CameraID,
		Email:        c.Email,
		Format:       c.Format.String(),
		Price:        c.Format.DisplayPrice(c.DiscountPct),
		HasLabel:     c.Label != nil,
		LabelSource:  label.SourceOf(c.Label).String(),
		DiscountCode: c.DiscountCode,
		DiscountPct:  c.DiscountPct,
		CheckoutURL:  snap.CheckoutURL,
		ExpiresAt:    s.ExpiresAt,
	}
	for _, step := range snap.Flow.Steps() {
		v.Steps = append(v.Steps, step.String())
	}
	if hosted, ok := c.Label.(label.HostedURL); ok {
		v.LabelURL = hosted.URL
	}
	return v
}

type startSessionRequest struct {
	CameraID     string      `json:"cid"`
	LabelToken   string      `json:"lt"`
	DiscountCode string      `json:"discount"`
	DiscountPct  interface{} `json:"discount_pct"`
	Email        string      `json:"email"`
}

// entryValues merges the query string with the JSON body; body fields win.
func (req startSessionRequest) entryValues(q url.Values) url.Values {
	v := url.Values{}
	for k, vals := range q {
		v[k] = vals
	}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	set("cid", req.CameraID)
	set("lt", req.LabelToken)
	set("discount", req.DiscountCode)
	set("email", req.Email)
	if req.DiscountPct != nil {
		set("discount_pct", fmt.Sprint(req.DiscountPct))
	}
	return v
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.Sessions.Start(r.Context(), wizard.ParseEntryParams(req.entryValues(r.URL.Query())))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, makeSessionView(sess))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Fetch(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, makeSessionView(sess))
}

// mutate runs fn against the session named in the path and writes the
// resulting session view.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(w *wizard.Wizard) error) {
	sess, err := s.Sessions.Do(r.Context(), mux.Vars(r)["id"], fn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, makeSessionView(sess))
}

func (s *Server) setEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(wz *wizard.Wizard) error { return wz.SetEmail(req.Email) })
}

func (s *Server) selectFormat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format string `json:"format"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	format, err := cart.ParseFormat(req.Format)
	if err != nil {
		writeError(w, r, failure.Wrap(err, failure.InvalidInput, "Please choose a format."))
		return
	}
	s.mutate(w, r, func(wz *wizard.Wizard) error { return wz.SelectFormat(format) })
}

func (s *Server) captureLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageData string `json:"imageData"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, mimeType, err := parseDataURL(req.ImageData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(wz *wizard.Wizard) error { return wz.CaptureLabel(data, mimeType) })
}

func (s *Server) sessionReplacementLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address address.Address `json:"address"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var replacement label.ReplacementLabel
	sess, err := s.Sessions.Do(r.Context(), mux.Vars(r)["id"], func(wz *wizard.Wizard) error {
		var err error
		replacement, err = wz.RequestReplacementLabel(r.Context(), req.Address)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":        makeSessionView(sess),
		"trackingNumber": replacement.TrackingNumber,
		"trackingUrl":    replacement.TrackingURL,
	})
}

func (s *Server) clearLabel(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(wz *wizard.Wizard) error { return wz.ClearLabel() })
}

func (s *Server) advance(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(wz *wizard.Wizard) error {
		_, err := wz.Advance()
		return err
	})
}

func (s *Server) retreat(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(wz *wizard.Wizard) error {
		_, err := wz.Retreat()
		return err
	})
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	var checkoutURL string
	sess, err := s.Sessions.Do(r.Context(), mux.Vars(r)["id"], func(wz *wizard.Wizard) error {
		var err error
		checkoutURL, err = wz.Commit(r.Context())
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	// The customer is leaving for checkout; the session is done.
	if err := s.Sessions.Delete(r.Context(), sess.ID); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("session_id", sess.ID).Msg("failed discarding completed session")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"checkoutUrl": checkoutURL,
		"session":     makeSessionView(sess),
	})
}
