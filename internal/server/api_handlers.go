package server

import (
	"net/http"
	"strings"

	"github.com/fotofoto/filmreturn/internal/address"
	"github.com/fotofoto/filmreturn/internal/cart"
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label"
	"github.com/fotofoto/filmreturn/internal/wizard"
)

type createCartRequest struct {
	Format       string `json:"format"`
	CameraID     string `json:"cid"`
	Email        string `json:"email"`
	LabelURL     string `json:"labelUrl"`
	LabelToken   string `json:"labelToken"`
	DiscountCode string `json:"discountCode"`
}

type sendEventRequest struct {
	Event      string                 `json:"event"`
	Email      string                 `json:"email"`
	Properties map[string]interface{} `json:"properties"`
}

type replacementLabelRequest struct {
	CameraID string          `json:"cid"`
	Email    string          `json:"email"`
	Address  address.Address `json:"address"`
}

type replacementLabelResponse struct {
	LabelURL       string `json:"labelUrl"`
	TrackingNumber string `json:"trackingNumber"`
	TrackingURL    string `json:"trackingUrl,omitempty"`
}

type uploadLabelRequest struct {
	ImageData string `json:"imageData"`
	CameraID  string `json:"cid"`
}

func cameraIDOrDefault(cid string) string {
	if cid = strings.TrimSpace(cid); cid != "" {
		return cid
	}
	return wizard.DefaultCameraID
}

func (s *Server) createCart(w http.ResponseWriter, r *http.Request) {
	var req createCartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	format, err := cart.ParseFormat(req.Format)
	if err != nil {
		writeError(w, r, failure.Wrap(err, failure.InvalidInput, "Please choose a format."))
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, r, failure.New(failure.InvalidInput, "Missing required fields."))
		return
	}
	cartReq := cart.Request{
		Format:       format,
		CameraID:     cameraIDOrDefault(req.CameraID),
		Email:        email,
		DiscountCode: req.DiscountCode,
	}
	switch {
	case req.LabelToken != "":
		cartReq.Label = label.FastTrackToken{Token: req.LabelToken}
	case req.LabelURL != "":
		cartReq.Label = label.HostedURL{URL: req.LabelURL}
	}
	checkoutURL, err := s.Carts.CreateCart(r.Context(), cartReq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checkoutUrl": checkoutURL})
}

func (s *Server) sendEvent(w http.ResponseWriter, r *http.Request) {
	var req sendEventRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Event) == "" {
		writeError(w, r, failure.New(failure.InvalidInput, "Missing event name."))
		return
	}
	if s.Events != nil {
		s.Events.Emit(req.Event, req.Email, req.Properties)
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}

func (s *Server) replacementLabel(w http.ResponseWriter, r *http.Request) {
	var req replacementLabelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, r, failure.New(failure.InvalidInput, "Missing email."))
		return
	}
	replacement, err := s.Labels.RequestReplacementLabel(r.Context(), cameraIDOrDefault(req.CameraID), email, req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, replacementLabelResponse{
		LabelURL:       replacement.LabelURL,
		TrackingNumber: replacement.TrackingNumber,
		TrackingURL:    replacement.TrackingURL,
	})
}

func (s *Server) uploadLabel(w http.ResponseWriter, r *http.Request) {
	var req uploadLabelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	data, mimeType, err := parseDataURL(req.ImageData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hosted, err := s.Images.Persist(r.Context(), cameraIDOrDefault(req.CameraID), label.CapturedImage{
		Data:     data,
		MimeType: mimeType,
		Source:   label.Camera,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": hosted.URL})
}
