package server

import (
	"encoding/base64"
	"strings"

	"github.com/fotofoto/filmreturn/internal/failure"
)

// parseDataURL decodes a base64 data URL such as "data:image/png;base64,iVBO...".
func parseDataURL(s string) (data []byte, mimeType string, err error) {
	invalid := failure.New(failure.InvalidImage, "The label photo could not be read. Please retake it.")
	if len(s) < 5 || !strings.EqualFold(s[:5], "data:") {
		return nil, "", invalid
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return nil, "", invalid
	}
	meta, payload := s[5:comma], s[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", invalid
	}
	mimeType = strings.TrimSuffix(meta, ";base64")
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", failure.Wrap(err, failure.InvalidImage, invalid.Message)
	}
	if len(data) == 0 {
		return nil, "", invalid
	}
	return data, mimeType, nil
}
