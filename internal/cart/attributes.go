package cart

import (
	"strings"
	"unicode/utf8"

	"github.com/fotofoto/filmreturn/internal/cart/commerce"

	"github.com/rs/zerolog/log"
)

const (
	MaxAttributeValueLength = 1024

	CameraIDAttribute    = "camera_id"
	ReturnLabelAttribute = "Return Label"
)

// KeepAttributeValue reports whether v may be sent to the commerce API: not
// blank, not an inline data URL, and at most MaxAttributeValueLength characters.
func KeepAttributeValue(v string) bool {
	if strings.TrimSpace(v) == "" {
		return false
	}
	if len(v) >= 5 && strings.EqualFold(v[:5], "data:") {
		return false
	}
	return utf8.RuneCountInString(v) <= MaxAttributeValueLength
}

func FilterAttributes(attrs []commerce.Attribute) []commerce.Attribute {
	kept := make([]commerce.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if !KeepAttributeValue(a.Value) {
			log.Warn().Str("key", a.Key).Int("length", len(a.Value)).Msg("dropping cart attribute")
			continue
		}
		kept = append(kept, a)
	}
	return kept
}
