package address

import (
	"strings"

	"github.com/fotofoto/filmreturn/internal/failure"
)

// Address is the customer's mailing address for a replacement return label.
// It is never persisted.
type Address struct {
	Name    string `json:"name"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

// 50 states, DC, inhabited territories, minor outlying islands and armed forces codes.
var stateCodes = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true, "DE": true,
	"FL": true, "GA": true, "HI": true, "ID": true, "IL": true, "IN": true, "IA": true, "KS": true,
	"KY": true, "LA": true, "ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true, "NM": true, "NY": true,
	"NC": true, "ND": true, "OH": true, "OK": true, "OR": true, "PA": true, "RI": true, "SC": true,
	"SD": true, "TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true,
	"DC": true,
	"AS": true, "GU": true, "MP": true, "PR": true, "VI": true, "UM": true,
	"AA": true, "AE": true, "AP": true,
}

func IsStateCode(code string) bool {
	return stateCodes[code]
}

// Validate returns nil for a mailable address, else an InvalidAddress error naming the first problem.
func Validate(a Address) error {
	switch {
	case strings.TrimSpace(a.Name) == "":
		return failure.New(failure.InvalidAddress, "Name is required.")
	case strings.TrimSpace(a.Street1) == "":
		return failure.New(failure.InvalidAddress, "Street address is required.")
	case strings.TrimSpace(a.City) == "":
		return failure.New(failure.InvalidAddress, "City is required.")
	case !IsStateCode(a.State):
		return failure.Newf(failure.InvalidAddress, "%q is not a recognized 2-letter state code.", a.State)
	case !isZip5(a.Zip):
		return failure.Newf(failure.InvalidAddress, "ZIP code must be exactly 5 digits, got %q.", a.Zip)
	}
	return nil
}

func isZip5(zip string) bool {
	if len(zip) != 5 {
		return false
	}
	for i := 0; i < len(zip); i++ {
		if zip[i] < '0' || zip[i] > '9' {
			return false
		}
	}
	return true
}
