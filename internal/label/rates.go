package label

import (
	"github.com/fotofoto/filmreturn/internal/failure"
	"github.com/fotofoto/filmreturn/internal/label/carrier"
)

// CheapestEligible picks the strictly cheapest rate offered by eligibleCarrier.
// Ties keep the first rate returned. Rates from other carriers are never a fallback.
func CheapestEligible(rates []carrier.Rate, eligibleCarrier string) (carrier.Rate, error) {
	var best carrier.Rate
	found := false
	for _, r := range rates {
		if r.Carrier != eligibleCarrier {
			continue
		}
		if !found || r.PriceCents < best.PriceCents {
			best = r
			found = true
		}
	}
	if !found {
		return carrier.Rate{}, failure.Newf(
			failure.NoRatesAvailable, "No %s rates are available for this address.", eligibleCarrier,
		)
	}
	return best, nil
}
