package cart

import (
	"fmt"
	"math"
)

// Format is the processing package the customer buys.
type Format int

const (
	NoFormat Format = iota
	Scans
	Prints
)

func (f Format) String() string {
	return [...]string{"", "scans", "prints"}[f]
}

func ParseFormat(s string) (Format, error) {
	switch s {
	case "scans":
		return Scans, nil
	case "prints":
		return Prints, nil
	default:
		return NoFormat, fmt.Errorf("unknown format %q", s)
	}
}

type Product struct {
	Title      string
	PriceCents int64
}

var products = map[Format]Product{
	Scans:  {Title: "Digital Scans", PriceCents: 999},
	Prints: {Title: "Prints + Scans", PriceCents: 1699},
}

func (f Format) Product() (Product, bool) {
	p, ok := products[f]
	return p, ok
}

// DisplayPrice renders the format's price after an optional percentage discount, e.g. "$8.49".
func (f Format) DisplayPrice(discountPct float64) string {
	p, ok := f.Product()
	if !ok {
		return ""
	}
	cents := float64(p.PriceCents)
	if discountPct > 0 && discountPct < 100 {
		cents = math.Round(cents * (1 - discountPct/100))
	}
	return fmt.Sprintf("$%.2f", cents/100)
}
