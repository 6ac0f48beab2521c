package ratecache

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quantity names one value tracked by the cache.
type Quantity int

const (
	// RateAtoB is units of B bought by one unit of A.
	RateAtoB Quantity = iota + 1
	// RateBtoA is units of A bought by one unit of B.
	RateBtoA
	// PriceA is the fetched USD price of A.
	PriceA
	// PriceB is the USD price of B, derived from PriceA and RateAtoB.
	// It is PriceA × RateAtoB as configured, not a market QI/USD quote.
	PriceB
)

// Quantities lists every tracked quantity in display order.
var Quantities = []Quantity{RateAtoB, RateBtoA, PriceA, PriceB}

func (q Quantity) String() string {
	switch q {
	case RateAtoB:
		return "rate_a_to_b"
	case RateBtoA:
		return "rate_b_to_a"
	case PriceA:
		return "price_a_usd"
	case PriceB:
		return "price_b_usd"
	default:
		return fmt.Sprintf("quantity(%d)", int(q))
	}
}

// Derived reports whether q is computed rather than fetched.
func (q Quantity) Derived() bool {
	return q == PriceB
}

// IsRate reports whether q is a conversion rate rather than a USD price.
func (q Quantity) IsRate() bool {
	return q == RateAtoB || q == RateBtoA
}

// ParseQuantity resolves the names produced by String.
func ParseQuantity(raw string) (Quantity, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, q := range Quantities {
		if q.String() == s {
			return q, nil
		}
	}
	return 0, fmt.Errorf("unknown quantity %q", raw)
}

// Status tags a Reading.
type Status int

const (
	// StatusUnavailable means no successful observation exists yet.
	StatusUnavailable Status = iota
	// StatusFresh means the most recent refresh succeeded.
	StatusFresh
	// StatusStale means the most recent refresh failed and Value is carried over.
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	default:
		return "unavailable"
	}
}

// Reading is the tagged result of reading a quantity.
type Reading struct {
	Quantity  Quantity
	Status    Status
	Value     decimal.Decimal
	Previous  decimal.Decimal
	UpdatedAt time.Time
	// LastError is the failure of the most recent refresh, if it failed.
	LastError error
}

// Available reports whether Value holds an observed value.
func (r Reading) Available() bool {
	return r.Status != StatusUnavailable
}

// IsStale reports whether the most recent refresh failed for this quantity.
func (r Reading) IsStale() bool {
	return r.Status == StatusStale || (r.Status == StatusUnavailable && r.LastError != nil)
}
